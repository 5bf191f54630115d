package biorxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/papersources"
)

const sampleResponse = `{
  "hitCount": 57,
  "nextCursorMark": "AoE=",
  "resultList": {"result": [
    {
      "id": "PPR123456",
      "source": "PPR",
      "doi": "10.1101/2024.01.15.575123",
      "title": "Single-cell atlas of the developing retina",
      "authorString": "Chen L, Garcia M, Okafor U.",
      "pubYear": "2024",
      "abstractText": "We profile 200k cells.",
      "isOpenAccess": "Y",
      "citedByCount": 3,
      "firstPublicationDate": "2024-01-17",
      "publisherName": "bioRxiv"
    },
    {
      "id": "PPR654321",
      "source": "PPR",
      "doi": "10.1101/2023.11.02.23297932",
      "title": "Long COVID outcomes in a national cohort",
      "authorString": "",
      "pubYear": "2023",
      "publisherName": "medRxiv"
    },
    {"id": "PPR000000", "title": ""}
  ]}
}`

func newTestClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeBioRxiv),
		Timeout:   5 * time.Second,
		RateLimit: 100,
		BurstSize: 100,
	})
	return NewWithHTTPClient(Config{BaseURL: serverURL, Enabled: true}, httpClient)
}

func TestNew(t *testing.T) {
	client := New(Config{})

	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultServers, client.config.Servers)
	assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
	assert.Equal(t, domain.SourceTypeBioRxiv, client.SourceType())
	assert.Equal(t, "bioRxiv", client.Name())
	assert.False(t, client.IsEnabled())
}

func TestClient_Search(t *testing.T) {
	t.Run("maps preprints from both servers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t,
				`(retina) AND (SRC:PPR) AND (PUBLISHER:"bioRxiv" OR PUBLISHER:"medRxiv")`,
				r.URL.Query().Get("query"))
			assert.Equal(t, "json", r.URL.Query().Get("format"))
			assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
			w.Write([]byte(sampleResponse))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{
			Query:      "retina",
			MaxResults: 25,
		})
		require.NoError(t, err)

		assert.Equal(t, 57, result.TotalResults)
		assert.True(t, result.HasMore)
		assert.Equal(t, 3, result.NextOffset)
		require.Len(t, result.Papers, 2)

		bio := result.Papers[0]
		assert.Equal(t, domain.SourceTypeBioRxiv, bio.Source)
		assert.Equal(t, "PPR123456", bio.SourceID)
		assert.Equal(t, "10.1101/2024.01.15.575123", bio.DOI)
		assert.Equal(t, 2024, bio.Year)
		assert.Equal(t, "bioRxiv", bio.Venue)
		assert.Equal(t, []string{"Chen L", "Garcia M", "Okafor U"}, bio.Authors)
		assert.Equal(t, "https://www.biorxiv.org/content/10.1101/2024.01.15.575123", bio.URL)
		assert.Equal(t, "https://www.biorxiv.org/content/10.1101/2024.01.15.575123.full.pdf", bio.PDFURL)
		assert.Equal(t, 3, bio.CitationCount)
		assert.True(t, bio.OpenAccess)
		assert.True(t, bio.IsPreprint)

		med := result.Papers[1]
		assert.Equal(t, "medRxiv", med.Venue)
		assert.Equal(t, "https://www.medrxiv.org/content/10.1101/2023.11.02.23297932.full.pdf", med.PDFURL)
		assert.Empty(t, med.Authors)
		assert.NotNil(t, med.Authors)
		assert.Empty(t, med.Abstract)
		assert.Equal(t, 2023, med.Year)
	})

	t.Run("filters and paging", func(t *testing.T) {
		from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Contains(t, q.Get("query"), "(FIRST_PDATE:[2023-01-01 TO *])")
			assert.Contains(t, q.Get("query"), "(OPEN_ACCESS:Y)")
			assert.Equal(t, "3", q.Get("page"))
			w.Write([]byte(`{"hitCount":0,"resultList":{"result":[]}}`))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{
			Query:          "q",
			DateFrom:       &from,
			OpenAccessOnly: true,
			MaxResults:     10,
			Offset:         20,
		})
		require.NoError(t, err)
		assert.Empty(t, result.Papers)
		assert.False(t, result.HasMore)
	})

	t.Run("malformed body is a parse error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"hitCount":`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("gateway errors are transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.NotErrorIs(t, err, domain.ErrClientRequest)
	})
}

func TestParseAuthorString(t *testing.T) {
	assert.Equal(t, []string{}, parseAuthorString("  "))
	assert.Equal(t, []string{"Doe J"}, parseAuthorString("Doe J."))
	assert.Equal(t, []string{"A B", "C D"}, parseAuthorString("A B, C D"))
}
