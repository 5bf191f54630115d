package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/ingestion"
)

// Helper to create a valid paper for testing.
func newTestPaper() *domain.Paper {
	return &domain.Paper{
		CanonicalID:   "doi:10.1234/test.paper",
		Source:        domain.SourceTypeSemanticScholar,
		SourceID:      "ss-1",
		Title:         "Test Paper Title",
		Abstract:      "This is a test abstract for the paper.",
		Authors:       []string{"John Doe", "Jane Smith"},
		Year:          2024,
		Venue:         "Test Conference",
		DOI:           "https://doi.org/10.1234/Test.Paper",
		URL:           "https://example.com/paper",
		PDFURL:        "https://example.com/paper.pdf",
		CitationCount: 10,
		OpenAccess:    true,
	}
}

func newTestRepo(t *testing.T) (*PgPaperRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgPaperRepository(mock, zerolog.Nop()), mock
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestNewPgPaperRepository(t *testing.T) {
	t.Run("creates repository with nil db", func(t *testing.T) {
		repo := NewPgPaperRepository(nil, zerolog.Nop())
		assert.NotNil(t, repo)
		assert.Nil(t, repo.db)
	})

	t.Run("creates repository with mock db", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		assert.NotNil(t, repo.db)
	})
}

func TestPgPaperRepository_FindExisting(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored paper", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		paper := newTestPaper()
		id := uuid.New()

		mock.ExpectQuery("SELECT id, has_full_text").
			WithArgs(paper.CanonicalID, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "has_full_text"}).AddRow(id, true))

		stored, err := repo.FindExisting(ctx, paper)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, id.String(), stored.ID)
		assert.True(t, stored.HasFullText)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when nothing matches", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		paper := newTestPaper()

		mock.ExpectQuery("SELECT id, has_full_text").
			WithArgs(paper.CanonicalID, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)

		stored, err := repo.FindExisting(ctx, paper)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("matches by normalized title when there is no DOI", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		paper := newTestPaper()
		paper.DOI = ""
		paper.Title = "Test Paper: Title."
		id := uuid.New()

		mock.ExpectQuery("normalized_title = \\$3").
			WithArgs(paper.CanonicalID, (*string)(nil), "test paper title").
			WillReturnRows(pgxmock.NewRows([]string{"id", "has_full_text"}).AddRow(id, false))

		stored, err := repo.FindExisting(ctx, paper)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, id.String(), stored.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectQuery("SELECT id, has_full_text").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindExisting(ctx, newTestPaper())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("rejects nil paper", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		_, err := repo.FindExisting(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgPaperRepository_CreatePaper(t *testing.T) {
	ctx := context.Background()
	chunks := []ingestion.Chunk{
		{Index: 0, Kind: ingestion.ChunkKindAbstract, Text: "abstract"},
		{Index: 1, Kind: ingestion.ChunkKindFullText, Text: "body"},
	}

	t.Run("inserts paper and chunks in one transaction", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		paper := newTestPaper()
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), paper.CanonicalID, pgxmock.AnyArg(), string(paper.Source), paper.SourceID,
				paper.Title, paper.Abstract, pgxmock.AnyArg(), pgxmock.AnyArg(), paper.Venue,
				paper.URL, paper.PDFURL, paper.CitationCount, paper.OpenAccess, paper.IsPreprint,
				true, "test paper title",
			).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
		batch := mock.ExpectBatch()
		for _, c := range chunks {
			batch.ExpectExec("INSERT INTO paper_chunks").
				WithArgs(id, c.Index, string(c.Kind), c.Text).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		got, err := repo.CreatePaper(ctx, paper, chunks)
		require.NoError(t, err)
		assert.Equal(t, id.String(), got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the stored id when a concurrent insert won", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		paper := newTestPaper()
		existing := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))
		mock.ExpectQuery("SELECT id, has_full_text").
			WithArgs(paper.CanonicalID, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "has_full_text"}).AddRow(existing, false))
		mock.ExpectCommit()

		got, err := repo.CreatePaper(ctx, paper, chunks)
		require.NoError(t, err)
		assert.Equal(t, existing.String(), got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when a chunk insert fails", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
		batch := mock.ExpectBatch()
		batch.ExpectExec("INSERT INTO paper_chunks").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := repo.CreatePaper(ctx, newTestPaper(), chunks[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert chunks")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips the batch without chunks", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				false, pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
		mock.ExpectCommit()

		got, err := repo.CreatePaper(ctx, newTestPaper(), nil)
		require.NoError(t, err)
		assert.Equal(t, id.String(), got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validates input", func(t *testing.T) {
		repo, _ := newTestRepo(t)

		_, err := repo.CreatePaper(ctx, nil, nil)
		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "paper", validationErr.Field)

		paper := newTestPaper()
		paper.CanonicalID = ""
		_, err = repo.CreatePaper(ctx, paper, nil)
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "canonical_id", validationErr.Field)
	})
}

func TestPgPaperRepository_ReplaceChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("swaps chunks and sets the full text flag", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()
		chunks := []ingestion.Chunk{{Index: 0, Kind: ingestion.ChunkKindFullText, Text: "body"}}

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE papers SET has_full_text").
			WithArgs(id, true).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("DELETE FROM paper_chunks").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		batch := mock.ExpectBatch()
		batch.ExpectExec("INSERT INTO paper_chunks").
			WithArgs(id, 0, "full_text", "body").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ReplaceChunks(ctx, id.String(), chunks))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown paper", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE papers SET has_full_text").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := repo.ReplaceChunks(ctx, id.String(), nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		err := repo.ReplaceChunks(ctx, "not-a-uuid", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgPaperRepository_StoreReferences(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces references in order", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()
		refs := []domain.Reference{
			{Title: "First", DOI: "10.1/A", Year: 2020, Authors: []string{"A"}},
			{Title: "Second"},
		}

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM paper_references").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		batch := mock.ExpectBatch()
		for i, ref := range refs {
			batch.ExpectExec("INSERT INTO paper_references").
				WithArgs(id, i, ref.Title, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), ref.SourceID).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mock.ExpectCommit()

		require.NoError(t, repo.StoreReferences(ctx, id.String(), refs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no references is a no-op", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		require.NoError(t, repo.StoreReferences(ctx, uuid.NewString(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgPaperRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	columns := []string{
		"id", "canonical_id", "doi", "source", "source_id", "title", "abstract",
		"authors", "year", "venue", "url", "pdf_url", "citation_count",
		"open_access", "is_preprint", "has_full_text", "count",
		"created_at", "updated_at",
	}

	t.Run("returns the stored paper", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		id := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT p.id, p.canonical_id").
			WithArgs(id).
			WillReturnRows(pgxmock.NewRows(columns).AddRow(
				id, "doi:10.1234/x", strPtr("10.1234/x"), "arxiv", "2401.1", "Title", "Abstract",
				[]byte(`["A","B"]`), intPtr(2024), "Venue", "https://u", "https://p", 7,
				true, true, false, 3,
				now, now,
			))

		record, err := repo.GetByID(ctx, id.String())
		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
		assert.Equal(t, domain.SourceType("arxiv"), record.Paper.Source)
		assert.Equal(t, "10.1234/x", record.Paper.DOI)
		assert.Equal(t, 2024, record.Paper.Year)
		assert.Equal(t, []string{"A", "B"}, record.Paper.Authors)
		assert.Equal(t, 3, record.ChunkCount)
		assert.False(t, record.HasFullText)
	})

	t.Run("returns not found", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectQuery("SELECT p.id").WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_ListReferences(t *testing.T) {
	repo, mock := newTestRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT title, doi, year, authors, source_id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"title", "doi", "year", "authors", "source_id"}).
			AddRow("First", strPtr("10.1/a"), intPtr(2020), []byte(`["A"]`), "W1").
			AddRow("Second", nil, nil, []byte(`[]`), ""))

	refs, err := repo.ListReferences(context.Background(), id.String())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, domain.Reference{Title: "First", DOI: "10.1/a", Year: 2020, Authors: []string{"A"}, SourceID: "W1"}, refs[0])
	assert.Equal(t, "Second", refs[1].Title)
	assert.Zero(t, refs[1].Year)
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, nullableText(""))
	assert.Equal(t, "x", *nullableText("x"))
	assert.Nil(t, nullableInt(0))
	assert.Equal(t, 5, *nullableInt(5))
	assert.True(t, hasFullText([]ingestion.Chunk{{Kind: ingestion.ChunkKindFullText}}))
	assert.False(t, hasFullText([]ingestion.Chunk{{Kind: ingestion.ChunkKindAbstract}}))
}
