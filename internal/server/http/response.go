package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/search"
)

// Error codes returned in the error body.
const (
	codeInvalidArgument = "invalid_argument"
	codeNotFound        = "not_found"
	codeRateLimited     = "rate_limited"
	codeUnavailable     = "unavailable"
	codeCancelled       = "cancelled"
	codeInternal        = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// searchOptionsRequest carries the options shared by every search route.
type searchOptionsRequest struct {
	Limit          int      `json:"limit" validate:"gte=0,lte=200"`
	YearFrom       int      `json:"year_from" validate:"omitempty,gte=1000,lte=3000"`
	YearTo         int      `json:"year_to" validate:"omitempty,gte=1000,lte=3000"`
	OpenAccessOnly bool     `json:"open_access_only"`
	FastMode       bool     `json:"fast_mode"`
	Sources        []string `json:"sources" validate:"omitempty,max=6,dive,oneof=semantic_scholar openalex scopus pubmed biorxiv arxiv"`
}

func (o searchOptionsRequest) toDomain() domain.SearchOptions {
	opts := domain.SearchOptions{
		Limit:          o.Limit,
		YearFrom:       o.YearFrom,
		YearTo:         o.YearTo,
		OpenAccessOnly: o.OpenAccessOnly,
		FastMode:       o.FastMode,
	}
	for _, s := range o.Sources {
		opts.Sources = append(opts.Sources, domain.SourceType(s))
	}
	return opts
}

type searchRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
	searchOptionsRequest
}

type batchRequest struct {
	Queries []string `json:"queries" validate:"required,min=1,dive,required,max=1000"`
	searchOptionsRequest
}

type batchResponse struct {
	Results []search.BatchResult `json:"results"`
}

type providersResponse struct {
	Providers []domain.ProviderHealth `json:"providers"`
}

type referencesResponse struct {
	PaperID    string             `json:"paper_id"`
	References []domain.Reference `json:"references"`
}

// newValidator returns a validator that reports JSON field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule of err.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// writeDomainError maps domain errors to HTTP status codes and writes a
// JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid input")
		}
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "service unavailable")
	case errors.Is(err, domain.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, codeCancelled, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
