package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/ingestion"
)

// PaperRecord is a persisted paper together with its storage metadata.
type PaperRecord struct {
	ID          uuid.UUID     `json:"id"`
	Paper       *domain.Paper `json:"paper"`
	HasFullText bool          `json:"has_full_text"`
	ChunkCount  int           `json:"chunk_count"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PaperRepository defines the interface for paper persistence.
type PaperRepository interface {
	ingestion.Store

	// GetByID retrieves a stored paper by its UUID.
	// Returns domain.ErrNotFound if the paper does not exist.
	GetByID(ctx context.Context, id string) (*PaperRecord, error)

	// ListReferences returns the references of a stored paper in citation order.
	ListReferences(ctx context.Context, id string) ([]domain.Reference, error)
}
