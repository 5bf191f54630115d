package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-engine/internal/database"
	"github.com/helixir/paper-search-engine/internal/domain"
	"github.com/helixir/paper-search-engine/internal/ingestion"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX, logger zerolog.Logger) *PgPaperRepository {
	return &PgPaperRepository{
		db:     db,
		logger: logger.With().Str("component", "paper_repository").Logger(),
	}
}

const findExistingQuery = `
	SELECT id, has_full_text
	FROM papers
	WHERE canonical_id = $1
	   OR ($2::text IS NOT NULL AND doi = $2)
	   OR ($2::text IS NULL AND $3::text <> '' AND normalized_title = $3)
	ORDER BY (canonical_id = $1) DESC
	LIMIT 1`

// FindExisting returns the stored paper sharing the canonical id or the
// normalized DOI of paper, or nil when none is stored. A paper without a DOI
// also matches a stored paper with the same normalized title.
func (r *PgPaperRepository) FindExisting(ctx context.Context, paper *domain.Paper) (*ingestion.StoredPaper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}
	return findExisting(ctx, r.db, paper)
}

func findExisting(ctx context.Context, db DBTX, paper *domain.Paper) (*ingestion.StoredPaper, error) {
	var (
		id          uuid.UUID
		hasFullText bool
	)
	err := db.QueryRow(ctx, findExistingQuery,
		paper.CanonicalID,
		nullableText(domain.NormalizeDOI(paper.DOI)),
		domain.NormalizeTitle(paper.Title),
	).Scan(&id, &hasFullText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up paper: %w", err)
	}
	return &ingestion.StoredPaper{ID: id.String(), HasFullText: hasFullText}, nil
}

const insertPaperQuery = `
	INSERT INTO papers (
		id, canonical_id, doi, source, source_id, title, abstract, authors,
		year, venue, url, pdf_url, citation_count, open_access, is_preprint,
		has_full_text, normalized_title
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

const insertChunkQuery = `
	INSERT INTO paper_chunks (paper_id, chunk_index, kind, content)
	VALUES ($1, $2, $3, $4)`

// CreatePaper inserts paper and its chunks in one transaction and returns
// the new id. When a concurrent writer stored the same paper first, the id
// of that row is returned and chunks are left untouched.
func (r *PgPaperRepository) CreatePaper(ctx context.Context, paper *domain.Paper, chunks []ingestion.Chunk) (string, error) {
	if paper == nil {
		return "", domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.CanonicalID == "" {
		return "", domain.NewValidationError("canonical_id", "canonical ID is required")
	}

	authorsJSON, err := marshalAuthors(paper.Authors)
	if err != nil {
		return "", err
	}

	var paperID string
	err = database.WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		id := uuid.New()
		var inserted uuid.UUID
		err := tx.QueryRow(ctx, insertPaperQuery,
			id,
			paper.CanonicalID,
			nullableText(domain.NormalizeDOI(paper.DOI)),
			string(paper.Source),
			paper.SourceID,
			paper.Title,
			paper.Abstract,
			authorsJSON,
			nullableInt(paper.Year),
			paper.Venue,
			paper.URL,
			paper.PDFURL,
			paper.CitationCount,
			paper.OpenAccess,
			paper.IsPreprint,
			hasFullText(chunks),
			domain.NormalizeTitle(paper.Title),
		).Scan(&inserted)
		if errors.Is(err, pgx.ErrNoRows) {
			existing, err := findExisting(ctx, tx, paper)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("paper %s conflicted but no stored row matches", paper.CanonicalID)
			}
			paperID = existing.ID
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert paper: %w", err)
		}
		paperID = inserted.String()
		return insertChunks(ctx, tx, inserted, chunks)
	})
	if err != nil {
		return "", err
	}
	return paperID, nil
}

// ReplaceChunks deletes every chunk of the paper, inserts chunks and
// refreshes the paper's full-text flag.
func (r *PgPaperRepository) ReplaceChunks(ctx context.Context, paperID string, chunks []ingestion.Chunk) error {
	id, err := parsePaperID(paperID)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE papers SET has_full_text = $2, updated_at = NOW() WHERE id = $1`,
			id, hasFullText(chunks))
		if err != nil {
			return fmt.Errorf("failed to update paper: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewNotFoundError("paper", paperID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM paper_chunks WHERE paper_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return insertChunks(ctx, tx, id, chunks)
	})
}

const insertReferenceQuery = `
	INSERT INTO paper_references (paper_id, position, title, doi, year, authors, source_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// StoreReferences replaces the stored references of a paper.
func (r *PgPaperRepository) StoreReferences(ctx context.Context, paperID string, refs []domain.Reference) error {
	id, err := parsePaperID(paperID)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, ref := range refs {
		authorsJSON, err := marshalAuthors(ref.Authors)
		if err != nil {
			return err
		}
		batch.Queue(insertReferenceQuery,
			id,
			i,
			ref.Title,
			nullableText(domain.NormalizeDOI(ref.DOI)),
			nullableInt(ref.Year),
			authorsJSON,
			ref.SourceID,
		)
	}

	return database.WithTransaction(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM paper_references WHERE paper_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete references: %w", err)
		}
		if err := execBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("failed to insert references: %w", err)
		}
		return nil
	})
}

const selectPaperQuery = `
	SELECT p.id, p.canonical_id, p.doi, p.source, p.source_id, p.title, p.abstract,
		p.authors, p.year, p.venue, p.url, p.pdf_url, p.citation_count,
		p.open_access, p.is_preprint, p.has_full_text,
		(SELECT COUNT(*) FROM paper_chunks c WHERE c.paper_id = p.id),
		p.created_at, p.updated_at
	FROM papers p
	WHERE p.id = $1`

// GetByID retrieves a stored paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id string) (*PaperRecord, error) {
	paperID, err := parsePaperID(id)
	if err != nil {
		return nil, err
	}

	record, err := scanPaper(r.db.QueryRow(ctx, selectPaperQuery, paperID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("paper", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return record, nil
}

// ListReferences returns the references of a stored paper in citation order.
func (r *PgPaperRepository) ListReferences(ctx context.Context, id string) ([]domain.Reference, error) {
	paperID, err := parsePaperID(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT title, doi, year, authors, source_id
		FROM paper_references
		WHERE paper_id = $1
		ORDER BY position`, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer rows.Close()

	refs := make([]domain.Reference, 0)
	for rows.Next() {
		var (
			ref         domain.Reference
			doi         *string
			year        *int
			authorsJSON []byte
		)
		if err := rows.Scan(&ref.Title, &doi, &year, &authorsJSON, &ref.SourceID); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		if doi != nil {
			ref.DOI = *doi
		}
		if year != nil {
			ref.Year = *year
		}
		if len(authorsJSON) > 0 {
			if err := json.Unmarshal(authorsJSON, &ref.Authors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal reference authors: %w", err)
			}
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating references: %w", err)
	}
	return refs, nil
}

// insertChunks sends every chunk insert in a single batch.
func insertChunks(ctx context.Context, db DBTX, paperID uuid.UUID, chunks []ingestion.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(insertChunkQuery, paperID, c.Index, string(c.Kind), c.Text)
	}
	if err := execBatch(ctx, db, batch); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func execBatch(ctx context.Context, db DBTX, batch *pgx.Batch) error {
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return br.Close()
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	record      PaperRecord
	paper       domain.Paper
	source      string
	doi         *string
	year        *int
	authorsJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []any {
	return []any{
		&d.record.ID, &d.paper.CanonicalID, &d.doi, &d.source, &d.paper.SourceID,
		&d.paper.Title, &d.paper.Abstract, &d.authorsJSON, &d.year, &d.paper.Venue,
		&d.paper.URL, &d.paper.PDFURL, &d.paper.CitationCount, &d.paper.OpenAccess,
		&d.paper.IsPreprint, &d.record.HasFullText, &d.record.ChunkCount,
		&d.record.CreatedAt, &d.record.UpdatedAt,
	}
}

// finalize performs post-scan processing: nullable columns and JSON fields.
func (d *paperScanDest) finalize() (*PaperRecord, error) {
	d.paper.Source = domain.SourceType(d.source)
	if d.doi != nil {
		d.paper.DOI = *d.doi
	}
	if d.year != nil {
		d.paper.Year = *d.year
	}
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	d.record.Paper = &d.paper
	return &d.record, nil
}

// scanPaper scans a single row into a PaperRecord.
func scanPaper(row pgx.Row) (*PaperRecord, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func parsePaperID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, domain.NewValidationError("paper_id", "must be a UUID")
	}
	return parsed, nil
}

func marshalAuthors(authors []string) ([]byte, error) {
	if authors == nil {
		authors = []string{}
	}
	b, err := json.Marshal(authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}
	return b, nil
}

func hasFullText(chunks []ingestion.Chunk) bool {
	for _, c := range chunks {
		if c.Kind == ingestion.ChunkKindFullText {
			return true
		}
	}
	return false
}

// nullableText maps "" to SQL NULL.
func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableInt maps 0 to SQL NULL.
func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
