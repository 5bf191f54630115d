// Package repository provides PostgreSQL persistence for ingested papers.
//
// # Tables
//
//   - papers: one row per physical paper, unique by canonical id and by DOI
//   - paper_chunks: the abstract and full-text chunks of a paper
//   - paper_references: the works a paper cites, in citation order
//
// # Transactions
//
// Multi-statement writes run inside database.WithTransaction so a failed
// chunk or reference batch never leaves a half-written paper behind.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	papers := repository.NewPgPaperRepository(db, logger)
//	pipeline := ingestion.NewPipeline(cfg, papers, chunker, ...)
package repository

import (
	"github.com/helixir/paper-search-engine/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
type DBTX = database.DBTX
