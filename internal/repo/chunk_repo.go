package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/railsense/railsense/internal/model"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceSource deletes the source's previous chunk generation and inserts
// the new one in a single transaction. Indexing the same document twice
// leaves exactly one generation behind.
func (r *ChunkRepo) ReplaceSource(ctx context.Context, source string, chunks []model.DocChunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_chunks WHERE source = $1`, source); err != nil {
		return err
	}
	const ins = `
		INSERT INTO doc_chunks (source, page, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`
	stmt, err := tx.PrepareContext(ctx, ins)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, source, chunk.Page, chunk.ChunkIndex,
			chunk.Content, pgvector.NewVector(chunk.Embedding)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Nearest returns the k chunks closest to the query embedding by cosine
// distance. Ties break on id, so ranking is stable for fixed embeddings.
func (r *ChunkRepo) Nearest(ctx context.Context, embedding []float32, k int) ([]model.ChunkMatch, error) {
	const query = `
		SELECT id, source, page, chunk_index, content, embedding <=> $1 AS distance
		FROM doc_chunks
		ORDER BY distance ASC, id ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChunkMatch
	for rows.Next() {
		var m model.ChunkMatch
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Source, &m.Chunk.Page,
			&m.Chunk.ChunkIndex, &m.Chunk.Content, &m.Distance); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountBySource reports how many chunks a source currently has.
func (r *ChunkRepo) CountBySource(ctx context.Context, source string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_chunks WHERE source = $1`, source).Scan(&count)
	return count, err
}
