package model

// DocChunk is one embedded span of reference documentation. Chunks are
// immutable; re-indexing a source replaces all of its chunks.
type DocChunk struct {
	ID         int64     `db:"id"`
	Source     string    `db:"source"`
	Page       int       `db:"page"`
	ChunkIndex int       `db:"chunk_index"`
	Content    string    `db:"content"`
	Embedding  []float32 `db:"-"`
}

// ChunkMatch is a retrieval hit with its cosine distance to the query.
type ChunkMatch struct {
	Chunk    DocChunk
	Distance float64
}
