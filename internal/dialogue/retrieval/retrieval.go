// Package retrieval augments agent responses with knowledge-base context.
//
// Documents are chunked and embedded offline into a PostgreSQL table with a
// pgvector HNSW index; at answer time the caller's question is embedded and
// the closest chunks (cosine distance) are folded into the system prompt.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// DefaultTopK is how many chunks a search returns unless configured.
const DefaultTopK = 5

// Schema is the SQL DDL for the knowledge chunk table. The embedding
// dimension matches text-embedding-3-small; adjust it when deploying a
// different embedding model.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id         UUID PRIMARY KEY,
    source     TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL,
    embedding  vector(1536) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding
    ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
`

// Embedder turns text into a vector. Implemented by [OpenAIEmbedder].
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunk is one knowledge-base fragment with its search distance.
type Chunk struct {
	ID       uuid.UUID
	Source   string
	Content  string
	Distance float64
}

// Retriever searches the knowledge base. Safe for concurrent use.
type Retriever struct {
	pool     *pgxpool.Pool
	embedder Embedder
	topK     int
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK overrides how many chunks Search returns.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New creates a Retriever over the given pool and embedder.
func New(pool *pgxpool.Pool, embedder Embedder, opts ...Option) (*Retriever, error) {
	if pool == nil {
		return nil, fmt.Errorf("retrieval: pool must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	r := &Retriever{pool: pool, embedder: embedder, topK: DefaultTopK}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Migrate executes the [Schema] DDL against the database.
func (r *Retriever) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("retrieval: migrate: %w", err)
	}
	return nil
}

// Index embeds and upserts one knowledge chunk.
func (r *Retriever) Index(ctx context.Context, source, content string) (uuid.UUID, error) {
	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("retrieval: embed chunk: %w", err)
	}

	id := uuid.New()
	const q = `
		INSERT INTO knowledge_chunks (id, source, content, embedding)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, q, id, source, content, pgvector.NewVector(vec)); err != nil {
		return uuid.Nil, fmt.Errorf("retrieval: index chunk: %w", err)
	}
	return id, nil
}

// Search returns the chunks closest to the query, most similar first.
func (r *Retriever) Search(ctx context.Context, query string) ([]Chunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	const q = `
		SELECT id, source, content, embedding <=> $1 AS distance
		FROM   knowledge_chunks
		ORDER  BY distance
		LIMIT  $2`
	rows, err := r.pool.Query(ctx, q, pgvector.NewVector(vec), r.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Chunk, error) {
		var c Chunk
		err := row.Scan(&c.ID, &c.Source, &c.Content, &c.Distance)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: scan results: %w", err)
	}
	return chunks, nil
}

// Context searches for the query and formats the results as a prompt
// fragment. An empty knowledge base yields an empty string.
func (r *Retriever) Context(ctx context.Context, query string) (string, error) {
	chunks, err := r.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return BuildContext(chunks), nil
}

// BuildContext formats chunks into the prompt fragment appended to the
// system prompt. Returns "" for no chunks.
func BuildContext(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return fmt.Sprintf(`Используй следующую информацию из базы знаний для ответа на вопрос клиента:

%s

Если информация не помогает ответить на вопрос, используй свои общие знания, но упомяни что конкретной информации нет в базе.`,
		strings.Join(parts, "\n\n"))
}
