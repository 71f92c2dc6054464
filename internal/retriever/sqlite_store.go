package retriever

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"ai-deid-pipeline/internal/logger"
	"ai-deid-pipeline/internal/types"
)

func init() {
	sqlite_vec.Auto()
}

// Embedder turns text into a fixed-dimension vector for similarity search.
// A concrete embedding-model client implements this; it is supplied by the
// caller rather than fixed here, so the store stays provider-agnostic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SQLiteStore is the concrete default Retriever: regulation snippets with
// their embeddings are stored in a sqlite-vec virtual table and queried by
// cosine distance. It is one optional, swappable adapter behind the
// Retriever interface — nothing outside this package depends on it.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	dim      int
	log      *logger.Logger
}

// NewSQLiteStore opens (creating if absent) a sqlite-vec database at dbPath
// holding regulation snippets of the given embedding dimension.
func NewSQLiteStore(dbPath string, dim int, embedder Embedder, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("retriever: creating db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("retriever: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("retriever: pinging database: %w", err)
	}
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS regulation_snippets (
	id INTEGER PRIMARY KEY,
	source TEXT NOT NULL,
	phi_type TEXT,
	content TEXT NOT NULL
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_regulation_snippets USING vec0(
	embedding float[%d] distance_metric=cosine
);`, dim)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("retriever: creating schema: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder, dim: dim, log: log}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// IndexSnippet stores a regulation snippet with its embedding, associating
// it with an optional PHI type for GetPHIDefinitions lookups.
func (s *SQLiteStore) IndexSnippet(ctx context.Context, source, phiType, content string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("retriever: embedding snippet: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO regulation_snippets (source, phi_type, content) VALUES (?, ?, ?)",
		source, phiType, content)
	if err != nil {
		return fmt.Errorf("retriever: inserting snippet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO vec_regulation_snippets (rowid, embedding) VALUES (?, ?)",
		id, serializeFloat32(vec))
	if err != nil {
		return fmt.Errorf("retriever: indexing embedding: %w", err)
	}
	return nil
}

// Retrieve performs a KNN search over indexed snippets using cosine
// distance and returns the top-k as Documents.
func (s *SQLiteStore) Retrieve(ctx context.Context, query string, k int, _ map[string]any) ([]Document, error) {
	if k <= 0 {
		k = 5
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embedding query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source, r.content, v.distance
		FROM vec_regulation_snippets v
		JOIN regulation_snippets r ON r.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(vec), k)
	if err != nil {
		return nil, fmt.Errorf("retriever: vector search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var source, content string
		var distance float64
		if err := rows.Scan(&source, &content, &distance); err != nil {
			return nil, err
		}
		docs = append(docs, Document{
			PageContent: content,
			Metadata:    map[string]any{"source": source, "score": 1.0 - distance},
		})
	}
	return docs, rows.Err()
}

// GetPHIDefinitions returns indexed snippets tagged with any of the given
// PHI types.
func (s *SQLiteStore) GetPHIDefinitions(ctx context.Context, phiTypes []types.PHIType) ([]Document, error) {
	if len(phiTypes) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(phiTypes))
	for i, t := range phiTypes {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(t))
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT source, content FROM regulation_snippets WHERE phi_type IN (%s)", placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("retriever: definitions query: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var source, content string
		if err := rows.Scan(&source, &content); err != nil {
			return nil, err
		}
		docs = append(docs, Document{PageContent: content, Metadata: map[string]any{"source": source}})
	}
	return docs, rows.Err()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
