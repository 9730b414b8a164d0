// Package store persists chunks and their embeddings in a SQLite database
// augmented with the sqlite-vec extension for approximate nearest-neighbor
// search and FTS5 for keyword lookups that add exact-term matches to the
// retriever's candidate pool.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/ragcore/chunk"
)

func init() {
	sqlite_vec.Auto()
}

// Filter narrows a search or delete to chunks matching every non-zero
// field.
type Filter struct {
	Modality   chunk.Modality
	SourceFile string
}

func (f Filter) matches(c chunk.Chunk) bool {
	if f.Modality != "" && c.Modality != f.Modality {
		return false
	}
	if f.SourceFile != "" && c.SourceFile != f.SourceFile {
		return false
	}
	return true
}

// SearchResult pairs a chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk chunk.Chunk
	Score float64
}

// Store wraps the SQLite database holding the corpus. It is the single
// source of truth for corpus contents: writers are serialized by SQLite's
// own locking under WAL mode, readers proceed concurrently.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at dbPath and initializes the
// schema, including the sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// DB returns the underlying *sql.DB for advanced queries (eval harnesses,
// diagnostics).
func (s *Store) DB() *sql.DB { return s.db }

// Add atomically inserts chunks. Any chunk lacking an embedding, with a
// declared-dimension mismatch, or whose id already exists is rejected and
// nothing is inserted.
func (s *Store) Add(ctx context.Context, chunks []chunk.Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid chunk: %w", err)
		}
		if !c.HasEmbedding() {
			return fmt.Errorf("chunk %s: %w", c.ID, errMissingEmbedding)
		}
		if len(c.Embedding) != s.embeddingDim {
			return fmt.Errorf("chunk %s: embedding dim %d != store dim %d", c.ID, len(c.Embedding), s.embeddingDim)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, source_file, source_type, modality, content, confidence, parent_chunk_id, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		vecStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vec_chunks (chunk_rowid, embedding) VALUES (?, ?)
		`)
		if err != nil {
			return err
		}
		defer vecStmt.Close()

		for _, c := range chunks {
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling metadata for %s: %w", c.ID, err)
			}
			var parentID any
			if c.Metadata.ParentChunkID != "" {
				parentID = c.Metadata.ParentChunkID
			}

			res, err := stmt.ExecContext(ctx, c.ID, c.SourceFile, string(c.SourceType),
				string(c.Modality), c.Content, c.Confidence, parentID, string(meta))
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("inserting chunk %s: %w", c.ID, errDuplicateID)
				}
				return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := vecStmt.ExecContext(ctx, rowID, serializeFloat32(c.Embedding)); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// Search performs approximate cosine-similarity search, returning the
// top-k results after applying filter. Since vec0 cannot pre-filter by
// arbitrary columns, a wider candidate window is pulled and filtered in
// application code before truncating to k.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		k = 1
	}
	window := k * 8
	if window < 50 {
		window = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.chunk_rowid, v.distance,
			c.id, c.source_file, c.source_type, c.modality, c.content, c.confidence, c.parent_chunk_id, c.metadata
		FROM vec_chunks v
		JOIN chunks c ON c.rowid = v.chunk_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), window)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var rowID int64
		var distance float64
		c, err := scanChunkRow(rows.Scan, &rowID, &distance)
		if err != nil {
			return nil, err
		}
		if !filter.matches(c) {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Score: 1.0 - distance})
		if len(results) >= k {
			break
		}
	}
	return results, rows.Err()
}

// scanChunkRowFunc matches sql.Rows.Scan's signature so scanChunkRow can
// be shared between Search (which also scans rowid/distance) and plain
// row iteration.
type scanChunkRowFunc func(dest ...any) error

func scanChunkRow(scan scanChunkRowFunc, rowID *int64, distance *float64) (chunk.Chunk, error) {
	var c chunk.Chunk
	var sourceType, modality string
	var parentID sql.NullString
	var metaJSON sql.NullString

	if err := scan(rowID, distance, &c.ID, &c.SourceFile, &sourceType, &modality,
		&c.Content, &c.Confidence, &parentID, &metaJSON); err != nil {
		return c, fmt.Errorf("scanning chunk row: %w", err)
	}
	c.SourceType = chunk.SourceType(sourceType)
	c.Modality = chunk.Modality(modality)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
			return c, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if parentID.Valid {
		c.Metadata.ParentChunkID = parentID.String
	}
	return c, nil
}

// FTSSearch performs a full-text keyword search against chunks_fts, used by
// the retriever to pull in exact keyword matches (part numbers, acronyms)
// that a vector search can miss when nothing in the corpus is semantically
// close to the query text.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]chunk.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.rowid, c.id, c.source_file, c.source_type, c.modality, c.content, c.confidence, c.parent_chunk_id, c.metadata
		FROM chunks_fts f
		JOIN chunks c ON c.rowid = f.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []chunk.Chunk
	for rows.Next() {
		var rowID int64
		var c chunk.Chunk
		var sourceType, modality string
		var parentID, metaJSON sql.NullString
		if err := rows.Scan(&rowID, &c.ID, &c.SourceFile, &sourceType, &modality,
			&c.Content, &c.Confidence, &parentID, &metaJSON); err != nil {
			return nil, err
		}
		c.SourceType = chunk.SourceType(sourceType)
		c.Modality = chunk.Modality(modality)
		if metaJSON.Valid && metaJSON.String != "" {
			json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
		}
		if parentID.Valid {
			c.Metadata.ParentChunkID = parentID.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns a single chunk by id, used to resolve an OCR chunk's
// parent_chunk_id reference.
func (s *Store) Get(ctx context.Context, id string) (chunk.Chunk, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT rowid, id, source_file, source_type, modality, content, confidence, parent_chunk_id, metadata
		FROM chunks WHERE id = ?
	`, id)
	var rowID int64
	var c chunk.Chunk
	var sourceType, modality string
	var parentID, metaJSON sql.NullString
	err := row.Scan(&rowID, &c.ID, &c.SourceFile, &sourceType, &modality, &c.Content, &c.Confidence, &parentID, &metaJSON)
	if err == sql.ErrNoRows {
		return chunk.Chunk{}, false, nil
	}
	if err != nil {
		return chunk.Chunk{}, false, err
	}
	c.SourceType = chunk.SourceType(sourceType)
	c.Modality = chunk.Modality(modality)
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
	}
	if parentID.Valid {
		c.Metadata.ParentChunkID = parentID.String
	}
	return c, true, nil
}

// Delete removes every chunk matching filter, cascading to its vector and
// FTS rows via the rowid-keyed virtual tables.
func (s *Store) Delete(ctx context.Context, filter Filter) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := "SELECT rowid FROM chunks WHERE 1=1"
		var args []any
		if filter.SourceFile != "" {
			query += " AND source_file = ?"
			args = append(args, filter.SourceFile)
		}
		if filter.Modality != "" {
			query += " AND modality = ?"
			args = append(args, string(filter.Modality))
		}

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		var rowIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			rowIDs = append(rowIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range rowIDs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE chunk_rowid = ?", id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE rowid = ?", id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset drops every chunk in the corpus, leaving the store immediately
// usable and empty.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM vec_chunks",
			"DELETE FROM chunks",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of chunks currently stored.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// CountByModality returns per-modality chunk counts.
func (s *Store) CountByModality(ctx context.Context) (map[chunk.Modality]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT modality, COUNT(*) FROM chunks GROUP BY modality")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[chunk.Modality]int{}
	for rows.Next() {
		var modality string
		var n int
		if err := rows.Scan(&modality, &n); err != nil {
			return nil, err
		}
		out[chunk.Modality(modality)] = n
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec's vec0 storage format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
