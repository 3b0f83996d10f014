// Package export mirrors a vector store into other formats.
package export

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    section TEXT,
    subsection TEXT,
    kind TEXT NOT NULL,
    content_length INTEGER NOT NULL,
    text TEXT NOT NULL,
    embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS store_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// OpenSQLite opens a SQLite database using the modernc.org/sqlite driver.
func OpenSQLite(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// EnsureSchema creates the export tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, chunksSchema)
	return err
}

// SQLite replaces the contents of the chunks table with c in one
// transaction. Embeddings are stored as little-endian float32 blobs; absent
// labels are NULL.
func SQLite(ctx context.Context, db *sql.DB, c *index.Corpus) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("cannot create schema: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM store_info`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(id, section, subsection, kind, content_length, text, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range c.Metadata {
		_, err := stmt.ExecContext(ctx, m.ID, nullable(m.Section), nullable(m.Subsection), string(m.Kind),
			m.ContentLength, c.Texts[i], EncodeEmbedding(c.Embeddings.Row(i)))
		if err != nil {
			return fmt.Errorf("cannot insert chunk %d: %w", m.ID, err)
		}
	}

	info := map[string]string{
		"model_id":            c.ModelID,
		"total_documents":     fmt.Sprint(c.Len()),
		"embedding_dimension": fmt.Sprint(c.Dim()),
		"build_id":            c.Info.BuildID,
	}
	for k, v := range info {
		if _, err := tx.ExecContext(ctx, `INSERT INTO store_info(key, value) VALUES (?, ?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// EncodeEmbedding packs v as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
