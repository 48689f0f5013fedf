package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the local generation record: which schema content produced
// which files, per language. The CLI uses it to skip regeneration when
// nothing changed and to report stale outputs.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS generations (
	schema_path  TEXT NOT NULL,
	schema_hash  TEXT NOT NULL,
	language     TEXT NOT NULL,
	output_file  TEXT NOT NULL,
	generated_at INTEGER NOT NULL,
	PRIMARY KEY (schema_path, language, output_file)
);
`

// OpenStore opens (creating if needed) the record database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("manifest: create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open record %s: %w", path, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: init record %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record replaces the generation entries for one schema and language.
func (s *Store) Record(schemaPath, schemaHash, language string, outputs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("manifest: record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM generations WHERE schema_path = ? AND language = ?`,
		schemaPath, language,
	); err != nil {
		return fmt.Errorf("manifest: record: %w", err)
	}
	now := time.Now().Unix()
	for _, out := range outputs {
		if _, err := tx.Exec(
			`INSERT INTO generations (schema_path, schema_hash, language, output_file, generated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			schemaPath, schemaHash, language, out, now,
		); err != nil {
			return fmt.Errorf("manifest: record: %w", err)
		}
	}
	return tx.Commit()
}

// UpToDate reports whether the recorded hash for schemaPath and language
// matches schemaHash, meaning the outputs need no regeneration.
func (s *Store) UpToDate(schemaPath, schemaHash, language string) (bool, error) {
	var recorded string
	err := s.db.QueryRow(
		`SELECT schema_hash FROM generations WHERE schema_path = ? AND language = ? LIMIT 1`,
		schemaPath, language,
	).Scan(&recorded)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("manifest: query record: %w", err)
	}
	return recorded == schemaHash, nil
}

// Outputs returns the recorded output files for schemaPath and language.
func (s *Store) Outputs(schemaPath, language string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT output_file FROM generations WHERE schema_path = ? AND language = ? ORDER BY output_file`,
		schemaPath, language,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: query record: %w", err)
	}
	defer rows.Close()

	var outputs []string
	for rows.Next() {
		var out string
		if err := rows.Scan(&out); err != nil {
			return nil, fmt.Errorf("manifest: query record: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}
