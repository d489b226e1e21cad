package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStorage keeps run archives in a local SQLite file
type SQLiteStorage struct {
	db *sql.DB
}

// Ensure SQLiteStorage implements StorageInterface
var _ StorageInterface = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (creating if needed) the archive database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	_, err = db.Exec(`
    CREATE TABLE IF NOT EXISTS archive (
        name TEXT PRIMARY KEY,
        data BLOB NOT NULL,
        content_type TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '{}',
        stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive table: %w", err)
	}

	logrus.Infof("Using run archive database at %s", dbPath)
	return &SQLiteStorage{db: db}, nil
}

// Store saves obj under its name, replacing any previous value
func (s *SQLiteStorage) Store(obj Object) error {
	metadata := obj.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", obj.Name, err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO archive (name, data, content_type, metadata) VALUES (?, ?, ?, ?)`,
		obj.Name, obj.Data, obj.ContentType, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", obj.Name, err)
	}
	logrus.Debugf("Stored %s in archive database", obj.Name)
	return nil
}

// Retrieve returns the data stored under filename
func (s *SQLiteStorage) Retrieve(filename string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM archive WHERE name = ?`, filename).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archive entry %s not found", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return data, nil
}

// List returns the names starting with prefix
func (s *SQLiteStorage) List(prefix string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM archive WHERE substr(name, 1, ?) = ? ORDER BY name`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan archive name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes filename; deleting a missing entry is not an error
func (s *SQLiteStorage) Delete(filename string) error {
	if _, err := s.db.Exec(`DELETE FROM archive WHERE name = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return nil
}

// Close releases the database handle
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
