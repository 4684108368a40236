package store

import (
	"database/sql"
	"errors"
)

// SetMetadata upserts a key-value pair in the import_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO import_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM import_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the recorded content hash for a template file.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	return s.GetMetadata("template_file:" + path)
}

// SetImportedFileHash records the content hash of an imported template file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	return s.SetMetadata("template_file:"+path, hash)
}
