package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bapaynter/commtrack/internal/models"
)

// StorageError reports a read or write failure against the backing file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FileDB keeps the whole commission collection in one JSON document.
type FileDB struct {
	Path string
}

func NewFileDB(path string) (*FileDB, error) {
	if path == "" {
		return nil, errors.New("store: data path is required")
	}
	db := &FileDB{Path: path}
	// Make sure the file exists up front so a bad path fails at startup.
	if _, err := db.Load(); err != nil {
		return nil, err
	}
	return db, nil
}

// Load reads the collection. A missing file is created empty; a file that
// cannot be parsed is logged and treated as empty.
func (db *FileDB) Load() ([]models.Commission, error) {
	data, err := os.ReadFile(db.Path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := db.Save(nil); err != nil {
			return nil, err
		}
		return []models.Commission{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: db.Path, Err: err}
	}

	var records []models.Commission
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Error("Error reading database, treating as empty", "path", db.Path, "error", err)
		return []models.Commission{}, nil
	}
	if records == nil {
		records = []models.Commission{}
	}
	for i := range records {
		records[i].Images = records[i].Images.Normalized()
	}
	return records, nil
}

// Save rewrites the whole file. The data goes to a temp file in the same
// directory first and is renamed over the target.
func (db *FileDB) Save(records []models.Commission) error {
	if records == nil {
		records = []models.Commission{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Path: db.Path, Err: err}
	}

	dir := filepath.Dir(db.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "write", Path: db.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(db.Path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: db.Path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Op: "write", Path: db.Path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "write", Path: db.Path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		slog.Warn("Failed to set database file mode", "path", tmpName, "error", err)
	}
	if err := os.Rename(tmpName, db.Path); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "write", Path: db.Path, Err: err}
	}
	return nil
}
