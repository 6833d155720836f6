// Package file implements the store interfaces over JSON files. It is the
// fallback backend when no database can be opened. Writes go through a temp
// file and rename; a failed write degrades the store to memory-only rather
// than failing the operation.
package file

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// writeJSONAtomic persists v at path via temp-file-then-rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// readJSON loads path into v. A missing file is not an error; v is left
// untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// logPersistError downgrades save failures to warnings; state stays usable
// in memory.
func logPersistError(what string, err error) {
	if err != nil {
		slog.Warn("state not persisted, continuing in memory", "store", what, "error", err)
	}
}
