package envsink

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter materializes FILE_REF secrets as files under a tmpfs-backed
// directory. File names are derived deterministically from the target
// variable name, so re-running the loader on restart rewrites the same
// paths; two FILE_REF secrets colliding on a derived name is a
// configuration error, not a race.
type FileWriter struct {
	dir string
}

// NewFileWriter returns a writer rooted at dir. The directory should be
// tmpfs-backed; secret material must never land on persistent disk.
func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{dir: dir}
}

// Dir returns the root directory for written secrets.
func (w *FileWriter) Dir() string { return w.dir }

// Write stores content for the target variable and returns the file
// path. The directory is created with 0700 on first use and every file
// is written with mode 0600.
func (w *FileWriter) Write(target, content string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create secrets directory %s: %w", w.dir, err)
	}
	path := w.PathFor(target)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write secret file for %s: %w", target, err)
	}
	// WriteFile keeps pre-existing permissions; re-assert on rewrite.
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("failed to set permissions on secret file for %s: %w", target, err)
	}
	return path, nil
}

// PathFor returns the deterministic path a target variable maps to.
func (w *FileWriter) PathFor(target string) string {
	return filepath.Join(w.dir, target)
}
