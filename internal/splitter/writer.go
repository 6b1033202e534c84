package splitter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrNoDate is returned for a block that was never opened by a header.
	// Such content has no day to be filed under and is not written.
	ErrNoDate = errors.New("block has no date")

	// ErrInvalidDate is returned for a date not shaped YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid block date")

	// ErrInvalidName is returned for a source name that would resolve
	// outside the output root.
	ErrInvalidName = errors.New("invalid source name")
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Writer persists daily blocks under an output root.
type Writer struct {
	root     string
	permFile os.FileMode
	permDir  os.FileMode
}

// NewWriter creates a Writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{root: root, permFile: 0o644, permDir: 0o755}
}

// Path returns the file a block for (name, date) is written to.
func (w *Writer) Path(name, date string) (string, error) {
	if date == "" {
		return "", ErrNoDate
	}
	if !datePattern.MatchString(date) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	year, month := date[0:4], date[5:7]
	return filepath.Join(w.root, rel, year, month, date+".txt"), nil
}

// Persist replaces the day file for (name, date) with content. Empty
// content is a no-op. The month directory is created if missing; creation
// is idempotent so two workers filing different days of one month can race
// on it safely.
func (w *Writer) Persist(name, date, content string) error {
	if content == "" {
		return nil
	}
	dest, err := w.Path(name, date)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, w.permDir); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := w.replace(dir, dest, content); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

// replace writes content to a temp file beside dest and renames it over
// dest, so readers see either the previous day file or the new one.
func (w *Writer) replace(dir, dest, content string) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permFile)

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// cleanName rejects names that are empty, absolute, or climb out of the
// root.
func cleanName(name string) (string, error) {
	rel := filepath.Clean(name)
	if rel == "." || rel == "" || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return rel, nil
}
