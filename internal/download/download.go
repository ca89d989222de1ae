// Package download delivers generated documents: as an HTTP attachment, as
// a file in a directory, or into a CalDAV collection.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// Saver is the "save text as file" capability. The encoder produces bytes
// and a suggested file name; a Saver decides where they go.
type Saver interface {
	Save(ctx context.Context, data []byte, filename, mimeType string) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, data []byte, filename, mimeType string) error

func (f SaverFunc) Save(ctx context.Context, data []byte, filename, mimeType string) error {
	return f(ctx, data, filename, mimeType)
}

// HTTPSaver answers an HTTP request with the document as an attachment, so
// the browser offers it as a download.
type HTTPSaver struct {
	w http.ResponseWriter
}

// NewHTTPSaver wraps the response writer of a single request.
func NewHTTPSaver(w http.ResponseWriter) *HTTPSaver {
	return &HTTPSaver{w: w}
}

func (s *HTTPSaver) Save(_ context.Context, data []byte, filename, mimeType string) error {
	h := s.w.Header()
	h.Set("Content-Type", mime.FormatMediaType(mimeType, map[string]string{"charset": "utf-8"}))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	s.w.WriteHeader(http.StatusOK)

	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("download: write response: %w", err)
	}
	return nil
}

// WriterSaver writes the raw document to w, ignoring the file name.
type WriterSaver struct {
	W io.Writer
}

func (s WriterSaver) Save(_ context.Context, data []byte, _, _ string) error {
	_, err := s.W.Write(data)
	return err
}

// FileSaver writes documents into Dir.
type FileSaver struct {
	Dir string
}

// NewFileSaver returns a FileSaver for dir. The directory is created on
// first save.
func NewFileSaver(dir string) *FileSaver {
	return &FileSaver{Dir: dir}
}

// Path returns where filename would be written. Any directory part of
// filename is dropped.
func (s *FileSaver) Path(filename string) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("download: invalid file name %q", filename)
	}
	return filepath.Join(s.Dir, base), nil
}

// Save writes atomically: temp file in the same directory, then rename.
func (s *FileSaver) Save(_ context.Context, data []byte, filename, _ string) error {
	if s.Dir == "" {
		return errors.New("download: output directory is empty")
	}
	target, err := s.Path(filename)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("download: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".icsgen-*.tmp")
	if err != nil {
		return fmt.Errorf("download: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("download: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("download: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("download: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("download: chmod: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("download: rename: %w", err)
	}
	return nil
}
