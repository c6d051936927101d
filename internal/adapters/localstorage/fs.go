package localstorage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"roastbot/internal/core/domain"
)

// LocalStorage implements ports.ArtifactStore for the local filesystem.
type LocalStorage struct {
	BaseDir string
	// PublicBaseURL, when set, is the HTTP prefix under which BaseDir is
	// served. Otherwise file:// URLs are returned.
	PublicBaseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir, publicBaseURL string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// PutScreenshot saves the screenshot of a target.
func (s *LocalStorage) PutScreenshot(ctx context.Context, runID, slug string, data []byte) (string, error) {
	return s.put(ctx, domain.ArtifactKey(runID, slug, domain.ScreenshotFile), data)
}

// PutTrace saves the trace of a target.
func (s *LocalStorage) PutTrace(ctx context.Context, runID, slug string, data []byte) (string, error) {
	return s.put(ctx, domain.ArtifactKey(runID, slug, domain.TraceFile), data)
}

func (s *LocalStorage) put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", key, err)
	}
	return s.URL(key)
}

// Path returns the filesystem path for a storage key.
func (s *LocalStorage) Path(key string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(key))
}

// URL returns the retrievable location of key.
func (s *LocalStorage) URL(key string) (string, error) {
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL + "/" + key, nil
	}
	abs, err := filepath.Abs(s.Path(key))
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
