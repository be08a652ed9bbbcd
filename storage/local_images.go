package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const downloadTimeout = 30 * time.Second

// LocalImageStore downloads remote images into a local directory served as
// static files. Filenames are content-addressed by source URL so the same
// source never produces two files.
type LocalImageStore struct {
	dir     string
	baseURL string
	client  *http.Client
}

// NewLocalImageStore creates a store rooted at dir; stored files are
// reachable under baseURL.
func NewLocalImageStore(dir, baseURL string) *LocalImageStore {
	return &LocalImageStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: downloadTimeout},
	}
}

// DownloadAndStore fetches sourceURL and writes it under dir/folder,
// returning the stable public URL of the stored file.
func (s *LocalImageStore) DownloadAndStore(ctx context.Context, sourceURL, folder string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("image store: build request for %q: %w", sourceURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image store: fetch %q: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image store: fetch %q: unexpected status %s", sourceURL, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("image store: %q is not an image (content-type %s)", sourceURL, contentType)
	}

	name := storedFileName(sourceURL, contentType)
	destDir := filepath.Join(s.dir, folder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("image store: create dir %q: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, name)
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("image store: create %q: %w", destPath, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(destPath)
		return "", fmt.Errorf("image store: write %q: %w", destPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("image store: close %q: %w", destPath, err)
	}

	return s.baseURL + "/" + folder + "/" + name, nil
}

// storedFileName derives a stable filename from the source URL, keeping a
// sensible extension.
func storedFileName(sourceURL, contentType string) string {
	sum := sha1.Sum([]byte(sourceURL))
	ext := strings.ToLower(path.Ext(strippedPath(sourceURL)))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".avif":
	default:
		switch contentType {
		case "image/png":
			ext = ".png"
		case "image/webp":
			ext = ".webp"
		case "image/avif":
			ext = ".avif"
		default:
			ext = ".jpg"
		}
	}
	return hex.EncodeToString(sum[:]) + ext
}

func strippedPath(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
