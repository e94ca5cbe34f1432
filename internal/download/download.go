// ============================================================================
// docqueue Download - fetch source PDFs into the upload directory
// ============================================================================
//
// Package: internal/download
// File: download.go
// Purpose: copy a document from its URL to uploads/{id}.pdf
//
// Sources:
//   - http(s)://...      HTTP GET (HTTP)
//   - s3://bucket/key    S3 GetObject (S3, aws-sdk-go-v2)
//
// Router dispatches on the URL scheme.
//
// Writes are atomic: the body is streamed to a temp file in the destination
// directory and renamed into place, so a failed download never leaves a
// partial PDF behind.
//
// ============================================================================

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrUnsupportedScheme is returned for URLs no downloader handles.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// Downloader copies the document at url to dest.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Func adapts a function to Downloader.
type Func func(ctx context.Context, url, dest string) error

// Download calls f.
func (f Func) Download(ctx context.Context, url, dest string) error {
	return f(ctx, url, dest)
}

// StatusError is a non-2xx response from the source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.Code)
}

// ============================================================================
// HTTP
// ============================================================================

// HTTP downloads http and https URLs.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP downloader. A non-positive timeout means 60s.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{client: &http.Client{Timeout: timeout}}
}

// Download performs the GET and writes the body to dest.
func (h *HTTP) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return writeFile(dest, resp.Body)
}

// ============================================================================
// Router
// ============================================================================

// Router picks a Downloader by URL scheme.
type Router struct {
	http Downloader
	s3   Downloader
}

// NewRouter creates a Router. A nil s3 downloader disables s3:// sources.
func NewRouter(httpDownloader, s3Downloader Downloader) *Router {
	return &Router{http: httpDownloader, s3: s3Downloader}
}

// Download dispatches url to the matching downloader.
func (r *Router) Download(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.http != nil {
			return r.http.Download(ctx, rawURL, dest)
		}
	case "s3":
		if r.s3 != nil {
			return r.s3.Download(ctx, rawURL, dest)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// writeFile streams body into dest through a temp file and rename.
func writeFile(dest string, body io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
