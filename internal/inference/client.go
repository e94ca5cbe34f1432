// ============================================================================
// docqueue Inference - HTTP clients for the model services
// ============================================================================
//
// Package: internal/inference
// File: client.go
// Purpose: reach the classification and extraction model services over HTTP
//
// Wire format:
//   POST {url}  multipart/form-data
//     file      the stored PDF
//     task_id   the task identifier
//     ...       extra form fields per service
//   X-Request-ID carries a fresh UUID so both sides can correlate logs.
//
// Responses are JSON and are schema-checked (internal/validate) before use.
//
// ============================================================================

package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// StatusError is a non-2xx answer from a model service.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.Code, e.Body)
}

// client posts documents to one model service endpoint.
type client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

func newClient(url string, timeout time.Duration, logger *slog.Logger) client {
	if logger == nil {
		logger = slog.Default()
	}
	return client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// postFile uploads the file at path with the given form fields and returns
// the raw response body.
func (c client) postFile(ctx context.Context, path string, fields map[string]string) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body, contentType, err := multipartBody(path, fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	c.logger.Debug("inference request", "req_id", reqID, "url", c.url, "content_length", body.Len())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("inference request failed", "req_id", reqID, "url", c.url, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("call %s: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("inference response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{URL: c.url, Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), 256)}
	}
	return raw, nil
}

func multipartBody(path string, fields map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to write file data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
