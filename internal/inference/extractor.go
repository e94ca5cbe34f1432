package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/docqueue/internal/validate"
	"github.com/ChuLiYu/docqueue/internal/worker"
)

// Extractor is a worker.Extractor backed by the extraction service.
//
// The request carries the detected segments as the "documents" form field.
// The response is either {"ocr": "...", "result": {...}} or the bare result
// object; ocr goes to the task scratch field and result to results/{id}.json.
type Extractor struct {
	client client
}

// NewExtractor creates an Extractor posting to url.
func NewExtractor(url string, timeout time.Duration, logger *slog.Logger) *Extractor {
	return &Extractor{client: newClient(url, timeout, logger)}
}

type extractionResponse struct {
	OCR    *string         `json:"ocr"`
	Result json.RawMessage `json:"result"`
}

// Extract runs one extraction and persists its result.
func (e *Extractor) Extract(ctx context.Context, job worker.ExtractJob) error {
	segments, err := json.Marshal(job.Record.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	raw, err := e.client.postFile(ctx, job.SourcePath, map[string]string{
		"task_id":   string(job.ID),
		"doc_type":  job.Record.DocType,
		"documents": string(segments),
	})
	if err != nil {
		return err
	}
	if err := validate.Extraction(raw); err != nil {
		return fmt.Errorf("extraction response: %w", err)
	}

	var resp extractionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode extraction response: %w", err)
	}

	if resp.OCR != nil && job.Scratch != nil {
		if err := job.Scratch(*resp.OCR); err != nil {
			return fmt.Errorf("store ocr text: %w", err)
		}
	}

	result := raw
	if len(resp.Result) > 0 && !bytes.Equal(bytes.TrimSpace(resp.Result), []byte("null")) {
		if err := validate.Extraction(resp.Result); err != nil {
			return fmt.Errorf("extraction result: %w", err)
		}
		result = resp.Result
	}
	return job.Results.Save(result)
}
