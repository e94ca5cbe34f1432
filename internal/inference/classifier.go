package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/docqueue/internal/gate"
	"github.com/ChuLiYu/docqueue/internal/validate"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Classifier is a gate.Classifier backed by the classification service.
//
// Response body:
//
//	{"facesheet": 1, "f2f": 0, "poc": 2,
//	 "documents": [{"index": 0, "type": "facesheet", "start_page": 1, "end_page": 2}]}
type Classifier struct {
	client client
}

// NewClassifier creates a Classifier posting to url.
func NewClassifier(url string, timeout time.Duration, logger *slog.Logger) *Classifier {
	return &Classifier{client: newClient(url, timeout, logger)}
}

// Classify sends the PDF at path and returns the segment counts.
func (c *Classifier) Classify(ctx context.Context, path string, id types.TaskID) (gate.Classification, error) {
	raw, err := c.client.postFile(ctx, path, map[string]string{"task_id": string(id)})
	if err != nil {
		return gate.Classification{}, err
	}
	if err := validate.Classification(raw); err != nil {
		return gate.Classification{}, fmt.Errorf("classifier response: %w", err)
	}

	var out gate.Classification
	if err := json.Unmarshal(raw, &out); err != nil {
		return gate.Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}
	return out, nil
}
