// ============================================================================
// docqueue Classification Gate
// ============================================================================
//
// Package: internal/gate
// File: gate.go
// Purpose: decide whether a dequeued task proceeds to extraction
//
// Policy:
//   1. Declared doc_type outside the accepted set → reject, classifier skipped
//   2. Classify uploads/{id}.pdf → counts + per-segment metadata
//   3. Flags follow the counts (facesheet, f2f, poc)
//   4. All counts zero → reject
//   5. Otherwise accept
//
// ============================================================================

package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

// Rejection reasons. The strings are shown to clients through /status.
const (
	ReasonUnsupportedType = "PDF is not a facesheet or f2f or POC"
	ReasonNoQualifying    = "File is not a facesheet or F2F or POC"
)

// acceptedTypes holds the lowercase declared types that may proceed.
var acceptedTypes = map[string]struct{}{
	"f2f":        {},
	"f2f notes":  {},
	"facesheet":  {},
	"facesheets": {},
	"poc":        {},
}

// Classification is the output of one classification pass.
type Classification struct {
	Facesheet int                  `json:"facesheet"`
	F2F       int                  `json:"f2f"`
	POC       int                  `json:"poc"`
	Documents []types.DocumentMeta `json:"documents"`
}

// Empty reports whether no qualifying segment was found.
func (c Classification) Empty() bool {
	return c.Facesheet == 0 && c.F2F == 0 && c.POC == 0
}

// Classifier runs content classification over a stored PDF.
type Classifier interface {
	Classify(ctx context.Context, path string, id types.TaskID) (Classification, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, path string, id types.TaskID) (Classification, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, path string, id types.TaskID) (Classification, error) {
	return f(ctx, path, id)
}

// Decision is the gate verdict for one task.
type Decision struct {
	Accept bool
	// Reason is set when Accept is false.
	Reason string
	// Classified is false on the declared-type fast reject.
	Classified     bool
	Classification Classification
}

// Apply copies the classification result onto rec.
func (d Decision) Apply(rec *types.TaskRecord) {
	if !d.Classified {
		return
	}
	c := d.Classification
	rec.Documents = append([]types.DocumentMeta(nil), c.Documents...)
	rec.Facesheet = c.Facesheet > 0
	rec.F2F = c.F2F > 0
	rec.POC = c.POC > 0
}

// Gate combines the declared type with a Classifier.
type Gate struct {
	classifier Classifier
}

// New creates a Gate backed by classifier.
func New(classifier Classifier) *Gate {
	return &Gate{classifier: classifier}
}

// Accepted reports whether a declared doc_type may skip the fast reject.
// An empty doc_type counts as accepted.
func Accepted(docType string) bool {
	if docType == "" {
		return true
	}
	_, ok := acceptedTypes[strings.ToLower(docType)]
	return ok
}

// Evaluate runs the gate policy for one task. A classifier error is returned
// as-is; the caller decides how to surface it.
func (g *Gate) Evaluate(ctx context.Context, id types.TaskID, docType, path string) (Decision, error) {
	if !Accepted(docType) {
		return Decision{Reason: ReasonUnsupportedType}, nil
	}

	c, err := g.classifier.Classify(ctx, path, id)
	if err != nil {
		return Decision{}, fmt.Errorf("classify %s: %w", id, err)
	}
	if c.Facesheet < 0 || c.F2F < 0 || c.POC < 0 {
		return Decision{}, fmt.Errorf("classify %s: negative count in %+v", id, c)
	}

	d := Decision{Classified: true, Classification: c}
	if c.Empty() {
		d.Reason = ReasonNoQualifying
		return d, nil
	}
	d.Accept = true
	return d, nil
}
