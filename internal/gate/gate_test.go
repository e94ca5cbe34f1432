package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/docqueue/pkg/types"
)

type countingClassifier struct {
	calls  int
	result Classification
	err    error
}

func (c *countingClassifier) Classify(context.Context, string, types.TaskID) (Classification, error) {
	c.calls++
	return c.result, c.err
}

func TestAccepted(t *testing.T) {
	tests := []struct {
		docType string
		want    bool
	}{
		{"", true},
		{"Facesheet", true},
		{"FACESHEETS", true},
		{"f2f", true},
		{"F2F Notes", true},
		{"POC", true},
		{"invoice", false},
		{"f2f-notes", false},
		{" facesheet", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Accepted(tt.docType), "doc_type %q", tt.docType)
	}
}

func TestEvaluateFastRejectSkipsClassifier(t *testing.T) {
	c := &countingClassifier{result: Classification{Facesheet: 3}}
	g := New(c)

	for _, docType := range []string{"invoice", "lab report", "xray"} {
		d, err := g.Evaluate(context.Background(), "abc", docType, "uploads/abc.pdf")
		require.NoError(t, err)
		assert.False(t, d.Accept)
		assert.False(t, d.Classified)
		assert.Equal(t, ReasonUnsupportedType, d.Reason)
	}
	assert.Equal(t, 0, c.calls, "classifier must not run on fast reject")
}

func TestEvaluateZeroCountsRejects(t *testing.T) {
	c := &countingClassifier{result: Classification{Documents: []types.DocumentMeta{{Index: 0, Type: "other"}}}}
	d, err := New(c).Evaluate(context.Background(), "abc", "", "uploads/abc.pdf")
	require.NoError(t, err)

	assert.False(t, d.Accept)
	assert.True(t, d.Classified)
	assert.Equal(t, ReasonNoQualifying, d.Reason)
	assert.Equal(t, 1, c.calls)
}

func TestEvaluateAcceptSetsFlags(t *testing.T) {
	tests := []struct {
		name                string
		result              Classification
		facesheet, f2f, poc bool
	}{
		{"facesheet only", Classification{Facesheet: 1}, true, false, false},
		{"f2f and poc", Classification{F2F: 2, POC: 1}, false, true, true},
		{"all three", Classification{Facesheet: 1, F2F: 1, POC: 4}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.result.Documents = []types.DocumentMeta{{Index: 0, Type: "facesheet", StartPage: 1, EndPage: 1}}
			d, err := New(&countingClassifier{result: tt.result}).Evaluate(context.Background(), "abc", "Facesheet", "p")
			require.NoError(t, err)
			require.True(t, d.Accept)

			var rec types.TaskRecord
			d.Apply(&rec)
			assert.Equal(t, tt.facesheet, rec.Facesheet)
			assert.Equal(t, tt.f2f, rec.F2F)
			assert.Equal(t, tt.poc, rec.POC)
			assert.Equal(t, tt.result.Documents, rec.Documents)
		})
	}
}

func TestEvaluateClassifierError(t *testing.T) {
	boom := errors.New("model unavailable")
	_, err := New(&countingClassifier{err: boom}).Evaluate(context.Background(), "abc", "poc", "p")
	assert.ErrorIs(t, err, boom)
}

func TestEvaluateNegativeCount(t *testing.T) {
	_, err := New(&countingClassifier{result: Classification{F2F: -1}}).Evaluate(context.Background(), "abc", "", "p")
	assert.Error(t, err)
}

func TestApplyIgnoresFastReject(t *testing.T) {
	rec := types.TaskRecord{Facesheet: true}
	Decision{Reason: ReasonUnsupportedType}.Apply(&rec)
	assert.True(t, rec.Facesheet)
	assert.Nil(t, rec.Documents)
}

func TestClassifierFunc(t *testing.T) {
	var got types.TaskID
	f := ClassifierFunc(func(_ context.Context, _ string, id types.TaskID) (Classification, error) {
		got = id
		return Classification{POC: 1}, nil
	})
	d, err := New(f).Evaluate(context.Background(), "xyz", "", "p")
	require.NoError(t, err)
	assert.True(t, d.Accept)
	assert.Equal(t, types.TaskID("xyz"), got)
}
