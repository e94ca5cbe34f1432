package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunnerOutcomes(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		extractor ExtractorFunc
		wantKind  OutcomeKind
		wantErr   error
	}{
		{
			name:      "Success",
			extractor: func(context.Context, ExtractJob) error { return nil },
			wantKind:  OutcomeSuccess,
		},
		{
			name:      "Error",
			extractor: func(context.Context, ExtractJob) error { return boom },
			wantKind:  OutcomeError,
			wantErr:   boom,
		},
		{
			name: "Cooperative timeout",
			extractor: func(ctx context.Context, _ ExtractJob) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantKind: OutcomeTimeout,
			wantErr:  context.DeadlineExceeded,
		},
		{
			name: "Extractor ignores deadline",
			extractor: func(context.Context, ExtractJob) error {
				time.Sleep(200 * time.Millisecond)
				return nil
			},
			wantKind: OutcomeTimeout,
			wantErr:  context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.extractor, 20*time.Millisecond)

			out := r.Run(context.Background(), ExtractJob{ID: "abc"})

			assert.Equal(t, tt.wantKind, out.Kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			} else {
				assert.NoError(t, out.Err)
			}
			assert.Less(t, out.Duration, 150*time.Millisecond)
		})
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	r := NewRunner(ExtractorFunc(func(context.Context, ExtractJob) error {
		panic("index out of range")
	}), time.Second)

	out := r.Run(context.Background(), ExtractJob{ID: "abc"})
	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Err.Error(), "index out of range")
}

func TestRunnerParentCancelIsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(ExtractorFunc(func(ctx context.Context, _ ExtractJob) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}), time.Second)

	out := r.Run(ctx, ExtractJob{ID: "abc"})
	assert.Equal(t, OutcomeError, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestRunnerDefaultTimeout(t *testing.T) {
	r := NewRunner(ExtractorFunc(succeed), 0)
	assert.Equal(t, DefaultMaxProcessingTime, r.Timeout())
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "error", OutcomeError.String())
	assert.Equal(t, "OutcomeKind(9)", OutcomeKind(9).String())
}
