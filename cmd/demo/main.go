// Command demo runs docqueue in-process against simulated model services
// and prints the queue draining. Nothing leaves the machine.
//
//	go run ./cmd/demo            # five mixed uploads
//	go run ./cmd/demo -n 20      # twenty uploads
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ChuLiYu/docqueue/internal/download"
	"github.com/ChuLiYu/docqueue/internal/gate"
	"github.com/ChuLiYu/docqueue/internal/logging"
	"github.com/ChuLiYu/docqueue/internal/service"
	"github.com/ChuLiYu/docqueue/internal/worker"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

func main() {
	n := flag.Int("n", 5, "number of uploads")
	maxTime := flag.Duration("max-processing-time", 800*time.Millisecond, "extraction bound")
	flag.Parse()

	dir, err := os.MkdirTemp("", "docqueue-demo-")
	if err != nil {
		log.Fatalf("Failed to create work dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	logger := logging.New("warn", "text")

	svc, err := service.New(service.Config{
		UploadDir:         filepath.Join(dir, "uploads"),
		ResultDir:         filepath.Join(dir, "results"),
		MaxProcessingTime: *maxTime,
	}, service.Deps{
		Classifier: gate.ClassifierFunc(classify),
		Extractor:  worker.ExtractorFunc(extract),
		Downloader: download.Func(fakeDownload),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docTypes := []string{"facesheet", "f2f", "poc", "", "invoice"}
	var ids []types.TaskID
	for i := 0; i < *n; i++ {
		req := types.UploadRequest{
			ID: fmt.Sprintf("demo-%03d", i+1),
			Documents: []types.Document{{
				DocURL:  fmt.Sprintf("https://example.invalid/docs/%03d.pdf", i+1),
				DocType: docTypes[i%len(docTypes)],
			}},
		}
		res, err := svc.Upload(ctx, req)
		if err != nil {
			fmt.Printf("✗ upload %s: %v\n", req.ID, err)
			continue
		}
		ids = append(ids, res.TaskIDs...)
	}
	fmt.Printf("✓ Uploaded %d documents\n\n", len(ids))

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		stats := svc.Stats()
		fmt.Printf("📊 queued=%d classification=%d processing=%d completed=%d failed=%d\n",
			stats[types.StatusQueued], stats[types.StatusClassification], stats[types.StatusProcessing],
			stats[types.StatusCompleted], stats[types.StatusFailed])
		if stats[types.StatusCompleted]+stats[types.StatusFailed] == len(ids) {
			break
		}
		select {
		case <-ctx.Done():
			fmt.Println("\nReceived shutdown signal, stopping gracefully...")
			break loop
		case <-ticker.C:
		}
	}

	fmt.Println()
	for _, id := range ids {
		view := svc.Status(id)
		out, _ := json.Marshal(struct {
			Status  string   `json:"status"`
			Message string   `json:"message"`
			Elapsed *float64 `json:"elapsed_seconds"`
			Result  any      `json:"result,omitempty"`
		}{view.Status, view.Record.Message, view.TimingInfo.ElapsedSeconds, view.Result})
		fmt.Printf("%s %s\n", id, out)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	fmt.Println("\n✓ Service stopped")
}

func fakeDownload(_ context.Context, _, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("%PDF-1.7 demo"), 0o644)
}

// classify finds nothing in ids ending in 4 so the gate rejects them.
func classify(_ context.Context, _ string, id types.TaskID) (gate.Classification, error) {
	time.Sleep(50 * time.Millisecond)
	if len(id) > 0 && id[len(id)-1] == '4' {
		return gate.Classification{}, nil
	}
	return gate.Classification{Facesheet: 1, POC: 1}, nil
}

// extract takes a random time, so some runs overrun the bound.
func extract(ctx context.Context, job worker.ExtractJob) error {
	select {
	case <-time.After(time.Duration(200+rand.Intn(800)) * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := job.Scratch("SIMULATED OCR TEXT"); err != nil {
		return err
	}
	return job.Results.SaveJSON(map[string]any{
		"task_id":  job.ID,
		"doc_type": job.Record.DocType,
		"patient":  map[string]string{"name": "Jane Doe"},
	})
}
