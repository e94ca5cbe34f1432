package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/docqueue/internal/config"
	"github.com/ChuLiYu/docqueue/internal/storage/journal"
	"github.com/ChuLiYu/docqueue/pkg/types"
)

const (
	defaultServer  = "http://localhost:5000"
	requestTimeout = 2 * time.Minute
)

// ============================================================================
// upload
// ============================================================================

func buildUploadCommand() *cobra.Command {
	var (
		urls    []string
		docType string
		id      string
		server  string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload documents to a running server",
		Long:  "Submit one or more document URLs to POST /upload. Repeat --url for multi-document uploads.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.UploadRequest{ID: id}
			for _, u := range urls {
				req.Documents = append(req.Documents, types.Document{DocURL: u, DocType: docType})
			}
			return uploadDocuments(cmd.Context(), cmd.OutOrStdout(), server, req)
		},
	}

	cmd.Flags().StringArrayVar(&urls, "url", nil, "document URL (http, https or s3)")
	cmd.Flags().StringVar(&docType, "doc-type", "", "document type (facesheet, f2f, poc)")
	cmd.Flags().StringVar(&id, "id", "", "task id (generated by the server when empty)")
	cmd.Flags().StringVar(&server, "server", defaultServer, "docqueue base URL")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func uploadDocuments(ctx context.Context, out io.Writer, server string, req types.UploadRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode upload request: %w", err)
	}
	return call(ctx, out, http.MethodPost, endpoint(server, "/upload"), body)
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), cmd.OutOrStdout(), server, args[0])
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer, "docqueue base URL")
	return cmd
}

func showStatus(ctx context.Context, out io.Writer, server, id string) error {
	return call(ctx, out, http.MethodGet, endpoint(server, "/status/"+id), nil)
}

// ============================================================================
// history
// ============================================================================

func buildHistoryCommand() *cobra.Command {
	var journalPath string

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Print the journaled transitions of a task",
		Long:  "Replay the transition journal and print every notification recorded for the task. Use \"all\" to dump the whole journal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if journalPath == "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				journalPath = cfg.Storage.JournalPath
			}
			return showHistory(cmd.OutOrStdout(), journalPath, args[0])
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "journal file (default storage.journal_path)")
	return cmd
}

func showHistory(out io.Writer, path, id string) error {
	if id == "all" {
		return journal.Dump(path, out)
	}

	entries, err := journal.HistoryFile(path, types.TaskID(id))
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintf(out, "no history for %s\n", id)
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(out, "%s  gen=%d  %-16s %s\n",
			time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339), e.Generation, e.Status, e.Message); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// HTTP helpers
// ============================================================================

func endpoint(server, path string) string {
	return strings.TrimRight(server, "/") + path
}

// call performs the request and pretty-prints the JSON response. Non-2xx
// responses are printed and returned as an error.
func call(ctx context.Context, out io.Writer, method, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	if _, err := fmt.Fprintln(out, string(data)); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
