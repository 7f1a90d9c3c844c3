package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// ClientOptions holds flags shared by commands that query a running server.
type ClientOptions struct {
	*RootOptions
	Server  string
	Timeout time.Duration
}

func addClientFlags(cmd *cobra.Command, opts *ClientOptions) {
	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8890", "base URL of a running nodom server")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot [namespace]",
		Short: "Print a cache namespace from a running server",
		Long: `Fetch the canonical JSON snapshot of a cache namespace ("data" or "layout")
from a running server. The namespace defaults to data.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := "data"
			if len(args) == 1 {
				ns = args[0]
			}
			return runSnapshot(opts, ns, cmd)
		},
	}
	addClientFlags(cmd, opts)
	return cmd
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "journal <session-id>",
		Short:         "Print the statements a session has run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args[0], cmd)
		},
	}
	addClientFlags(cmd, opts)
	return cmd
}

func runSnapshot(opts *ClientOptions, ns string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	body, err := fetch(cmd.Context(), opts, "/api/"+url.PathEscape(ns))
	if err != nil {
		return clientError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(json.RawMessage(body))
	}
	fmt.Fprintln(formatter.Writer, string(body))
	return nil
}

func runJournal(opts *ClientOptions, sessionID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	body, err := fetch(cmd.Context(), opts, "/ui/duckjournal/"+url.PathEscape(sessionID))
	if err != nil {
		return clientError(formatter, err)
	}

	statements := []string{}
	if text := strings.TrimSuffix(string(body), "\n"); text != "" {
		statements = strings.Split(text, "\n")
	}
	return formatter.Lines(statements, map[string]any{
		"session_id": sessionID,
		"statements": statements,
	})
}

// statusError is a non-200 reply from the server.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func fetch(ctx context.Context, opts *ClientOptions, path string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(opts.Server, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func clientError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeUnreachable, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeUnreachable, err)
}
