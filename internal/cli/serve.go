package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/compiler"
	"github.com/roach88/nodom/internal/engine"
	"github.com/roach88/nodom/internal/journal"
	"github.com/roach88/nodom/internal/query"
	"github.com/roach88/nodom/internal/query/postgres"
	"github.com/roach88/nodom/internal/query/sqlite"
	"github.com/roach88/nodom/internal/server"
	"github.com/roach88/nodom/internal/service"
	"github.com/roach88/nodom/internal/session"
)

// Query engines selectable with --engine.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config     string
	Addr       string
	Engine     string
	Database   string
	DSN        string
	ParquetDir string
	ParquetURL string
	MaxChain   int

	// IDs overrides the session id generator (for testing).
	// If nil, defaults to session.UUIDGenerator.
	IDs session.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a service description to websocket clients",
		Long: `Load a CUE service description, open the query engine and accept client
sessions on /api/websock.

The default sqlite engine cannot run DuckDB SQL such as parquet_scan or
summarize. Configs that issue it, like configs/depth, still serve under sqlite
but every such query fails and the client gets an empty result. Use an engine
that understands the config's SQL for real results.

Example:
  nodom serve --config ./configs/addition
  nodom serve --config ./configs/depth --parquet-dir ./data --verbose
  nodom serve --config ./configs/depth --engine postgres --dsn postgres://localhost/nodom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "service description directory (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:8890", "listen address")
	cmd.Flags().StringVar(&opts.Engine, "engine", EngineSQLite, "query engine (sqlite|postgres)")
	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "SQLite database path")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&opts.ParquetDir, "parquet-dir", "", "directory served under /api/parquet/")
	cmd.Flags().StringVar(&opts.ParquetURL, "parquet-url", "", "base URL scan statements use for parquet files")
	cmd.Flags().IntVar(&opts.MaxChain, "max-chain", engine.DefaultMaxChain, "longest query chain one message may start (0 = unlimited)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	slog.Info("loading service description", "dir", opts.Config)
	cfg, err := compiler.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load service description", err)
	}
	table, err := cfg.Table()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid action rules", err)
	}

	var parquetFS fs.FS
	if opts.ParquetDir != "" {
		parquetFS = os.DirFS(opts.ParquetDir)
	}
	deriver, err := service.New(cfg.Service, service.Options{
		ParquetFS:  parquetFS,
		ParquetURL: opts.ParquetURL,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create service", err)
	}

	adapter, err := openAdapter(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open query engine", err)
	}
	defer func() {
		if closeErr := adapter.Close(); closeErr != nil {
			slog.Error("error closing query engine", "error", closeErr)
		}
	}()

	d := engine.NewDispatcher(
		cache.New(cfg.Layout, cfg.Data),
		journal.New(),
		engine.WithRules(table),
		engine.WithDeriver(deriver),
		engine.WithMaxChain(opts.MaxChain),
	)

	ids := opts.IDs
	if ids == nil {
		ids = session.UUIDGenerator{}
	}
	registry := session.NewRegistry(ids)
	eng := engine.New(d, adapter, registry)

	var srvOpts []server.Option
	if opts.ParquetDir != "" {
		srvOpts = append(srvOpts, server.WithParquetDir(opts.ParquetDir))
	}
	srv := &http.Server{
		Handler:           server.New(eng, registry, srvOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(ln)
	}()

	slog.Info("server starting", "addr", ln.Addr().String(), "service", cfg.Service, "engine", opts.Engine)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveDone:
		runErr = err
		cancel()
	case err := <-engineDone:
		engineDone <- err
		runErr = err
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down http server", "error", err)
	}
	if err := <-engineDone; err != nil && runErr == nil {
		runErr = err
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", runErr)
	}
	slog.Info("server stopped gracefully")
	return nil
}

func openAdapter(ctx context.Context, opts *ServeOptions) (query.Adapter, error) {
	switch opts.Engine {
	case EngineSQLite:
		slog.Info("opening sqlite", "path", opts.Database)
		a, err := sqlite.Open(opts.Database)
		if err != nil {
			return nil, err
		}
		return a, nil
	case EnginePostgres:
		if opts.DSN == "" {
			return nil, errors.New("--dsn is required with --engine postgres")
		}
		slog.Info("connecting to postgres")
		a, err := postgres.Open(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown engine %q (want %s or %s)", opts.Engine, EngineSQLite, EnginePostgres)
}
