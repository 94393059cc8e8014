package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxharvest/internal/config"
	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/ledger"
	"github.com/teemow/inboxharvest/internal/logging"
	"github.com/teemow/inboxharvest/internal/server"
	"github.com/teemow/inboxharvest/internal/tools/harvest_tools"
)

const serverInstructions = `Tools for saving invoice and receipt attachments from the user's Gmail mailbox.
Use build_search_query to preview the search, then harvest_attachments to download.
Files are written under a fixed output directory; the result reports how many were saved.`

func newServeCmd() *cobra.Command {
	var (
		output      outputFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on stdio, exposing the
harvest_attachments and build_search_query tools to AI assistants.

The server never runs the interactive authorization flow: store a token with
'inboxharvest auth' first. Logs go to stderr; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			output.apply(cfg, flags.Changed)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg, logger, metricsAddr)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&output.out, "out", "o", "downloads", "Output directory for harvested attachments")
	fs.BoolVar(&output.skipExisting, "skip-existing", false, "Do not fetch attachments whose file already exists")
	fs.StringVar(&output.ledger, "ledger", "", "SQLite file recording every download and run")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, metricsAddr string) error {
	provider, err := newInstrumentation(ctx, metricsAddr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	if metricsAddr != "" {
		stop, err := startMetricsServer(ctx, metricsAddr, provider, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	var recorder harvest.Recorder
	if cfg.Output.Ledger != "" {
		l, err := ledger.Open(cfg.Output.Ledger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer l.Close()
		recorder = l
	}

	root, err := filepath.Abs(cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	opts, err := cfg.QueryOptions()
	if err != nil {
		return err
	}

	mcpSrv := mcpserver.NewMCPServer("inboxharvest", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	err = harvest_tools.RegisterHarvestTools(mcpSrv, harvest_tools.Config{
		Service: func(ctx context.Context) (harvest.MailService, error) {
			client, err := openMailbox(ctx, cfg, logger, metrics, false)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		OutputDir:    root,
		PageSize:     cfg.Search.PageSize,
		SkipExisting: cfg.Output.SkipExisting,
		Query:        opts,
		Policy:       cfg.Policy(),
		Ledger:       recorder,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	logger.Info("starting MCP server", "transport", "stdio", "output_root", root)
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
