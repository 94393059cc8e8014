package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxharvest/internal/config"
	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/instrumentation"
	"github.com/teemow/inboxharvest/internal/ledger"
	"github.com/teemow/inboxharvest/internal/logging"
	"github.com/teemow/inboxharvest/internal/query"
	"github.com/teemow/inboxharvest/internal/server"
	"github.com/teemow/inboxharvest/internal/storage"
)

// outputFlags describe where and what to save.
type outputFlags struct {
	out          string
	allTypes     bool
	extensions   []string
	pageSize     int
	limit        int
	skipExisting bool
	ledger       string
}

func (f *outputFlags) apply(cfg *config.Config, changed func(string) bool) {
	if changed("out") {
		cfg.Output.Dir = f.out
	}
	if changed("all-types") {
		cfg.Output.AllTypes = f.allTypes
	}
	if changed("ext") {
		cfg.Output.Extensions = parseKeywords(f.extensions)
	}
	if changed("page-size") {
		cfg.Search.PageSize = f.pageSize
	}
	if changed("limit") {
		cfg.Search.Limit = f.limit
	}
	if changed("skip-existing") {
		cfg.Output.SkipExisting = f.skipExisting
	}
	if changed("ledger") {
		cfg.Output.Ledger = f.ledger
	}
}

func newHarvestCmd() *cobra.Command {
	var (
		search      searchFlags
		output      outputFlags
		jsonOutput  bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Download invoice and receipt attachments",
		Long: `Search the mailbox for messages that look like invoices or receipts and save
their attachments under the output directory as <out>/<message-id>/<filename>.

By default only PDFs and images (pdf, png, jpg, jpeg) are kept; use --all-types
to keep everything or --ext to choose the extensions. Running again with the
same filter rewrites the same files; --skip-existing avoids fetching them.

The first run opens an authorization URL when no token is stored and stdin is
a terminal. Otherwise run 'inboxharvest auth' first.`,
		Example: `  inboxharvest harvest --out ~/receipts
  inboxharvest --newer-than 6m --keyword invoice --keyword statement
  inboxharvest harvest --query 'from:billing@example.com' --all-types --json`,
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
			opts, err := search.options(cfg, flags.Changed)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			summary, err := runHarvest(ctx, cfg, opts, logger, metricsAddr)
			if err != nil {
				logger.Error("harvest failed", "outcome", harvest.Classify(err).String(), logging.Err(err))
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary, jsonOutput)
		},
	}

	fs := cmd.Flags()
	search.bind(fs)
	fs.StringVarP(&output.out, "out", "o", "downloads", "Output directory")
	fs.BoolVar(&output.allTypes, "all-types", false, "Keep every attachment type, not only PDFs and images")
	fs.StringSliceVar(&output.extensions, "ext", nil, "File extensions to keep (repeatable or comma-separated)")
	fs.IntVar(&output.pageSize, "page-size", harvest.DefaultPageSize, "Messages requested per listing page (max 500)")
	fs.IntVar(&output.limit, "limit", 0, "Process at most this many messages (0 means all)")
	fs.BoolVar(&output.skipExisting, "skip-existing", false, "Do not fetch attachments whose file already exists")
	fs.StringVar(&output.ledger, "ledger", "", "SQLite file recording every download and run")
	fs.BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")

	return cmd
}

func runHarvest(ctx context.Context, cfg *config.Config, opts query.Options, logger *slog.Logger, metricsAddr string) (harvest.RunSummary, error) {
	provider, err := newInstrumentation(ctx, metricsAddr)
	if err != nil {
		return harvest.RunSummary{}, err
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
			return harvest.RunSummary{}, err
		}
		defer stop()
	}

	var recorder harvest.Recorder
	if cfg.Output.Ledger != "" {
		l, err := ledger.Open(cfg.Output.Ledger)
		if err != nil {
			return harvest.RunSummary{}, fmt.Errorf("failed to open ledger: %w", err)
		}
		defer l.Close()
		recorder = l
	}

	client, err := openMailbox(ctx, cfg, logger, metrics, true)
	if err != nil {
		return harvest.RunSummary{}, err
	}

	root, err := filepath.Abs(cfg.Output.Dir)
	if err != nil {
		return harvest.RunSummary{}, fmt.Errorf("invalid output directory: %w", err)
	}
	writer := storage.NewWriter(root)
	writer.SkipExisting = cfg.Output.SkipExisting

	h := harvest.New(client, writer,
		harvest.WithLogger(logger),
		harvest.WithPageSize(cfg.Search.PageSize),
		harvest.WithLimit(cfg.Search.Limit),
		harvest.WithLedger(recorder),
		harvest.WithMetrics(metrics),
		harvest.WithProgress(func(p harvest.Progress) {
			logger.Debug("message processed",
				logging.MessageID(p.MessageID),
				"index", p.Index,
				"total", p.Total,
				"written", p.Outcome.Written)
		}),
	)
	return h.Run(ctx, opts, cfg.Policy())
}

// startMetricsServer serves /metrics until the returned func is called.
func startMetricsServer(ctx context.Context, addr string, provider *instrumentation.Provider, logger *slog.Logger) (func(), error) {
	ms, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := ms.Listen(); err != nil {
		return nil, err
	}

	go func() {
		if err := ms.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()
	end := ms.Health().Begin()

	return func() {
		end()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
		defer cancel()
		if err := ms.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", logging.Err(err))
		}
	}, nil
}

func printSummary(w io.Writer, s harvest.RunSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, s)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Messages matched:\t%d\n", s.MessagesMatched)
	fmt.Fprintf(tw, "Messages with files:\t%d\n", s.MessagesWithFiles)
	fmt.Fprintf(tw, "Files downloaded:\t%d\n", s.FilesDownloaded)
	if s.FilesSkipped > 0 {
		fmt.Fprintf(tw, "  already on disk:\t%d\n", s.FilesSkipped)
	}
	if s.AttachmentsRejected > 0 {
		fmt.Fprintf(tw, "Attachments rejected:\t%d\n", s.AttachmentsRejected)
	}
	if s.DataGaps > 0 {
		fmt.Fprintf(tw, "Empty attachments:\t%d\n", s.DataGaps)
	}
	fmt.Fprintf(tw, "Bytes written:\t%s\n", humanize.IBytes(uint64(s.BytesWritten)))
	fmt.Fprintf(tw, "Output:\t%s\n", s.OutputRoot)
	return tw.Flush()
}
