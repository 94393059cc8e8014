package harvest_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/instrumentation"
	"github.com/teemow/inboxharvest/internal/logging"
	"github.com/teemow/inboxharvest/internal/query"
	"github.com/teemow/inboxharvest/internal/storage"
	"github.com/teemow/inboxharvest/internal/tools/common"
)

const (
	ToolHarvestAttachments = "harvest_attachments"
	ToolBuildSearchQuery   = "build_search_query"
)

// Config wires the tools to the rest of the process.
type Config struct {
	// Service opens the mailbox. It is called once per harvest so that an
	// expired credential surfaces as a tool error rather than at startup.
	Service func(ctx context.Context) (harvest.MailService, error)

	OutputDir    string
	PageSize     int
	SkipExisting bool

	// Query and Policy are the defaults tool arguments override.
	Query  query.Options
	Policy harvest.Policy

	Ledger  harvest.Recorder
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

type tools struct {
	cfg Config
	mu  sync.Mutex
}

// RegisterHarvestTools registers the harvest tools with the MCP server.
func RegisterHarvestTools(s *mcpserver.MCPServer, cfg Config) error {
	if cfg.Service == nil {
		return errors.New("mail service factory is required")
	}
	if cfg.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	t := &tools{cfg: cfg}

	harvestTool := mcp.NewTool(ToolHarvestAttachments,
		searchArguments(
			"Search Gmail for invoice and receipt messages and save their PDF/image attachments to the server's output directory. Returns the run summary.",
			mcp.WithBoolean("all_types",
				mcp.Description("Save every attachment type, not only PDFs and images"),
			),
			mcp.WithArray("extensions",
				mcp.Description("File extensions to keep (default: pdf, png, jpg, jpeg)"),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("limit",
				mcp.Description("Process at most this many messages (default: no limit)"),
			),
			mcp.WithBoolean("skip_existing",
				mcp.Description("Do not fetch attachments whose target file already exists"),
			),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
		)...,
	)
	s.AddTool(harvestTool, common.InstrumentedToolHandler(ToolHarvestAttachments, cfg.Metrics, cfg.Logger, t.handleHarvest))

	queryTool := mcp.NewTool(ToolBuildSearchQuery,
		searchArguments(
			"Build the Gmail search filter a harvest would use. Does not access the mailbox.",
			mcp.WithReadOnlyHintAnnotation(true),
		)...,
	)
	s.AddTool(queryTool, common.InstrumentedToolHandler(ToolBuildSearchQuery, cfg.Metrics, cfg.Logger, t.handleBuildQuery))

	s.AddTool(listAttachmentsTool(), common.InstrumentedToolHandler(ToolListAttachments, cfg.Metrics, cfg.Logger, t.handleListAttachments))

	return nil
}

// searchArguments returns the description option followed by the search
// filter arguments shared by the tools, then extra.
func searchArguments(description string, extra ...mcp.ToolOption) []mcp.ToolOption {
	return append([]mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("query",
			mcp.Description("Raw Gmail search query. When set, keywords are ignored (e.g., 'from:billing@example.com')"),
		),
		mcp.WithArray("keywords",
			mcp.Description("Keywords OR-ed together (default: invoice/receipt vocabulary)"),
			mcp.WithStringItems(),
		),
		mcp.WithString("newer_than",
			mcp.Description("Only messages newer than this, e.g. '30d', '6m', '1y'"),
		),
		mcp.WithString("after",
			mcp.Description("Only messages after this date (YYYY-MM-DD)"),
		),
		mcp.WithString("before",
			mcp.Description("Only messages before this date (YYYY-MM-DD)"),
		),
	}, extra...)
}

func (t *tools) handleBuildQuery(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts, err := queryOptions(request, t.cfg.Query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := query.Build(opts)
	if filter.IsEmpty() {
		return mcp.NewToolResultText("(empty filter: matches every message)"), nil
	}
	return mcp.NewToolResultText(filter.String()), nil
}

func (t *tools) handleHarvest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts, err := queryOptions(request, t.cfg.Query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	policy := policyOptions(request, t.cfg.Policy)

	if !t.mu.TryLock() {
		return mcp.NewToolResultError("a harvest is already running"), nil
	}
	defer t.mu.Unlock()

	svc, err := t.cfg.Service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open mailbox: %v", err)), nil
	}

	writer := storage.NewWriter(t.cfg.OutputDir)
	writer.SkipExisting = request.GetBool("skip_existing", t.cfg.SkipExisting)

	h := harvest.New(svc, writer,
		harvest.WithLogger(t.cfg.Logger),
		harvest.WithPageSize(t.cfg.PageSize),
		harvest.WithLimit(request.GetInt("limit", 0)),
		harvest.WithLedger(t.cfg.Ledger),
		harvest.WithMetrics(t.cfg.Metrics),
	)

	summary, err := h.Run(ctx, opts, policy)
	if err != nil {
		msg := fmt.Sprintf("Harvest failed: %v", err)
		if harvest.Classify(err) == harvest.OutcomeTransient {
			msg += " (transient, safe to retry)"
		}
		return mcp.NewToolResultError(msg), nil
	}

	return mcp.NewToolResultJSON(summary)
}

// queryOptions overlays request arguments on defaults.
func queryOptions(request mcp.CallToolRequest, defaults query.Options) (query.Options, error) {
	opts := defaults
	opts.RequireAttachment = true
	opts.Predicate = request.GetString("query", defaults.Predicate)
	opts.Keywords = request.GetStringSlice("keywords", defaults.Keywords)

	if v := request.GetString("newer_than", ""); v != "" {
		w, err := query.ParseTimeWindow(v)
		if err != nil {
			return query.Options{}, err
		}
		opts.Window = w
	}

	if v := request.GetString("after", ""); v != "" {
		t, err := query.ParseDate(v)
		if err != nil {
			return query.Options{}, err
		}
		opts.After = t
	}
	if v := request.GetString("before", ""); v != "" {
		t, err := query.ParseDate(v)
		if err != nil {
			return query.Options{}, err
		}
		opts.Before = t
	}
	return opts, nil
}

func policyOptions(request mcp.CallToolRequest, defaults harvest.Policy) harvest.Policy {
	p := defaults
	if request.GetBool("all_types", false) {
		p.OnlyPDFAndImages = false
	}
	if ext := request.GetStringSlice("extensions", nil); len(ext) > 0 {
		p.OnlyPDFAndImages = true
		p.Extensions = ext
	}
	return p
}
