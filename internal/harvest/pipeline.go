package harvest

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxharvest/internal/instrumentation"
	"github.com/teemow/inboxharvest/internal/logging"
	"github.com/teemow/inboxharvest/internal/query"
	"github.com/teemow/inboxharvest/internal/storage"
)

// Attachment results reported to Metrics.
const (
	ResultWritten  = "written"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
	ResultDataGap  = "data_gap"
)

// Download describes one persisted attachment, as handed to a Recorder.
type Download struct {
	MessageID    string    `json:"message_id"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Path         string    `json:"path"`
	Bytes        int64     `json:"bytes"`
	SHA256       string    `json:"sha256"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Recorder keeps a durable history of downloads and runs.
type Recorder interface {
	// RecordDownload stores d and returns the paths of earlier downloads
	// with the same content hash.
	RecordDownload(ctx context.Context, d Download) ([]string, error)
	RecordRun(ctx context.Context, summary RunSummary, filter string, started time.Time) error
}

// Metrics receives pipeline measurements.
type Metrics interface {
	RecordMessage(ctx context.Context)
	RecordAttachment(ctx context.Context, result string, bytes int64)
	RecordRun(ctx context.Context, status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordMessage(context.Context) {}
func (noopMetrics) RecordAttachment(context.Context, string, int64) {}
func (noopMetrics) RecordRun(context.Context, string, time.Duration) {}

// Progress is reported after each processed message.
type Progress struct {
	Index     int // 1-based
	Total     int
	MessageID string
	Outcome   MessageOutcome
}

// Harvester runs the query → enumerate → walk → fetch → write pipeline.
type Harvester struct {
	svc      MailService
	writer   *storage.Writer
	logger   *slog.Logger
	pageSize int
	limit    int
	ledger   Recorder
	metrics  Metrics
	progress func(Progress)
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harvester) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPageSize sets the listing page size (clamped to MaxPageSize).
func WithPageSize(n int) Option {
	return func(h *Harvester) { h.pageSize = n }
}

// WithLimit caps the number of messages processed. Zero means no cap.
func WithLimit(n int) Option {
	return func(h *Harvester) { h.limit = n }
}

// WithLedger records every download and the final summary.
func WithLedger(r Recorder) Option {
	return func(h *Harvester) { h.ledger = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(h *Harvester) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithProgress registers a callback invoked after each message.
func WithProgress(fn func(Progress)) Option {
	return func(h *Harvester) { h.progress = fn }
}

// New returns a Harvester reading from svc and writing through writer.
func New(svc MailService, writer *storage.Writer, opts ...Option) *Harvester {
	h := &Harvester{
		svc:      svc,
		writer:   writer,
		logger:   logging.Discard(),
		pageSize: DefaultPageSize,
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run harvests every accepted attachment of the messages matching opts.
//
// Messages are processed one at a time in listing order. Cancellation is
// observed between messages; a message in flight always completes or fails.
// Any service error aborts the run, as does a filesystem failure. There is
// no partial summary on error.
func (h *Harvester) Run(ctx context.Context, opts query.Options, policy Policy) (summary RunSummary, err error) {
	started := time.Now()
	filter := query.Build(opts)

	ctx, span := instrumentation.StartSpan(ctx, "harvest.run",
		attribute.String("harvest.filter", filter.String()),
		attribute.String("harvest.output_root", h.writer.Root()),
	)
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
		h.metrics.RecordRun(ctx, status, time.Since(started))
	}()

	logger := logging.WithOperation(h.logger, "harvest").With(logging.Filter(filter.String()))
	if id := instrumentation.GetTraceID(ctx); id != "" {
		logger = logger.With("trace_id", id)
	}
	logger.Info("searching mailbox")

	refs, err := EnumerateLimit(ctx, h.svc, filter, h.pageSize, h.limit)
	if err != nil {
		logger.Error("listing messages failed", logging.Err(err))
		return RunSummary{}, err
	}
	logger.Info("messages matched", "count", len(refs))

	agg := NewAggregator(h.writer.Root())
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			logger.Warn("harvest cancelled", "processed", i, logging.Err(err))
			return RunSummary{}, err
		}

		outcome, err := h.processMessage(ctx, logger, ref.ID, policy)
		if err != nil {
			logging.WithMessage(logger, ref.ID).Error("message failed", logging.Err(err))
			return RunSummary{}, err
		}

		agg.Observe(outcome)
		h.metrics.RecordMessage(ctx)
		if h.progress != nil {
			h.progress(Progress{Index: i + 1, Total: len(refs), MessageID: ref.ID, Outcome: outcome})
		}
	}

	summary = agg.Finish(len(refs))
	span.SetAttributes(
		attribute.Int("harvest.messages_matched", summary.MessagesMatched),
		attribute.Int("harvest.files_downloaded", summary.FilesDownloaded),
	)

	if h.ledger != nil {
		if err := h.ledger.RecordRun(ctx, summary, filter.String(), started); err != nil {
			logger.Warn("failed to record run in ledger", logging.Err(err))
		}
	}

	logger.Info("harvest complete", summary.LogAttrs()...)
	return summary, nil
}

func (h *Harvester) processMessage(ctx context.Context, logger *slog.Logger, id string, policy Policy) (MessageOutcome, error) {
	out := MessageOutcome{MessageID: id}
	msgLogger := logging.WithMessage(logger, id)

	root, err := h.svc.GetMessage(ctx, id)
	if err != nil {
		return out, serviceError("get_message", err)
	}

	cfg := FetchConfig{
		Policy: policy,
		Exists: func(p *Part) bool {
			_, ok := h.writer.Existing(id, p.Filename)
			return ok
		},
		OnSkip: func(p *Part, reason SkipReason) {
			result := ResultSkipped
			switch reason {
			case SkipRejected:
				out.Rejected++
				result = ResultRejected
			case SkipDataGap:
				out.DataGaps++
				result = ResultDataGap
			case SkipExisting:
				out.Existing++
			}
			h.metrics.RecordAttachment(ctx, result, 0)
			msgLogger.Debug("attachment skipped",
				logging.Filename(p.Filename),
				logging.Reason(string(reason)))
		},
	}

	for blob, err := range Fetch(ctx, h.svc, id, Candidates(root), cfg) {
		if err != nil {
			return out, err
		}

		res, err := h.writer.Write(id, blob.Filename, blob.Data)
		if err != nil {
			return out, &WriteError{Path: h.writer.Path(id, blob.Filename), Err: err}
		}

		out.Written++
		out.Bytes += res.Bytes
		h.metrics.RecordAttachment(ctx, ResultWritten, res.Bytes)
		msgLogger.Info("attachment saved",
			logging.Filename(blob.Filename),
			logging.Path(res.Path),
			"bytes", res.Bytes)

		h.recordDownload(ctx, msgLogger, blob, res)
	}

	return out, nil
}

func (h *Harvester) recordDownload(ctx context.Context, logger *slog.Logger, blob AttachmentBlob, res storage.WriteResult) {
	if h.ledger == nil {
		return
	}

	seen, err := h.ledger.RecordDownload(ctx, Download{
		MessageID:    blob.MessageID,
		Filename:     blob.Filename,
		ContentType:  blob.ContentType,
		Path:         res.Path,
		Bytes:        res.Bytes,
		SHA256:       res.SHA256,
		DownloadedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to record download in ledger", logging.Path(res.Path), logging.Err(err))
		return
	}
	if len(seen) > 0 {
		logger.Debug("same content already harvested", logging.Path(res.Path), "previous", seen)
	}
}
