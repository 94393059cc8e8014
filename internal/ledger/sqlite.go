package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teemow/inboxharvest/internal/harvest"
)

// SQLiteLedger implements harvest.Recorder backed by a local SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

// Run is one recorded harvest run.
type Run struct {
	ID              int64     `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Filter          string    `json:"filter"`
	OutputRoot      string    `json:"output_root"`
	MessagesMatched int       `json:"messages_matched"`
	WithFiles       int       `json:"messages_with_files"`
	FilesDownloaded int       `json:"files_downloaded"`
	Skipped         int       `json:"files_skipped"`
	Rejected        int       `json:"attachments_rejected"`
	DataGaps        int       `json:"data_gaps"`
	BytesWritten    int64     `json:"bytes_written"`
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLedger{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	path          TEXT PRIMARY KEY,
	message_id    TEXT NOT NULL,
	filename      TEXT NOT NULL,
	content_type  TEXT NOT NULL DEFAULT '',
	bytes         INTEGER NOT NULL DEFAULT 0,
	sha256        TEXT NOT NULL DEFAULT '',
	downloaded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS downloads_sha256 ON downloads(sha256);
CREATE INDEX IF NOT EXISTS downloads_message ON downloads(message_id);

CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at       TEXT NOT NULL,
	finished_at      TEXT NOT NULL,
	filter           TEXT NOT NULL DEFAULT '',
	output_root      TEXT NOT NULL DEFAULT '',
	messages_matched INTEGER NOT NULL DEFAULT 0,
	with_files       INTEGER NOT NULL DEFAULT 0,
	files_downloaded INTEGER NOT NULL DEFAULT 0,
	skipped          INTEGER NOT NULL DEFAULT 0,
	rejected         INTEGER NOT NULL DEFAULT 0,
	data_gaps        INTEGER NOT NULL DEFAULT 0,
	bytes_written    INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// RecordDownload upserts d by path and returns the paths of other downloads
// with the same content hash.
func (l *SQLiteLedger) RecordDownload(ctx context.Context, d harvest.Download) ([]string, error) {
	if d.DownloadedAt.IsZero() {
		d.DownloadedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO downloads (path, message_id, filename, content_type, bytes, sha256, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			message_id    = excluded.message_id,
			filename      = excluded.filename,
			content_type  = excluded.content_type,
			bytes         = excluded.bytes,
			sha256        = excluded.sha256,
			downloaded_at = excluded.downloaded_at
	`, d.Path, d.MessageID, d.Filename, d.ContentType, d.Bytes, d.SHA256, formatTime(d.DownloadedAt))
	if err != nil {
		return nil, fmt.Errorf("record download: %w", err)
	}

	if d.SHA256 == "" {
		return nil, nil
	}
	paths, err := l.SeenContent(ctx, d.SHA256)
	if err != nil {
		return nil, err
	}

	others := paths[:0]
	for _, p := range paths {
		if p != d.Path {
			others = append(others, p)
		}
	}
	return others, nil
}

// SeenContent returns every recorded path whose content hash is sha256,
// ordered by path.
func (l *SQLiteLedger) SeenContent(ctx context.Context, sha256 string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT path FROM downloads WHERE sha256 = ? ORDER BY path", sha256)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Downloads returns the recorded downloads of one message, ordered by path.
func (l *SQLiteLedger) Downloads(ctx context.Context, messageID string) ([]harvest.Download, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT path, message_id, filename, content_type, bytes, sha256, downloaded_at
		FROM downloads WHERE message_id = ? ORDER BY path`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	var out []harvest.Download
	for rows.Next() {
		var d harvest.Download
		var at string
		if err := rows.Scan(&d.Path, &d.MessageID, &d.Filename, &d.ContentType, &d.Bytes, &d.SHA256, &at); err != nil {
			return nil, err
		}
		d.DownloadedAt = parseTime(at)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordRun stores a finished run.
func (l *SQLiteLedger) RecordRun(ctx context.Context, s harvest.RunSummary, filter string, started time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, filter, output_root,
			messages_matched, with_files, files_downloaded, skipped, rejected, data_gaps, bytes_written)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatTime(started), formatTime(time.Now()), filter, s.OutputRoot,
		s.MessagesMatched, s.MessagesWithFiles, s.FilesDownloaded,
		s.FilesSkipped, s.AttachmentsRejected, s.DataGaps, s.BytesWritten)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero returns all.
func (l *SQLiteLedger) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, finished_at, filter, output_root,
		messages_matched, with_files, files_downloaded, skipped, rejected, data_gaps, bytes_written
		FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Filter, &r.OutputRoot,
			&r.MessagesMatched, &r.WithFiles, &r.FilesDownloaded, &r.Skipped, &r.Rejected, &r.DataGaps, &r.BytesWritten); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

var _ harvest.Recorder = (*SQLiteLedger)(nil)
