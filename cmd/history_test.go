package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/ledger"
)

func seedLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := ledger.Open(path)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = l.RecordDownload(ctx, harvest.Download{
		MessageID:    "m1",
		Filename:     "invoice.pdf",
		ContentType:  "application/pdf",
		Path:         "/srv/out/m1/invoice.pdf",
		Bytes:        2048,
		SHA256:       "0123456789abcdef0123",
		DownloadedAt: started,
	})
	require.NoError(t, err)
	require.NoError(t, l.RecordRun(ctx, harvest.RunSummary{
		MessagesMatched:   3,
		MessagesWithFiles: 1,
		FilesDownloaded:   1,
		OutputRoot:        "/srv/out",
		BytesWritten:      2048,
	}, "has:attachment invoice", started))

	return path
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { globals = globalFlags{} })

	var out bytes.Buffer
	cmd := newHistoryCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHistoryCommand_Runs(t *testing.T) {
	path := seedLedger(t)

	out, err := runHistory(t, "--ledger", path)
	require.NoError(t, err)
	assert.Contains(t, out, "MATCHED")
	assert.Contains(t, out, "has:attachment invoice")
	assert.Contains(t, out, "2.0 KiB")

	out, err = runHistory(t, "--ledger", path, "--json")
	require.NoError(t, err)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, float64(3), runs[0]["messages_matched"])
	assert.Equal(t, "/srv/out", runs[0]["output_root"])
}

func TestHistoryCommand_Downloads(t *testing.T) {
	path := seedLedger(t)

	out, err := runHistory(t, "--ledger", path, "--message", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "/srv/out/m1/invoice.pdf")
	assert.Contains(t, out, "0123456789ab")
	assert.NotContains(t, out, "0123456789abc")

	out, err = runHistory(t, "--ledger", path, "--message", "unknown", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestHistoryCommand_RequiresLedger(t *testing.T) {
	_, err := runHistory(t)
	assert.ErrorContains(t, err, "no ledger configured")

	_, err = runHistory(t, "--ledger", filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestPrintRuns_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRuns(&out, nil, false))
	assert.Equal(t, "No runs recorded.\n", out.String())
}
