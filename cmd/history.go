package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/ledger"
)

func newHistoryCmd() *cobra.Command {
	var (
		ledgerPath string
		limit      int
		messageID  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past harvest runs or the files saved for one message",
		Long: `Read the download ledger written by 'harvest --ledger'.

Without --message the most recent runs are listed, newest first. With
--message the files saved for that message are listed.`,
		Example: `  inboxharvest history --ledger ~/receipts/ledger.db
  inboxharvest history --message 18c2f0a9b1d2e3f4 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if flags.Changed("ledger") {
				cfg.Output.Ledger = ledgerPath
			}
			if cfg.Output.Ledger == "" {
				return errors.New("no ledger configured: pass --ledger or set output.ledger in the config file")
			}
			if _, err := os.Stat(cfg.Output.Ledger); err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}

			l, err := ledger.Open(cfg.Output.Ledger)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer l.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if messageID != "" {
				downloads, err := l.Downloads(ctx, messageID)
				if err != nil {
					return err
				}
				return printDownloads(out, downloads, jsonOutput)
			}

			runs, err := l.Runs(ctx, limit)
			if err != nil {
				return err
			}
			return printRuns(out, runs, jsonOutput)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&ledgerPath, "ledger", "", "SQLite ledger file (default: output.ledger from the config file)")
	fs.IntVarP(&limit, "limit", "n", 10, "Show at most this many runs (0 means all)")
	fs.StringVarP(&messageID, "message", "m", "", "List the files saved for this message ID")
	fs.BoolVar(&jsonOutput, "json", false, "Print JSON")

	return cmd
}

func printRuns(w io.Writer, runs []ledger.Run, asJSON bool) error {
	if asJSON {
		return writeJSON(w, nonNil(runs))
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tMATCHED\tWITH FILES\tDOWNLOADED\tSIZE\tFILTER")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.MessagesMatched,
			r.WithFiles,
			r.FilesDownloaded,
			humanize.IBytes(uint64(r.BytesWritten)),
			r.Filter)
	}
	return tw.Flush()
}

func printDownloads(w io.Writer, downloads []harvest.Download, asJSON bool) error {
	if asJSON {
		return writeJSON(w, nonNil(downloads))
	}
	if len(downloads) == 0 {
		_, err := fmt.Fprintln(w, "No files recorded for this message.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SAVED\tSIZE\tSHA256\tPATH")
	for _, d := range downloads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			d.DownloadedAt.Local().Format(time.DateTime),
			humanize.IBytes(uint64(d.Bytes)),
			shortHash(d.SHA256),
			d.Path)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
