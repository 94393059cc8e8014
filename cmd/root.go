package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxharvest application
var rootCmd = &cobra.Command{
	Use:   "inboxharvest",
	Short: "Downloads invoice and receipt attachments from Gmail",
	Long: `inboxharvest searches your Gmail mailbox for messages that look like
invoices or receipts and saves their PDF and image attachments to a local
directory, one folder per message. Running it again refreshes the same files.

It can run as:
  - A standalone CLI tool (default)
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxharvest version %s\n" .Version}}`)
	os.Args = withDefaultCommand(os.Args)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withDefaultCommand inserts "harvest" when no subcommand is given, so that
// `inboxharvest --out dir` works like `inboxharvest harvest --out dir`.
func withDefaultCommand(args []string) []string {
	if len(args) == 1 {
		return append(args, "harvest")
	}
	first := args[1]
	switch first {
	case "-h", "--help", "-v", "--version", "help", "completion", "__complete":
		return args
	}
	if !strings.HasPrefix(first, "-") {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], "harvest")
	return append(out, args[1:]...)
}

func init() {
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newHarvestCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
