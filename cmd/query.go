package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxharvest/internal/query"
)

func newQueryCmd() *cobra.Command {
	var search searchFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the Gmail search filter a harvest would use",
		Long: `Print the search filter built from the config file and flags, without
contacting Gmail. Paste it into the Gmail search box to preview the matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			opts, err := search.options(cfg, flags.Changed)
			if err != nil {
				return err
			}

			filter := query.Build(opts)
			if filter.IsEmpty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "empty filter: every message matches")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), filter)
			return nil
		},
	}

	search.bind(cmd.Flags())
	return cmd
}
