package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxharvest/internal/gmail"
	"github.com/teemow/inboxharvest/internal/google"
	"github.com/teemow/inboxharvest/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only access to your Gmail mailbox",
		Long: `Run the OAuth authorization flow and store the token.

You need an OAuth client of type "Desktop app" from the Google Cloud console.
Save its JSON as the credentials file (see --credentials). The command prints a
URL; open it, grant read-only access and paste back the code or the full
address your browser was redirected to.

With --check the stored token is verified instead and the mailbox address is
printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			sc := sessionConfig(cfg, logger, nil)
			var session *google.Session
			if check {
				session, err = google.ObtainSession(ctx, sc)
			} else {
				sc.Interactive = true
				sc.Prompt = google.TerminalPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
				session, err = google.Authorize(ctx, sc)
			}
			if err != nil {
				logger.Error("authorization failed", logging.Err(err))
				return err
			}

			client, err := gmail.NewClient(ctx, session.HTTPClient())
			if err != nil {
				return err
			}
			email, err := client.Profile(ctx)
			if err != nil {
				return err
			}
			logger.Debug("mailbox profile loaded", logging.Service("gmail"), logging.UserHash(email))

			fmt.Fprintf(cmd.OutOrStdout(), "Authorized as %s (token stored in %s)\n", email, describeStore(sc.Store))
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Verify the stored token instead of authorizing again")
	return cmd
}

func describeStore(store google.TokenStore) string {
	switch s := store.(type) {
	case google.FileTokenStore:
		return s.Path
	case google.KeyringTokenStore:
		return fmt.Sprintf("keyring %s/%s", s.Service, s.User)
	default:
		return "token store"
	}
}
