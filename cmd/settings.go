package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teemow/inboxharvest/internal/config"
	"github.com/teemow/inboxharvest/internal/gmail"
	"github.com/teemow/inboxharvest/internal/google"
	"github.com/teemow/inboxharvest/internal/instrumentation"
	"github.com/teemow/inboxharvest/internal/logging"
	"github.com/teemow/inboxharvest/internal/query"
)

// globalFlags are shared by every subcommand. Values only override the
// config file when set explicitly.
type globalFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	credentials string
	token       string
	tokenStore  string
	keyringUser string
	retries     int
}

var globals globalFlags

func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&globals.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/inboxharvest/config.yaml)")
	pf.StringVar(&globals.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&globals.logFormat, "log-format", logging.FormatText, "Log format: text or json")
	pf.StringVar(&globals.credentials, "credentials", "", "OAuth client secret JSON from the Google Cloud console")
	pf.StringVar(&globals.token, "token", "", "Token file used with --token-store file")
	pf.StringVar(&globals.tokenStore, "token-store", config.TokenStoreFile, "Where the OAuth token is kept: file or keyring")
	pf.StringVar(&globals.keyringUser, "keyring-user", "", "Keyring entry name used with --token-store keyring")
	pf.IntVar(&globals.retries, "retries", 0, "Retry 429 and 5xx responses this many times (0 disables retries)")
}

// loadConfig reads the config file and applies the explicitly set global flags.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(globals.configPath)
	if err != nil {
		return nil, err
	}
	applyGlobalFlags(cfg, globals, flags.Changed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyGlobalFlags(cfg *config.Config, g globalFlags, changed func(string) bool) {
	if changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if changed("credentials") {
		cfg.Auth.Credentials = g.credentials
	}
	if changed("token") {
		cfg.Auth.Token = g.token
	}
	if changed("token-store") {
		cfg.Auth.TokenStore = g.tokenStore
	}
	if changed("keyring-user") {
		cfg.Auth.KeyringUser = g.keyringUser
	}
	if changed("retries") {
		cfg.Auth.Retries = g.retries
	}
}

// newLogger builds the process logger. Logs always go to stderr.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: os.Stderr,
	})
}

func tokenStore(cfg *config.Config) google.TokenStore {
	if cfg.Auth.TokenStore == config.TokenStoreKeyring {
		return google.NewKeyringTokenStore(cfg.Auth.KeyringUser)
	}
	return google.FileTokenStore{Path: cfg.Auth.Token}
}

func sessionConfig(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) google.SessionConfig {
	return google.SessionConfig{
		ClientSecretPath: cfg.Auth.Credentials,
		TokenPath:        cfg.Auth.Token,
		Store:            tokenStore(cfg),
		Retries:          cfg.Auth.Retries,
		Logger:           logger,
		Metrics:          metrics,
	}
}

// openMailbox obtains a session and returns a Gmail client. The interactive
// authorization flow runs only when interactive is set and stdin is a terminal.
func openMailbox(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics, interactive bool) (*gmail.Client, error) {
	sc := sessionConfig(cfg, logger, metrics)
	if interactive && google.IsInteractive(os.Stdin) {
		sc.Interactive = true
		sc.Prompt = google.TerminalPrompt(os.Stdin, os.Stderr)
	}

	session, err := google.ObtainSession(ctx, sc)
	if err != nil {
		return nil, err
	}
	client, err := gmail.NewClient(ctx, session.HTTPClient(), gmail.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	return client, nil
}

// newInstrumentation builds the telemetry provider from the environment. A
// metrics address forces Prometheus metrics on.
func newInstrumentation(ctx context.Context, metricsAddr string) (*instrumentation.Provider, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if metricsAddr != "" {
		instrConfig.Enabled = true
		instrConfig.MetricsExporter = instrumentation.ExporterPrometheus
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// searchFlags describe the search intent on the command line.
type searchFlags struct {
	query     string
	keywords  []string
	newerThan string
	after     string
	before    string
}

func (f *searchFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.query, "query", "q", "", "Raw Gmail search query, used verbatim in place of the keywords and the attachment scope")
	fs.StringArrayVarP(&f.keywords, "keyword", "k", nil, "Keyword to search for (repeatable; replaces the configured list)")
	fs.StringVar(&f.newerThan, "newer-than", "", "Only messages newer than this, e.g. 30d, 6m, 1y (default from config: 30d)")
	fs.StringVar(&f.after, "after", "", "Only messages after this date (YYYY-MM-DD)")
	fs.StringVar(&f.before, "before", "", "Only messages before this date (YYYY-MM-DD)")
}

// options overlays the flags on the config's search section.
func (f *searchFlags) options(cfg *config.Config, changed func(string) bool) (query.Options, error) {
	if changed("query") {
		cfg.Search.Query = f.query
	}
	if changed("keyword") {
		cfg.Search.Keywords = parseKeywords(f.keywords)
	}
	if changed("newer-than") {
		cfg.Search.NewerThan = f.newerThan
	}

	opts, err := cfg.QueryOptions()
	if err != nil {
		return query.Options{}, err
	}
	if opts.After, err = query.ParseDate(f.after); err != nil {
		return query.Options{}, err
	}
	if opts.Before, err = query.ParseDate(f.before); err != nil {
		return query.Options{}, err
	}
	return opts, nil
}

// parseKeywords trims values and drops empty ones.
func parseKeywords(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
