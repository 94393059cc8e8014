package google

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/term"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/instrumentation"
	"github.com/teemow/inboxharvest/internal/logging"
)

// PromptFunc shows authURL to the user and returns what they paste back:
// either the bare authorization code or the full redirect URL.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

// SessionConfig describes where credentials live and how to obtain new ones.
type SessionConfig struct {
	// ClientSecretPath is the OAuth client secret JSON downloaded from the
	// Google Cloud console.
	ClientSecretPath string

	// TokenPath is used for a FileTokenStore when Store is nil.
	TokenPath string

	// Store persists the token. Defaults to FileTokenStore{TokenPath}.
	Store TokenStore

	// Interactive allows running the authorization flow through Prompt
	// when no token is stored.
	Interactive bool
	Prompt      PromptFunc

	// Retries enables RetryTransport with that many retries. Zero disables it.
	Retries int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// HTTPClient is used for token endpoint calls (tests).
	HTTPClient *http.Client
}

func (c SessionConfig) store() TokenStore {
	if c.Store != nil {
		return c.Store
	}
	return FileTokenStore{Path: c.TokenPath}
}

func (c SessionConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Discard()
}

// Session is an authorized handle on the user's mailbox. It is created once
// and passed explicitly to whatever needs remote access.
type Session struct {
	client *http.Client
	source oauth2.TokenSource
}

// HTTPClient returns an HTTP client that authorizes every request.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// TokenSource returns the refreshing, persisting token source.
func (s *Session) TokenSource() oauth2.TokenSource {
	return s.source
}

// ObtainSession loads the stored token, running the interactive
// authorization flow if there is none and cfg allows it. All failures are
// *harvest.AuthError.
func ObtainSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	conf, err := loadOAuthConfig(cfg.ClientSecretPath)
	if err != nil {
		return nil, &harvest.AuthError{Err: err}
	}

	store := cfg.store()
	tok, err := store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoToken) && cfg.Interactive && cfg.Prompt != nil:
		tok, err = authorize(ctx, cfg, conf, store)
		if err != nil {
			return nil, &harvest.AuthError{Err: err}
		}
	case errors.Is(err, ErrNoToken):
		return nil, &harvest.AuthError{Err: errors.New("no stored credential and no interactive terminal; run `inboxharvest auth` first")}
	default:
		return nil, &harvest.AuthError{Err: err}
	}

	return newSession(ctx, cfg, conf, store, tok), nil
}

// Authorize always runs the interactive flow and persists the new token.
func Authorize(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Prompt == nil {
		return nil, &harvest.AuthError{Err: errors.New("authorization requires an interactive prompt")}
	}
	conf, err := loadOAuthConfig(cfg.ClientSecretPath)
	if err != nil {
		return nil, &harvest.AuthError{Err: err}
	}

	store := cfg.store()
	tok, err := authorize(ctx, cfg, conf, store)
	if err != nil {
		return nil, &harvest.AuthError{Err: err}
	}
	return newSession(ctx, cfg, conf, store, tok), nil
}

func loadOAuthConfig(path string) (*oauth2.Config, error) {
	if path == "" {
		return nil, errors.New("client secret path is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, DefaultOAuthScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret: %w", err)
	}
	return conf, nil
}

func authorize(ctx context.Context, cfg SessionConfig, conf *oauth2.Config, store TokenStore) (*oauth2.Token, error) {
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	input, err := cfg.Prompt(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	code, err := extractCode(input, state)
	if err != nil {
		return nil, err
	}

	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := store.Save(ctx, tok); err != nil {
		return nil, err
	}

	cfg.logger().Info("authorization complete", "access_token", logging.SanitizeToken(tok.AccessToken))
	return tok, nil
}

// extractCode accepts either a bare code or the redirect URL containing it.
func extractCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	if s := q.Get("state"); s != "" && s != state {
		return "", errors.New("state mismatch in redirect URL")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}

func newSession(ctx context.Context, cfg SessionConfig, conf *oauth2.Config, store TokenStore, tok *oauth2.Token) *Session {
	tokenCtx := context.WithoutCancel(ctx)
	if cfg.HTTPClient != nil {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	source := oauth2.ReuseTokenSource(tok, &persistingTokenSource{
		ctx:     tokenCtx,
		base:    conf.TokenSource(tokenCtx, tok),
		store:   store,
		last:    tok.AccessToken,
		logger:  cfg.logger(),
		metrics: cfg.Metrics,
	})

	// HTTP/2 connection resets on long runs surface as opaque errors.
	var base http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.Retries > 0 {
		base = NewRetryTransport(base, cfg.Retries)
	}

	return &Session{
		client: &http.Client{Transport: &oauth2.Transport{Source: source, Base: base}},
		source: source,
	}
}

// persistingTokenSource saves every refreshed token back to the store.
type persistingTokenSource struct {
	ctx     context.Context
	base    oauth2.TokenSource
	store   TokenStore
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultFailure)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken
	s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultSuccess)

	if err := s.store.Save(s.ctx, tok); err != nil {
		s.logger.Warn("failed to persist refreshed token", logging.Err(err))
	} else {
		s.logger.Debug("refreshed token persisted", "access_token", logging.SanitizeToken(tok.AccessToken))
	}
	return tok, nil
}

// IsInteractive reports whether f is a terminal a user can type into.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalPrompt prints the authorization URL to out and reads one line from in.
func TerminalPrompt(in io.Reader, out io.Writer) PromptFunc {
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Open this URL in your browser and authorize access:\n\n  %s\n\n", authURL)
		fmt.Fprint(out, "Paste the authorization code or the full redirect URL: ")

		type result struct {
			line string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			line, err := bufio.NewReader(in).ReadString('\n')
			if errors.Is(err, io.EOF) && line != "" {
				err = nil
			}
			ch <- result{line, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-ch:
			return strings.TrimSpace(r.line), r.err
		}
	}
}
