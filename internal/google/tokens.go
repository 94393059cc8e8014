package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a TokenStore that holds no token.
var ErrNoToken = errors.New("no stored OAuth token")

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON in a file readable only by the owner.
type FileTokenStore struct {
	Path string
}

// Load reads the token. A missing file yields ErrNoToken.
func (s FileTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return decodeToken(data)
}

// Save writes the token through a temporary file and a rename.
func (s FileTokenStore) Save(_ context.Context, tok *oauth2.Token) error {
	if s.Path == "" {
		return errors.New("token path is not set")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// KeyringTokenStore keeps the token in the operating system keyring.
type KeyringTokenStore struct {
	Service string
	User    string
}

// DefaultKeyringService is the keyring service name used for tokens.
const DefaultKeyringService = "inboxharvest"

// NewKeyringTokenStore returns a store for user under DefaultKeyringService.
func NewKeyringTokenStore(user string) KeyringTokenStore {
	if user == "" {
		user = "default"
	}
	return KeyringTokenStore{Service: DefaultKeyringService, User: user}
}

// Load reads the token. A missing entry yields ErrNoToken.
func (s KeyringTokenStore) Load(_ context.Context) (*oauth2.Token, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token from keyring: %w", err)
	}
	return decodeToken([]byte(secret))
}

// Save stores the token as JSON.
func (s KeyringTokenStore) Save(_ context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(s.Service, s.User, string(data)); err != nil {
		return fmt.Errorf("failed to save token to keyring: %w", err)
	}
	return nil
}

func decodeToken(data []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return &tok, nil
}
