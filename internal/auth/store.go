// package auth owns the destination-service OAuth credential: acquisition,
// refresh, and on-disk caching across runs.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubesync/internal/server"
	"github.com/desertthunder/tubesync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// youtubeScope grants playlist read/write on the destination account.
const youtubeScope = "https://www.googleapis.com/auth/youtube"

// Store manages the destination-service credential. Modeled as an injectable
// dependency so tests can substitute an in-memory fake.
type Store interface {
	// Acquire returns a valid, non-expired token, refreshing or running the
	// interactive authorization flow as needed.
	Acquire(ctx context.Context) (*oauth2.Token, error)

	// Refresh exchanges the refresh token for a new access token without
	// user interaction and persists the result. A nil tok refreshes the
	// cached credential.
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)

	// Invalidate discards the cached credential so the next Acquire runs a
	// fresh interactive flow.
	Invalidate() error
}

// GoogleConfig builds the OAuth2 config for the YouTube Data API.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{youtubeScope},
		Endpoint:     google.Endpoint,
	}
}

// FileStore implements [Store] with a JSON token cache on disk.
//
// Writes are atomic (temp file + rename) so a concurrent reader never sees a
// torn credential. A corrupt or missing cache falls back to the interactive
// flow rather than aborting.
type FileStore struct {
	config      *oauth2.Config
	path        string
	serverAddr  string
	authTimeout time.Duration
	logger      *log.Logger

	// replaced in tests to avoid a real browser flow
	authorize   func(ctx context.Context) (*oauth2.Token, error)
	openBrowser func(url string) error
}

// FileStoreOpts configures a [FileStore].
type FileStoreOpts struct {
	Config      *oauth2.Config
	Path        string        // token cache location
	ServerAddr  string        // listen address for the local callback server
	AuthTimeout time.Duration // how long to wait for the user to authorize
	Logger      *log.Logger
}

// NewFileStore creates a file-backed token store.
func NewFileStore(opts FileStoreOpts) *FileStore {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	s := &FileStore{
		config:      opts.Config,
		path:        opts.Path,
		serverAddr:  opts.ServerAddr,
		authTimeout: opts.AuthTimeout,
		logger:      opts.Logger,
		openBrowser: shared.OpenBrowser,
	}
	s.authorize = s.interactive
	return s
}

// Acquire returns a valid token. Interactive authorization runs only when no
// cached credential exists, the cache is unreadable, or refresh fails.
func (s *FileStore) Acquire(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.load()
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("token cache unreadable, reauthorizing", "path", s.path, "error", err)
		}
		return s.reauthorize(ctx)
	}

	if tok.Valid() {
		return tok, nil
	}

	if tok.RefreshToken == "" {
		s.logger.Warn("cached token expired with no refresh token, reauthorizing")
		return s.reauthorize(ctx)
	}

	refreshed, err := s.Refresh(ctx, tok)
	if err != nil {
		s.logger.Warn("token refresh failed, reauthorizing", "error", err)
		return s.reauthorize(ctx)
	}

	return refreshed, nil
}

// Refresh exchanges the refresh token for a fresh access token and persists it.
func (s *FileStore) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil {
		cached, err := s.load()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		tok = cached
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrNoRefreshToken)
	}

	// Force the exchange even when the cached expiry still looks valid; the
	// caller refreshes because the server rejected the access token.
	stale := *tok
	stale.Expiry = time.Now().Add(-time.Minute)

	refreshed, err := s.config.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", shared.ErrAuthFailed, shared.ErrRefreshFailed, err)
	}

	if err := s.persist(refreshed); err != nil {
		return nil, err
	}

	return refreshed, nil
}

// Invalidate removes the on-disk credential cache.
func (s *FileStore) Invalidate() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token cache: %w", err)
	}
	return nil
}

// Cached returns the token currently on disk without refreshing it.
func (s *FileStore) Cached() (*oauth2.Token, error) {
	return s.load()
}

func (s *FileStore) reauthorize(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.persist(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *FileStore) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token cache: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("corrupt token cache: empty credential")
	}

	return &tok, nil
}

// persist writes the token atomically so a killed process never leaves a
// truncated cache behind.
func (s *FileStore) persist(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to chmod token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace token cache: %w", err)
	}

	return nil
}

// interactive runs the full authorization-code flow with a local callback
// server, opening the system browser for user consent.
func (s *FileStore) interactive(ctx context.Context) (*oauth2.Token, error) {
	state := shared.GenerateState()
	authURL := s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	handler := server.NewOAuthHandler(s.config, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	httpServer := &http.Server{Addr: s.serverAddr, Handler: router}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("starting OAuth callback server", "addr", s.serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	// the listener comes down on every exit path, including timeouts
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	if err := s.openBrowser(authURL); err != nil {
		s.logger.Warn("could not open browser automatically", "error", err)
		s.logger.Info("open this URL to authorize", "url", authURL)
	}

	timeout := time.NewTimer(s.authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("%w: callback server: %v", shared.ErrAuthFailed, err)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, ctx.Err())
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrAuthFailed, s.authTimeout)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w: %v", shared.ErrAuthFailed, shared.ErrAuthDeclined, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// tokenSource adapts a [Store] to [oauth2.TokenSource] so every destination
// API call consults the store (and benefits from transparent refresh).
type tokenSource struct {
	ctx   context.Context
	store Store
}

// TokenSource returns an [oauth2.TokenSource] backed by the store.
func TokenSource(ctx context.Context, store Store) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, store: store}
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return t.store.Acquire(t.ctx)
}
