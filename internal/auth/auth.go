// Package auth manages the bearer tokens that gate every provider call:
// short-lived app-scoped tokens via the client-credentials grant, and
// user-scoped tokens with a persisted refresh lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kwehner/playlog/internal/db"
)

// ScopeRecentlyPlayed grants read access to the user's play history.
const ScopeRecentlyPlayed = "user-read-recently-played"

const (
	defaultCallbackTimeout = 5 * time.Minute
	exchangeTimeout        = 30 * time.Second

	// fallbackTokenTTL is assumed when a token response carries no expiry.
	fallbackTokenTTL = time.Hour
)

// Sentinel errors.
var (
	// ErrAuthFailed is returned when a token exchange or refresh is
	// rejected or yields no access token. Callers must not proceed to any
	// downstream call without a token.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAuthTimeout is returned when the authorization callback is not
	// received in time.
	ErrAuthTimeout = errors.New("authentication timed out waiting for callback")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")
)

// spotifyEndpoint is the production authorization server.
var spotifyEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.spotify.com/authorize",
	TokenURL: "https://accounts.spotify.com/api/token",
}

// CredentialStore persists one credential per scope across restarts.
// Implemented by db.CredentialRepository; tests use an in-memory double.
type CredentialStore interface {
	Get(ctx context.Context, scope string) (*db.Credential, error)
	Upsert(ctx context.Context, cred *db.Credential) error
}

// Manager obtains and refreshes bearer tokens.
type Manager struct {
	clientID     string
	clientSecret string
	redirectURL  string

	endpoint        oauth2.Endpoint
	store           CredentialStore
	log             *zap.Logger
	callbackTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithEndpoint overrides the authorization server endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(m *Manager) {
		m.endpoint = endpoint
	}
}

// WithCallbackTimeout bounds the wait for the interactive callback.
func WithCallbackTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.callbackTimeout = d
	}
}

// New creates a Manager.
func New(clientID, clientSecret, redirectURL string, store CredentialStore, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		clientID:        clientID,
		clientSecret:    clientSecret,
		redirectURL:     redirectURL,
		endpoint:        spotifyEndpoint,
		store:           store,
		log:             logger,
		callbackTimeout: defaultCallbackTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AppToken performs a client-credentials handshake and returns a short-lived
// app-scoped token. App tokens are not refreshable, so nothing is persisted;
// re-requesting one per call is cheap.
func (m *Manager) AppToken(ctx context.Context) (string, error) {
	conf := &clientcredentials.Config{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		TokenURL:     m.endpoint.TokenURL,
	}

	token, err := conf.Token(m.httpContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: client credentials exchange: %v", ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: client credentials response carried no access token", ErrAuthFailed)
	}
	return token.AccessToken, nil
}

// UserToken returns a valid user-scoped token for scope. A cached credential
// that has not expired is returned without any network call. An expired
// credential with a refresh token is refreshed and persisted in place.
// Otherwise the full interactive authorization flow runs, blocking until the
// user completes it out-of-band. A lost refresh token therefore forces
// re-authorization, which is a recovery, not an error.
func (m *Manager) UserToken(ctx context.Context, scope string) (string, error) {
	cred, err := m.store.Get(ctx, scope)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	if cred != nil {
		if time.Now().Before(cred.ExpiresAt) {
			return cred.AccessToken, nil
		}

		if cred.RefreshToken != "" {
			token, err := m.refresh(ctx, scope, cred)
			if err == nil {
				return token, nil
			}
			m.log.Warn("token refresh failed, starting interactive authorization",
				zap.String("scope", scope), zap.Error(err))
		}
	}

	return m.authorize(ctx, scope)
}

// refresh exchanges the stored refresh token for a new access token and
// moves the persisted expiry forward.
func (m *Manager) refresh(ctx context.Context, scope string, cred *db.Credential) (string, error) {
	conf := m.oauthConfig(scope)

	token, err := conf.TokenSource(m.httpContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
	}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refreshing token: %v", ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: refresh response carried no access token", ErrAuthFailed)
	}

	cred.AccessToken = token.AccessToken
	cred.ExpiresAt = expiry(token)
	if token.RefreshToken != "" {
		// The provider usually leaves the refresh token unchanged.
		cred.RefreshToken = token.RefreshToken
	}

	if err := m.store.Upsert(ctx, cred); err != nil {
		return "", fmt.Errorf("persisting refreshed credential: %w", err)
	}
	return cred.AccessToken, nil
}

// authorize runs the interactive authorization-code flow: it starts a
// loopback listener for exactly one callback request, prints the
// authorization URL, blocks until the code arrives, exchanges it for tokens
// and persists the new credential.
func (m *Manager) authorize(ctx context.Context, scope string) (string, error) {
	listenAddr, callbackPath, err := callbackAddr(m.redirectURL)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URI: %w", err)
	}

	state := uuid.NewString()
	conf := m.oauthConfig(scope)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	router := chi.NewRouter()
	router.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			errCh <- ErrStateMismatch
			return
		}
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
			errCh <- fmt.Errorf("%w: authorization denied: %s", ErrAuthFailed, errMsg)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing code", http.StatusBadRequest)
			errCh <- fmt.Errorf("%w: callback carried no code", ErrAuthFailed)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Authorization successful! You can close this window.")
		codeCh <- code
	})

	server := &http.Server{Addr: listenAddr, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("callback server: %w", err)
		}
	}()
	defer m.shutdown(server)

	authURL := conf.AuthCodeURL(state)
	m.log.Info("authorization required, open the URL in a browser",
		zap.String("scope", scope), zap.String("url", authURL))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return "", err
	case <-time.After(m.callbackTimeout):
		return "", ErrAuthTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}

	exchangeCtx, cancel := context.WithTimeout(m.httpContext(ctx), exchangeTimeout)
	defer cancel()

	token, err := conf.Exchange(exchangeCtx, code)
	if err != nil {
		return "", fmt.Errorf("%w: exchanging code for token: %v", ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: exchange response carried no access token", ErrAuthFailed)
	}

	cred := &db.Credential{
		Scope:        scope,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiry(token),
	}
	if err := m.store.Upsert(ctx, cred); err != nil {
		return "", fmt.Errorf("persisting credential: %w", err)
	}

	return token.AccessToken, nil
}

func (m *Manager) oauthConfig(scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.clientID,
		ClientSecret: m.clientSecret,
		RedirectURL:  m.redirectURL,
		Scopes:       []string{scope},
		Endpoint:     m.endpoint,
	}
}

// httpContext bounds the oauth2 library's HTTP calls.
func (m *Manager) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: exchangeTimeout})
}

func (m *Manager) shutdown(server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		m.log.Warn("shutting down callback server", zap.Error(err))
	}
}

// callbackAddr splits a redirect URI into a listen address and a route path.
func callbackAddr(redirectURL string) (addr, path string, err error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", "", err
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return u.Host, path, nil
}

// expiry returns the token expiry, assuming a fallback TTL when the
// response carried none.
func expiry(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return time.Now().Add(fallbackTokenTTL)
	}
	return token.Expiry
}
