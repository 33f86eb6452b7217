// Package auth implements the Authenticator (C2): it acquires, caches and
// revokes the bearer token used by every authenticated request the SDK
// makes, via an OAuth2 "password" grant against the platform's SSO realm.
//
// The token exchange itself is delegated to golang.org/x/oauth2, which
// already implements the grant_type=password form POST; this package adds
// the retry envelope, the expiry-margin cache, and the
// account-not-fully-set-up detection the spec requires on top of it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/IGNF/gpf-sdk-go/pkg/config"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
)

// Token is the cached bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

func (t *Token) valid() bool {
	return t != nil && time.Now().Before(t.ExpiresAt)
}

// Authenticator acquires, caches and revokes the bearer token. It is a
// process-wide singleton; its token cache is the only mutable shared state
// in the SDK (spec.md §5), guarded by mu.
type Authenticator struct {
	oauthCfg           oauth2.Config
	username           string
	password           string
	nbAttempts         int
	secBetweenAttempts time.Duration
	safetyMargin       time.Duration
	httpClient         *http.Client
	logger             *slog.Logger

	mu    sync.Mutex
	token *Token
}

// New builds an Authenticator from the store_api / store_authentification
// sections of cfg.
func New(cfg *config.Config) *Authenticator {
	api := cfg.StoreAPI()
	authCfg := cfg.StoreAuthentification()

	return &Authenticator{
		oauthCfg: oauth2.Config{
			ClientID:     authCfg.ClientID,
			ClientSecret: authCfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: strings.TrimRight(authCfg.AuthBaseURL, "/") + "/protocol/openid-connect/token",
				// The platform expects client_id/client_secret as regular
				// form fields, not HTTP Basic auth.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username:           authCfg.Username,
		password:           authCfg.Password,
		nbAttempts:         api.NbAttempts,
		secBetweenAttempts: api.SecBetweenAttempts,
		safetyMargin:       authCfg.SafetyMargin,
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		logger:             slog.Default().With("component", "auth"),
		token:              nil,
	}
}

var (
	mu       sync.RWMutex
	instance *Authenticator
)

// Init builds the process-wide Authenticator and installs it as the
// singleton.
func Init(cfg *config.Config) *Authenticator {
	a := New(cfg)
	mu.Lock()
	instance = a
	mu.Unlock()
	return a
}

// Get returns the process-wide singleton. Panics if Init has not run yet.
func Get() *Authenticator {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("auth: Get() called before Init()")
	}
	return instance
}

// Reset clears the singleton, for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

// WithCredentials lets a caller override the username/password carried in
// config (useful for tests and multi-account flows). It returns the
// receiver's own *Authenticator with the fields updated in place.
func (a *Authenticator) WithCredentials(username, password string) *Authenticator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.username = username
	a.password = password
	return a
}

// GetAccessTokenString returns a valid bearer token, acquiring or
// refreshing it as needed (spec.md §4.2, steps 1-3).
func (a *Authenticator) GetAccessTokenString(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.token.valid() {
		tok := a.token.AccessToken
		a.mu.Unlock()
		return tok, nil
	}
	a.mu.Unlock()

	return a.acquireToken(ctx)
}

func (a *Authenticator) acquireToken(ctx context.Context) (string, error) {
	var lastErr error

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	for attempt := 1; attempt <= a.nbAttempts; attempt++ {
		oauthToken, err := a.oauthCfg.PasswordCredentialsToken(ctx, a.username, a.password)
		if err == nil {
			a.mu.Lock()
			a.token = &Token{
				AccessToken: oauthToken.AccessToken,
				ExpiresAt:   oauthToken.Expiry.Add(-a.safetyMargin),
			}
			tok := a.token.AccessToken
			a.mu.Unlock()
			return tok, nil
		}

		lastErr = err

		if accountNotSetUp(err) {
			return "", gpferrors.NewAuthentificationError(
				"le compte n'est pas entièrement configuré ; le mot de passe a probablement expiré, merci de le réinitialiser", err)
		}

		if attempt < a.nbAttempts {
			a.logger.WarnContext(ctx, "token acquisition failed, retrying",
				"attempt", attempt, "max_attempts", a.nbAttempts, "error", err)
			select {
			case <-ctx.Done():
				return "", gpferrors.NewAuthentificationError("authentification annulée", ctx.Err())
			case <-time.After(a.secBetweenAttempts):
			}
		}
	}

	return "", gpferrors.NewAuthentificationError(
		fmt.Sprintf("la récupération du jeton d'authentification a échoué après %d tentatives", a.nbAttempts), lastErr)
}

func accountNotSetUp(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if strings.Contains(string(retrieveErr.Body), "Account is not fully set up") {
			return true
		}
		if retrieveErr.ErrorDescription != "" && strings.Contains(retrieveErr.ErrorDescription, "Account is not fully set up") {
			return true
		}
	}
	return strings.Contains(err.Error(), "Account is not fully set up")
}

// GetHTTPHeader returns the Authorization header (and, when
// jsonContentType is true, a content-type header) to attach to an
// authenticated request.
func (a *Authenticator) GetHTTPHeader(ctx context.Context, jsonContentType bool) (http.Header, error) {
	token, err := a.GetAccessTokenString(ctx)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	if jsonContentType {
		h.Set("content-type", "application/json")
	}
	return h, nil
}

// RevokeToken drops the cached token so the next GetAccessTokenString call
// re-acquires one.
func (a *Authenticator) RevokeToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = nil
}
