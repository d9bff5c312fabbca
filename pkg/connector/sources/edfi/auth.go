package edfi

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenManager caches the client-credentials access token shared by every
// request of a Client.
type TokenManager struct {
	config     *clientcredentials.Config
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// NewTokenManager creates a token manager for the API at baseURL. No token
// is requested until the first call.
func NewTokenManager(baseURL, clientID, clientSecret string, httpClient *http.Client, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     strings.TrimRight(baseURL, "/") + "/oauth/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// Token returns the cached access token, acquiring one if none is cached or
// the cached one expired.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Valid() {
		return m.token.AccessToken, nil
	}
	return m.acquire(ctx)
}

// Refresh replaces the token the server rejected. When a concurrent caller
// already replaced stale, the newer token is returned without another
// exchange.
func (m *TokenManager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Valid() && m.token.AccessToken != stale {
		return m.token.AccessToken, nil
	}

	metrics.TokenRefreshes.Inc()
	m.logger.Info("access token rejected, refreshing")
	return m.acquire(ctx)
}

// acquire must be called with mu held.
func (m *TokenManager) acquire(ctx context.Context) (string, error) {
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	token, err := m.config.Token(ctx)
	if err != nil {
		m.token = nil
		return "", classifyTokenError(err)
	}

	m.token = token
	m.logger.Debug("access token acquired", zap.Time("expiry", token.Expiry))
	return token.AccessToken, nil
}

func classifyTokenError(err error) error {
	if errors.IsCancellation(err) {
		return err
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		switch status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			// invalid_client and friends: credentials will not improve on retry
			return errors.FromStatus(http.StatusUnauthorized, "token request rejected: "+retrieveErr.Error()).
				WithDetail("token_status", status)
		default:
			return errors.FromStatus(status, "token request failed: "+retrieveErr.Error())
		}
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "failed to obtain access token")
}
