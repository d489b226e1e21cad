package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured is returned when the OAuth client settings are missing
	ErrNotConfigured = errors.New("OAuth env vars missing")
	// ErrInvalidState is returned for an unknown anti-forgery token or a missing code
	ErrInvalidState = errors.New("invalid state or missing code")
)

// stateTTL bounds how long an issued anti-forgery token stays valid
const stateTTL = 15 * time.Minute

// Manager runs the authorization-code flow and holds the resulting credential
type Manager struct {
	oauth     *oauth2.Config
	userAgent string
	factory   platform.Factory
	runState  *state.RunState

	mu           sync.Mutex
	pending      map[string]time.Time
	refreshToken string
	now          func() time.Time
}

// NewManager creates a new OAuth session manager
func NewManager(oauthCfg *oauth2.Config, userAgent string, factory platform.Factory, runState *state.RunState) *Manager {
	return &Manager{
		oauth:     oauthCfg,
		userAgent: userAgent,
		factory:   factory,
		runState:  runState,
		pending:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// Configured reports whether client id, secret and redirect URI are all set
func (m *Manager) Configured() bool {
	return m.oauth != nil && m.oauth.ClientID != "" && m.oauth.ClientSecret != "" && m.oauth.RedirectURL != ""
}

// BeginAuth issues a fresh anti-forgery token and returns the authorization URL
func (m *Manager) BeginAuth() (string, error) {
	if !m.Configured() {
		return "", ErrNotConfigured
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := hex.EncodeToString(buf)

	m.mu.Lock()
	now := m.now()
	for issued, at := range m.pending {
		if now.Sub(at) > stateTTL {
			delete(m.pending, issued)
		}
	}
	m.pending[token] = now
	m.mu.Unlock()

	return m.oauth.AuthCodeURL(token, oauth2.SetAuthURLParam("duration", "permanent")), nil
}

// CompleteAuth validates the anti-forgery token, exchanges code for a durable
// refresh credential and caches the authenticated identity when possible.
func (m *Manager) CompleteAuth(ctx context.Context, code, stateToken string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if !m.consumeState(stateToken) || code == "" {
		return ErrInvalidState
	}

	token, err := m.oauth.Exchange(platform.WithUserAgent(ctx, m.userAgent), code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("authorization response carried no refresh token")
	}

	m.mu.Lock()
	m.refreshToken = token.RefreshToken
	m.mu.Unlock()

	user, err := m.factory(token.RefreshToken).Me(ctx)
	if err != nil {
		logrus.Warnf("Logged in but could not resolve identity: %v", err)
		return nil
	}
	m.runState.SetUser(user)
	logrus.Infof("Logged in as %s", user)
	return nil
}

// Logout discards the stored credential and cached identity
func (m *Manager) Logout() {
	m.mu.Lock()
	m.refreshToken = ""
	m.mu.Unlock()
	m.runState.SetUser("")
}

// RefreshToken returns the held credential, if any
func (m *Manager) RefreshToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken, m.refreshToken != ""
}

// SetRefreshToken installs a credential obtained out of band
func (m *Manager) SetRefreshToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshToken = token
}

func (m *Manager) consumeState(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	issued, ok := m.pending[token]
	if !ok || token == "" {
		return false
	}
	delete(m.pending, token)
	return m.now().Sub(issued) <= stateTTL
}
