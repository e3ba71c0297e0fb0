// Package auth manages the user's backend session: a single in-memory
// access token plus a refresh token stored on disk. Tokens come from
// the kripika.com login flow or from a refresh grant; nothing here
// verifies JWTs, the backend does that.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kripika/tli-tracker/internal/remote"
)

const refreshTokenFile = "refresh_token"

// Backend is the slice of the remote client the manager needs.
type Backend interface {
	RefreshToken(ctx context.Context, refreshToken string) (*remote.TokenGrant, error)
}

// Session is the in-memory authenticated state. At most one exists.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string
	UserEmail   string
}

// Manager owns the session and the stored refresh token.
type Manager struct {
	backend      Backend
	dataDir      string
	callbackPort int

	mu      sync.Mutex
	session *Session
	// cancel is the cancel flag of the login attempt in flight, if any.
	// Each attempt installs a fresh flag; the listener polls it.
	cancel *atomic.Bool

	now func() time.Time
}

// NewManager creates a Manager that stores its refresh token under
// dataDir.
func NewManager(backend Backend, dataDir string) *Manager {
	return &Manager{
		backend:      backend,
		dataDir:      dataDir,
		callbackPort: defaultCallbackPort,
		now:          time.Now,
	}
}

// Session returns a copy of the current in-memory session.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// LoggedIn reports whether the user has a live session or a stored
// refresh token that could mint one.
func (m *Manager) LoggedIn() bool {
	if _, ok := m.Session(); ok {
		return true
	}
	_, err := m.loadRefreshToken()
	return err == nil
}

// GetValidToken returns an access token that is good right now. The
// in-memory token is used while it is unexpired; otherwise the stored
// refresh token is exchanged for a new one. A failed refresh clears
// the session and the stored token entirely, so the tracker is never
// half logged in.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.session != nil && m.now().Before(m.session.ExpiresAt) {
		tok := m.session.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	refresh, err := m.loadRefreshToken()
	if err != nil {
		return "", fmt.Errorf("not logged in: %w", err)
	}
	if m.backend == nil {
		// Remote sync was never configured. Keep the stored token so a
		// properly configured restart can still refresh it.
		return "", errors.New("refreshing session: remote sync is not configured")
	}

	// Network call happens outside the lock.
	grant, err := m.backend.RefreshToken(ctx, refresh)
	if err != nil {
		m.clearSession()
		return "", fmt.Errorf("refreshing session: %w", err)
	}

	sess := m.installGrant(grant)
	return sess.AccessToken, nil
}

// SetUserIdentity fills in the user id and email on the current
// session. Used when a grant carried a token without a user block and
// the identity was resolved from the backend afterwards.
func (m *Manager) SetUserIdentity(userID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	if userID != "" {
		m.session.UserID = userID
	}
	if email != "" {
		m.session.UserEmail = email
	}
}

// SignOut removes the stored refresh token and clears the session.
func (m *Manager) SignOut() error {
	if err := os.Remove(m.refreshTokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing refresh token: %w", err)
	}
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

// installGrant builds a session from a token grant, persists the
// rotated refresh token, and makes the session current.
func (m *Manager) installGrant(grant *remote.TokenGrant) Session {
	sess := Session{
		AccessToken: grant.AccessToken,
		UserID:      grant.User.ID,
		UserEmail:   grant.User.Email,
	}
	if grant.ExpiresIn > 0 {
		sess.ExpiresAt = m.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	}

	// Fill gaps from the token's own claims.
	userID, email, expiresAt := claimsFromToken(grant.AccessToken)
	if sess.UserID == "" {
		sess.UserID = userID
	}
	if sess.UserEmail == "" {
		sess.UserEmail = email
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = expiresAt
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = m.now().Add(time.Hour)
	}

	if grant.RefreshToken != "" {
		if err := m.saveRefreshToken(grant.RefreshToken); err != nil {
			log.Printf("[auth] saving refresh token: %v", err)
		}
	}

	m.mu.Lock()
	m.session = &sess
	m.mu.Unlock()
	return sess
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	if err := os.Remove(m.refreshTokenPath()); err != nil && !os.IsNotExist(err) {
		log.Printf("[auth] removing refresh token: %v", err)
	}
}

func (m *Manager) refreshTokenPath() string {
	return filepath.Join(m.dataDir, refreshTokenFile)
}

func (m *Manager) saveRefreshToken(token string) error {
	if err := os.MkdirAll(m.dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	return os.WriteFile(m.refreshTokenPath(), []byte(token), 0o600)
}

func (m *Manager) loadRefreshToken() (string, error) {
	data, err := os.ReadFile(m.refreshTokenPath())
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("stored refresh token is empty")
	}
	return token, nil
}

// claimsFromToken pulls user id, email and expiry out of a JWT without
// verifying it. The token came from the backend over TLS; it is the
// backend's signature, not ours, so there is nothing to check locally.
func claimsFromToken(token string) (userID, email string, expiresAt time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", "", time.Time{}
	}
	userID, _ = claims["sub"].(string)
	email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return userID, email, expiresAt
}
