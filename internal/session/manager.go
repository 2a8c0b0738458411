package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNoCookie is returned when the request carries no session cookie
var ErrNoCookie = errors.New("no session cookie")

// Manager ties the cookie, its signature and the cached payload together
type Manager struct {
	store      Store
	signer     *Signer
	cookieName string
	lifetime   time.Duration
}

// NewManager creates a session manager
func NewManager(store Store, signer *Signer, cookieName string, lifetime time.Duration) *Manager {
	return &Manager{store: store, signer: signer, cookieName: cookieName, lifetime: lifetime}
}

// Lifetime is the configured session lifetime
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Start caches payload under a fresh token and sets the cookie using the
// request's selected policy
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, payload Payload) error {
	policy := PolicyFromContext(r.Context(), m.lifetime)

	token, value, err := m.signer.Issue(policy.MaxAge)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, token, payload, policy.MaxAge); err != nil {
		return err
	}
	http.SetCookie(w, policy.Cookie(m.cookieName, value))
	return nil
}

// Current resolves the request cookie to its token and payload
func (m *Manager) Current(ctx context.Context, r *http.Request) (string, *Payload, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return "", nil, ErrNoCookie
	}
	token, err := m.signer.Verify(cookie.Value)
	if err != nil {
		return "", nil, err
	}
	payload, err := m.store.Load(ctx, token)
	if err != nil {
		return "", nil, err
	}
	return token, payload, nil
}

// End drops the cached payload, if any, and expires the cookie
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) error {
	http.SetCookie(w, PolicyFromContext(r.Context(), m.lifetime).Expired(m.cookieName))
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// ClearCookie expires the cookie without touching the store
func (m *Manager) ClearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, PolicyFromContext(r.Context(), m.lifetime).Expired(m.cookieName))
}
