// Package auth provides a JWT-aware bearer token manager: it holds the
// current token, decodes its claims to judge expiry, and refreshes it in
// the background via a caller-supplied callback before it expires.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/corvid-labs/wireclient/header"
)

// RefreshFunc fetches a fresh bearer token, however the caller wants to do
// that (a request through an engine.Context, a local credential exchange,
// anything returning a raw token string).
type RefreshFunc func() (string, error)

// Authenticator manages a single bearer token, refreshing it automatically
// before it expires. All mutations are protected by a sync.RWMutex so the
// token can be read by many goroutines issuing requests concurrently.
type Authenticator struct {
	token   string
	refresh RefreshFunc
	mu      sync.RWMutex
	stopCh  chan struct{}
	once    sync.Once
}

// New creates an Authenticator with no token set; call SetToken or Refresh
// before the first request that needs it.
func New(refresh RefreshFunc) *Authenticator {
	return &Authenticator{refresh: refresh, stopCh: make(chan struct{})}
}

// SetToken stores a new token directly, bypassing RefreshFunc.
func (a *Authenticator) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current token, or "" if none has been set yet.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Apply sets the Authorization header to "Bearer <token>" if a token is
// currently held, overwriting any value the caller already set.
func (a *Authenticator) Apply(h *header.Header) {
	tok := a.Token()
	if tok == "" {
		return
	}
	h.Remove("Authorization")
	h.Append("Authorization", "Bearer "+tok)
}

// ParseClaims decodes the payload segment of a JWT and returns the claims
// as a map. It does not verify the signature — the caller trusts the
// server-issued token and isn't re-validating it, only reading its expiry.
func ParseClaims(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("auth: malformed JWT: expected 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("auth: decode JWT payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("auth: unmarshal JWT claims: %w", err)
	}
	return claims, nil
}

// IsExpired returns true if token's "exp" claim is in the past, or if the
// token cannot be parsed. A zero or missing "exp" claim is treated as
// non-expired.
func IsExpired(token string) bool {
	claims, err := ParseClaims(token)
	if err != nil {
		return true
	}
	exp, ok := claims["exp"]
	if !ok {
		return false
	}
	expFloat, ok := exp.(float64)
	if !ok || expFloat == 0 {
		return false
	}
	return time.Now().Unix() >= int64(expFloat)
}

// Refresh calls RefreshFunc and stores the result.
func (a *Authenticator) Refresh() error {
	if a.refresh == nil {
		return fmt.Errorf("auth: no RefreshFunc configured")
	}
	tok, err := a.refresh()
	if err != nil {
		return fmt.Errorf("auth: refresh: %w", err)
	}
	if tok == "" {
		return fmt.Errorf("auth: refresh returned empty token")
	}
	a.SetToken(tok)
	return nil
}

// StartAutoRefresh launches a background goroutine that checks the current
// token every checkInterval and calls Refresh when the token is missing,
// unparseable, or will expire within refreshBefore. Non-blocking; call Stop
// to terminate it.
func (a *Authenticator) StartAutoRefresh(checkInterval, refreshBefore time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				a.maybeRefresh(refreshBefore)
			}
		}
	}()
}

func (a *Authenticator) maybeRefresh(refreshBefore time.Duration) {
	tok := a.Token()
	if tok == "" {
		_ = a.Refresh()
		return
	}
	claims, err := ParseClaims(tok)
	if err != nil {
		_ = a.Refresh()
		return
	}
	expRaw, ok := claims["exp"]
	if !ok {
		return
	}
	expFloat, ok := expRaw.(float64)
	if !ok {
		return
	}
	deadline := time.Unix(int64(expFloat), 0).Add(-refreshBefore)
	if time.Now().After(deadline) {
		_ = a.Refresh()
	}
}

// Stop signals the background refresh goroutine to exit. Idempotent.
func (a *Authenticator) Stop() {
	a.once.Do(func() { close(a.stopCh) })
}
