package auth_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvid-labs/wireclient/auth"
	"github.com/corvid-labs/wireclient/header"
)

// sampleJWT encodes {"sub":"1234567890","name":"Test","exp":9999999999} in
// its payload segment (exp is far in the future so IsExpired is false).
const sampleJWT = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJzdWIiOiIxMjM0NTY3ODkwIiwibmFtZSI6IlRlc3QiLCJleHAiOjk5OTk5OTk5OTl9." +
	"SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c"

// expiredJWT has exp=1 so IsExpired is always true.
const expiredJWT = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJzdWIiOiIxMjM0NTY3ODkwIiwiZXhwIjoxfQ." +
	"SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c"

func TestSetTokenAndToken(t *testing.T) {
	a := auth.New(nil)
	defer a.Stop()

	if a.Token() != "" {
		t.Error("expected empty token on construction")
	}
	a.SetToken("abc.def.ghi")
	if got := a.Token(); got != "abc.def.ghi" {
		t.Errorf("Token: got %q, want abc.def.ghi", got)
	}
}

func TestApplySetsAuthorizationHeader(t *testing.T) {
	a := auth.New(nil)
	defer a.Stop()
	a.SetToken("mytoken")

	h := header.New()
	a.Apply(h)

	got, ok := h.Get("Authorization")
	if !ok {
		t.Fatal("expected Authorization header to be set")
	}
	if got != "Bearer mytoken" {
		t.Errorf("Authorization: got %q, want %q", got, "Bearer mytoken")
	}
}

func TestApplyOverwritesExistingHeader(t *testing.T) {
	a := auth.New(nil)
	defer a.Stop()
	a.SetToken("newtoken")

	h := header.New(header.Pair{Name: "Authorization", Value: "Bearer stale"})
	a.Apply(h)

	got, _ := h.Get("Authorization")
	if got != "Bearer newtoken" {
		t.Errorf("Authorization: got %q, want %q", got, "Bearer newtoken")
	}
	if n := len(h.Values("Authorization")); n != 1 {
		t.Errorf("expected exactly one Authorization value, got %d", n)
	}
}

func TestApplyNoopWithoutToken(t *testing.T) {
	a := auth.New(nil)
	defer a.Stop()

	h := header.New()
	a.Apply(h)

	if h.Has("Authorization") {
		t.Error("expected no Authorization header when no token is set")
	}
}

func TestParseClaimsValid(t *testing.T) {
	claims, err := auth.ParseClaims(sampleJWT)
	if err != nil {
		t.Fatalf("ParseClaims error: %v", err)
	}
	if _, ok := claims["sub"]; !ok {
		t.Error("expected 'sub' claim")
	}
	if _, ok := claims["exp"]; !ok {
		t.Error("expected 'exp' claim")
	}
}

func TestParseClaimsMalformed(t *testing.T) {
	if _, err := auth.ParseClaims("not.enough"); err == nil {
		t.Error("expected error for too few segments")
	}
	if _, err := auth.ParseClaims("one.two.three.four"); err == nil {
		t.Error("expected error for too many segments")
	}
	if _, err := auth.ParseClaims("!!!.bbbb.cccc"); err == nil {
		t.Error("expected error for unparseable base64 payload")
	}
}

func TestIsExpired(t *testing.T) {
	if auth.IsExpired(sampleJWT) {
		t.Error("expected sampleJWT to not be expired")
	}
	if !auth.IsExpired(expiredJWT) {
		t.Error("expected expiredJWT to be expired")
	}
	if !auth.IsExpired("garbage") {
		t.Error("expected unparseable token to be treated as expired")
	}
}

func TestRefreshSuccess(t *testing.T) {
	a := auth.New(func() (string, error) { return "fresh-token", nil })
	defer a.Stop()

	if err := a.Refresh(); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if a.Token() != "fresh-token" {
		t.Errorf("Token: got %q, want fresh-token", a.Token())
	}
}

func TestRefreshPropagatesError(t *testing.T) {
	a := auth.New(func() (string, error) { return "", fmt.Errorf("upstream down") })
	defer a.Stop()

	if err := a.Refresh(); err == nil {
		t.Error("expected error from Refresh")
	}
}

func TestRefreshRejectsEmptyToken(t *testing.T) {
	a := auth.New(func() (string, error) { return "", nil })
	defer a.Stop()

	if err := a.Refresh(); err == nil {
		t.Error("expected error when RefreshFunc returns an empty token")
	}
}

func TestRefreshWithoutFuncErrors(t *testing.T) {
	a := auth.New(nil)
	defer a.Stop()

	if err := a.Refresh(); err == nil {
		t.Error("expected error when no RefreshFunc is configured")
	}
}

func TestStartAutoRefreshReplacesExpiredToken(t *testing.T) {
	var calls int32
	a := auth.New(func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return sampleJWT, nil
	})
	defer a.Stop()

	a.SetToken(expiredJWT)
	a.StartAutoRefresh(5*time.Millisecond, time.Hour)

	deadline := time.After(500 * time.Millisecond)
	for {
		if atomic.LoadInt32(&calls) > 0 && a.Token() == sampleJWT {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for auto refresh to replace expired token")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	a := auth.New(nil)
	a.StartAutoRefresh(time.Hour, time.Minute)
	a.Stop()
	a.Stop()
}
