package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, tenant string, branch string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant":   tenant,
		"branch":   branch,
		"terminal": "kasir-3",
		"sid":      "sess-abc",
		"exp":      exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestNewPrefersTokenClaims(t *testing.T) {
	token := signedToken(t, "warung-7", "cabang-utara", time.Now().Add(time.Hour))

	s, err := New(token, "fallback-tenant", "fallback-branch", "terminal-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.TenantID != "warung-7" || s.BranchID != "cabang-utara" {
		t.Fatalf("expected claims to win, got tenant=%q branch=%q", s.TenantID, s.BranchID)
	}
	if s.TerminalID != "kasir-3" {
		t.Fatalf("expected terminal from claims, got %q", s.TerminalID)
	}
	if s.CatalogKey() != "catalog:warung-7:cabang-utara" {
		t.Fatalf("unexpected catalog key %q", s.CatalogKey())
	}
	if s.OutboxKey() != "outbox:warung-7:cabang-utara" {
		t.Fatalf("unexpected outbox key %q", s.OutboxKey())
	}
}

func TestNewWithoutTokenUsesFallbacks(t *testing.T) {
	s, err := New("", "toko-a", "pusat", "terminal-2")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.TenantID != "toko-a" || s.BranchID != "pusat" {
		t.Fatalf("expected configured tenant/branch, got %q/%q", s.TenantID, s.BranchID)
	}
	if s.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if s.Expired(time.Now()) {
		t.Fatalf("session without exp must not expire")
	}
}

func TestExpired(t *testing.T) {
	token := signedToken(t, "warung-7", "cabang-utara", time.Now().Add(-time.Minute))

	s, err := New(token, "", "", "")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if !s.Expired(time.Now()) {
		t.Fatalf("expected expired session")
	}
}

func TestNewRejectsGarbageToken(t *testing.T) {
	if _, err := New("not-a-jwt", "t", "b", "term"); err == nil {
		t.Fatalf("expected decode error for malformed token")
	}
}
