package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warungpos/terminal/internal/xid"
)

// Session identifies the terminal against the remote services. The bearer
// token is issued by the auth service; the agent only decodes its claims to
// derive storage scope keys and the session expiry. Signature verification
// stays server-side.
type Session struct {
	Token      string
	TenantID   string
	BranchID   string
	TerminalID string
	SessionID  string
	ExpiresAt  time.Time
}

type claims struct {
	TenantID   string `json:"tenant"`
	BranchID   string `json:"branch"`
	TerminalID string `json:"terminal"`
	SessionID  string `json:"sid"`
	jwt.RegisteredClaims
}

// New builds the terminal session. When a token is present its claims win
// over the configured fallbacks; a terminal without a token keeps working
// with the configured tenant/branch so offline sales can still be queued.
func New(token string, tenantID string, branchID string, terminalID string) (*Session, error) {
	s := &Session{
		Token:      token,
		TenantID:   tenantID,
		BranchID:   branchID,
		TerminalID: terminalID,
		SessionID:  xid.New("sess"),
	}

	if token == "" {
		return s, nil
	}

	parser := jwt.NewParser()
	var c claims
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return nil, fmt.Errorf("decode session token: %w", err)
	}
	if c.TenantID != "" {
		s.TenantID = c.TenantID
	}
	if c.BranchID != "" {
		s.BranchID = c.BranchID
	}
	if c.TerminalID != "" {
		s.TerminalID = c.TerminalID
	}
	if c.SessionID != "" {
		s.SessionID = c.SessionID
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

func (s *Session) CatalogKey() string {
	return scopeKey("catalog", s.TenantID, s.BranchID)
}

func (s *Session) OutboxKey() string {
	return scopeKey("outbox", s.TenantID, s.BranchID)
}

// ScopeID names the terminal scope used for cross-process signal and lease
// keys.
func (s *Session) ScopeID() string {
	return fmt.Sprintf("%s:%s", s.TenantID, s.BranchID)
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

func scopeKey(kind string, tenant string, branch string) string {
	sanitize := func(v string) string {
		return strings.ReplaceAll(strings.TrimSpace(v), ":", "-")
	}
	return fmt.Sprintf("%s:%s:%s", kind, sanitize(tenant), sanitize(branch))
}
