package httpapi

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"restopos/internal/domain"
)

func seededAccounts(t *testing.T) []domain.UserAccount {
	t.Helper()
	return []domain.UserAccount{
		{Username: "admin", Password: "admin-pass-2026", Role: domain.RoleAdmin, Active: true},
		{Username: "Kasir", Password: mustHashPassword(t, "kasir-pass-2026"), Role: domain.RoleCashier, Active: true},
		{Username: "lama", Password: "lama-pass-2026", Role: domain.RoleCashier, Active: false},
		{Username: "kosong", Role: domain.RoleCashier, Active: true},
	}
}

func TestAuthManagerHashesPlainSeedPasswords(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAccounts(t))

	cred, ok := manager.users["admin"]
	if !ok {
		t.Fatalf("expected admin to be seeded")
	}
	if !strings.HasPrefix(cred.password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", cred.password)
	}
	if _, ok := manager.users["kosong"]; ok {
		t.Fatalf("account without password must not be seeded")
	}

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin-pass-2026"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestAuthManagerAcceptsPrehashedSeed(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAccounts(t))

	resp, err := manager.Login(domain.LoginRequest{Username: " kasir ", Password: "kasir-pass-2026"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleCashier {
		t.Fatalf("expected cashier role, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "kasir" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerRejectsInactiveAndWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAccounts(t))

	cases := []struct {
		name string
		req  domain.LoginRequest
	}{
		{name: "wrong password", req: domain.LoginRequest{Username: "admin", Password: "nope"}},
		{name: "unknown user", req: domain.LoginRequest{Username: "ghost", Password: "admin-pass-2026"}},
		{name: "inactive", req: domain.LoginRequest{Username: "lama", Password: "lama-pass-2026"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.Login(tc.req); err == nil {
				t.Fatalf("expected login to fail")
			}
		})
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, seededAccounts(t))

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := NewAuthManager("another-secret", time.Hour, nil)
	foreign, err := other.sign("admin", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "admin", Issuer: "restopos"})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
