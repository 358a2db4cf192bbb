package main

import (
	"context"
	"testing"

	"restopos/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
	}{
		{name: "short secret", cfg: config.Config{AuthSecret: "short", SeedAdminPassword: "k0pi-tubruk-pagi"}},
		{name: "missing admin password", cfg: config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}},
		{name: "common admin password", cfg: config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "Password123"}},
		{name: "sequential admin password", cfg: config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "abcdefghijk"}},
		{name: "letters only cashier password", cfg: config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "k0pi-tubruk-pagi", SeedCashierPassword: "kasirkasirkasir"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateSecurityConfig(tc.cfg); err == nil {
				t.Fatalf("expected weak security config to be rejected")
			}
		})
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:          "0123456789abcdef0123456789abcdef",
		SeedAdminPassword:   "k0pi-tubruk-pagi",
		SeedCashierPassword: "nasi-goreng-77",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryRequiresBackendSettings(t *testing.T) {
	ctx := context.Background()

	if _, _, err := openRepository(ctx, config.Config{StoreBackend: config.BackendPostgres}); err == nil {
		t.Fatalf("expected postgres without DATABASE_URL to fail")
	}
	if _, _, err := openRepository(ctx, config.Config{StoreBackend: config.BackendFirestore}); err == nil {
		t.Fatalf("expected firestore without project id to fail")
	}
	if _, _, err := openRepository(ctx, config.Config{StoreBackend: "mongo"}); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}

	repo, closeFn, err := openRepository(ctx, config.Config{StoreBackend: config.BackendMemory})
	if err != nil || repo == nil || closeFn != nil {
		t.Fatalf("expected in-memory repository, got %v %v", repo, err)
	}
}
