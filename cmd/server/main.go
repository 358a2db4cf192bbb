package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode"

	"restopos/internal/cache"
	"restopos/internal/config"
	"restopos/internal/domain"
	"restopos/internal/httpapi"
	"restopos/internal/printer"
	"restopos/internal/service"
	"restopos/internal/store"
	fsstore "restopos/internal/store/firestore"
	"restopos/internal/store/memory"
	pgstore "restopos/internal/store/postgres"
	"restopos/internal/till"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Printf("[config] WARN: %v, using UTC", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository unavailable: %v", err)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	menuCache := cache.MenuCache(cache.NoopMenuCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisMenuCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StoreNamespace)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
			_ = redisCache.Close()
		} else {
			menuCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	sink, err := printer.NewSinkFromConfig(cfg.PrinterType, cfg.PrinterUSBPath, cfg.PrinterAddress)
	if err != nil {
		log.Printf("[printer] WARN: %v, falling back to preview only", err)
		sink = nil
	}
	spooler := printer.NewSpooler(sink, cfg.PrinterWidth, 0)
	if spooler.HasSink() {
		log.Printf("printer: %s", sink.Name())
	} else {
		log.Println("printer: preview only")
	}

	manager := till.NewManager(repo, till.WithLocation(loc), till.WithRetryDelay(cfg.FeedRetryDelay()))
	if err := manager.Restore(ctx); err != nil {
		log.Printf("[till] WARN: could not restore open shift: %v", err)
	}

	svc := service.New(repo, manager, menuCache, spooler,
		service.WithMenuTTL(cfg.MenuCacheTTL()),
		service.WithLocation(loc),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, seedAccounts(cfg))
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	// Cancelled on shutdown so open till streams end.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("restaurant POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	cancelBase()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	manager.Stop()
	spooler.Close()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.StoreNamespace)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		log.Println("repository: postgres")
		return pg, pg.Close, nil
	case config.BackendFirestore:
		if cfg.FirestoreProjectID == "" {
			return nil, nil, fmt.Errorf("STORE_BACKEND=firestore requires FIRESTORE_PROJECT_ID")
		}
		fs, err := fsstore.New(ctx, cfg.FirestoreProjectID, cfg.StoreNamespace)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore: %w", err)
		}
		log.Println("repository: firestore")
		return fs, fs.Close, nil
	case config.BackendMemory:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func seedAccounts(cfg config.Config) []domain.UserAccount {
	now := time.Now().UTC()
	return []domain.UserAccount{
		{Username: "admin", Password: cfg.SeedAdminPassword, Role: domain.RoleAdmin, Active: true, CreatedAt: now},
		{Username: "kasir", Password: cfg.SeedCashierPassword, Role: domain.RoleCashier, Active: true, CreatedAt: now},
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminPassword == "" {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set")
	}
	if err := validatePasswordStrength(cfg.SeedAdminPassword); err != nil {
		return fmt.Errorf("SEED_ADMIN_PASSWORD is too weak: %w", err)
	}
	if cfg.SeedCashierPassword != "" {
		if err := validatePasswordStrength(cfg.SeedCashierPassword); err != nil {
			return fmt.Errorf("SEED_CASHIER_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, known-weak ones, and
// passwords made of a single repeated or sequential run of characters.
func validatePasswordStrength(password string) error {
	if len(password) < 10 {
		return fmt.Errorf("must be at least 10 characters")
	}
	known := map[string]bool{
		"password123": true, "admin12345": true, "1234567890": true,
		"qwertyuiop": true, "restopos123": true, "kasir12345": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}

	hasLetter, hasDigit := false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("must mix letters and digits")
	}

	return nil
}
