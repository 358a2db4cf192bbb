package cache

import (
	"context"
	"time"

	"restopos/internal/domain"
)

// MenuCache holds the full menu list under a single key.
type MenuCache interface {
	GetMenu(ctx context.Context) ([]domain.MenuItem, bool, error)
	SetMenu(ctx context.Context, items []domain.MenuItem, ttl time.Duration) error
	InvalidateMenu(ctx context.Context) error
}

type NoopMenuCache struct{}

func (NoopMenuCache) GetMenu(_ context.Context) ([]domain.MenuItem, bool, error) {
	return nil, false, nil
}

func (NoopMenuCache) SetMenu(_ context.Context, _ []domain.MenuItem, _ time.Duration) error {
	return nil
}

func (NoopMenuCache) InvalidateMenu(_ context.Context) error {
	return nil
}
