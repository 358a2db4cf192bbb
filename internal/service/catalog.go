package service

import (
	"context"
	"log"
	"strings"

	"restopos/internal/domain"
	"restopos/internal/xid"
)

// CreateExpense books a drawer payout against the open shift. Input is
// validated before the shift is looked up so a bad form never reaches the
// store.
func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.ExpenseResponse, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.WorkerName = strings.TrimSpace(req.WorkerName)
	if req.Category == "" {
		req.Category = domain.ExpenseGeneral
	}

	var errs fieldErrors
	if req.Description == "" {
		errs.add("description", "is required")
	}
	if req.AmountCents < 1 {
		errs.add("amount_cents", "must be positive")
	}
	switch req.Category {
	case domain.ExpenseGeneral:
		req.WorkerName = ""
	case domain.ExpenseWage:
		if req.WorkerName == "" {
			errs.add("worker_name", "is required for wages")
		}
	default:
		errs.add("category", "must be general or wage")
	}
	if err := errs.err(); err != nil {
		return domain.ExpenseResponse{}, err
	}

	shift, err := s.till.RequireOpenShift(ctx)
	if err != nil {
		return domain.ExpenseResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:           xid.New("expense"),
		ShiftID:      shift.ID,
		BusinessDate: shift.BusinessDate,
		Description:  req.Description,
		AmountCents:  req.AmountCents,
		Category:     req.Category,
		WorkerName:   req.WorkerName,
		CreatedBy:    actor.Username,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.ExpenseResponse{}, err
	}
	log.Printf("[service] expense created id=%s shift=%s amount=%d category=%s", created.ID, created.ShiftID, created.AmountCents, created.Category)
	return domain.ExpenseResponse{Expense: *created}, nil
}

func (s *Service) ListExpenses(ctx context.Context, date string) (domain.ExpenseListResponse, error) {
	businessDate, err := s.resolveDate(date)
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, businessDate)
	if err != nil {
		return domain.ExpenseListResponse{}, err
	}
	return domain.ExpenseListResponse{BusinessDate: businessDate, Expenses: expenses}, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	return s.repo.DeleteExpense(ctx, strings.TrimSpace(id))
}

// ListMenu serves from the cache and repopulates it on a miss. Cache
// failures only cost a store read.
func (s *Service) ListMenu(ctx context.Context) ([]domain.MenuItem, error) {
	cached, ok, err := s.menuCache.GetMenu(ctx)
	if err != nil {
		log.Printf("[service] WARN: menu cache read failed: %v", err)
	}
	if ok {
		return cached, nil
	}

	items, err := s.repo.ListMenuItems(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.menuCache.SetMenu(ctx, items, s.menuTTL); err != nil {
		log.Printf("[service] WARN: menu cache write failed: %v", err)
	}
	return items, nil
}

func (s *Service) CreateMenuItem(ctx context.Context, req domain.MenuItemCreateRequest) (domain.MenuItem, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))

	var errs fieldErrors
	if req.Name == "" {
		errs.add("name", "is required")
	}
	if req.Category == "" {
		errs.add("category", "is required")
	}
	if req.PriceCents < 0 {
		errs.add("price_cents", "must not be negative")
	}
	if err := errs.err(); err != nil {
		return domain.MenuItem{}, err
	}

	created, err := s.repo.CreateMenuItem(ctx, domain.MenuItem{
		ID:          xid.New("menu"),
		Name:        req.Name,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		Description: strings.TrimSpace(req.Description),
		Available:   true,
		UpdatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	s.invalidateMenu(ctx)
	return *created, nil
}

func (s *Service) UpdateMenuItem(ctx context.Context, id string, req domain.MenuItemUpdateRequest) (domain.MenuItem, error) {
	existing, err := s.repo.GetMenuItem(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.MenuItem{}, err
	}

	updated := *existing
	var errs fieldErrors
	if req.Name != nil {
		if updated.Name = strings.TrimSpace(*req.Name); updated.Name == "" {
			errs.add("name", "must not be empty")
		}
	}
	if req.Category != nil {
		if updated.Category = strings.ToLower(strings.TrimSpace(*req.Category)); updated.Category == "" {
			errs.add("category", "must not be empty")
		}
	}
	if req.PriceCents != nil {
		if updated.PriceCents = *req.PriceCents; updated.PriceCents < 0 {
			errs.add("price_cents", "must not be negative")
		}
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Available != nil {
		updated.Available = *req.Available
	}
	if err := errs.err(); err != nil {
		return domain.MenuItem{}, err
	}

	saved, err := s.repo.UpdateMenuItem(ctx, updated)
	if err != nil {
		return domain.MenuItem{}, err
	}
	s.invalidateMenu(ctx)
	return *saved, nil
}

func (s *Service) DeleteMenuItem(ctx context.Context, id string) error {
	if err := s.repo.DeleteMenuItem(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateMenu(ctx)
	return nil
}

func (s *Service) invalidateMenu(ctx context.Context) {
	if err := s.menuCache.InvalidateMenu(ctx); err != nil {
		log.Printf("[service] WARN: menu cache invalidate failed: %v", err)
	}
}
