package service

import (
	"context"
	"strings"
	"time"

	"restopos/internal/cache"
	"restopos/internal/domain"
	"restopos/internal/money"
	"restopos/internal/printer"
	"restopos/internal/report"
	"restopos/internal/store"
	"restopos/internal/till"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Option func(*Service)

func WithMenuTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.menuTTL = ttl
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	repo      store.Repository
	till      *till.Manager
	menuCache cache.MenuCache
	menuTTL   time.Duration
	spooler   *printer.Spooler
	loc       *time.Location
	now       func() time.Time
}

func New(repo store.Repository, tillManager *till.Manager, menuCache cache.MenuCache, spooler *printer.Spooler, opts ...Option) *Service {
	if menuCache == nil {
		menuCache = cache.NoopMenuCache{}
	}
	if spooler == nil {
		spooler = printer.NewSpooler(nil, printer.DefaultWidth, 0)
	}
	s := &Service{
		repo:      repo,
		till:      tillManager,
		menuCache: menuCache,
		menuTTL:   5 * time.Minute,
		spooler:   spooler,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	actor, _ := ActorFromContext(ctx)
	shift, err := s.till.OpenShift(ctx, req.OpeningFloatCents, actor)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// CloseShift requires an explicit confirmation flag from the caller.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.ShiftResponse, error) {
	if !req.Confirm {
		return domain.ShiftResponse{}, store.NewValidationError("confirm", "must be true to close the shift")
	}
	actor, _ := ActorFromContext(ctx)
	shift, err := s.till.CloseShift(ctx, actor)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) TillState() domain.TillState {
	return s.till.State()
}

func (s *Service) SubscribeTill() (<-chan domain.TillState, func()) {
	return s.till.Subscribe()
}

func (s *Service) ListShifts(ctx context.Context, limit int) (domain.ShiftListResponse, error) {
	shifts, err := s.repo.ListShifts(ctx, limit)
	if err != nil {
		return domain.ShiftListResponse{}, err
	}
	return domain.ShiftListResponse{Shifts: shifts}, nil
}

func (s *Service) GetShift(ctx context.Context, id string) (domain.ShiftResponse, error) {
	shift, err := s.repo.GetShift(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

func (s *Service) ShiftReport(ctx context.Context, shiftID string) (report.Document, error) {
	return s.till.ExportReport(ctx, strings.TrimSpace(shiftID))
}

// resolveDate defaults to today and normalizes explicit dates.
func (s *Service) resolveDate(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return s.today(), nil
	}
	date, err := money.ParseBusinessDate(raw)
	if err != nil {
		return "", store.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return date, nil
}

func (s *Service) today() string {
	return money.BusinessDate(s.now(), s.loc)
}

type fieldErrors []store.FieldError

func (f *fieldErrors) add(field string, message string) {
	*f = append(*f, store.FieldError{Field: field, Message: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &store.ValidationError{Fields: f}
}
