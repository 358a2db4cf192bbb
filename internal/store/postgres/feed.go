package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"restopos/internal/store"
)

const (
	ordersChannel   = "restopos_orders"
	expensesChannel = "restopos_expenses"
)

func (s *Store) WatchOrders(ctx context.Context, businessDate string) (<-chan store.OrdersEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	return watch(ctx, s, ordersChannel, businessDate, func(ctx context.Context) (store.OrdersEvent, error) {
		orders, err := s.ListOrders(ctx, businessDate)
		return store.OrdersEvent{Orders: orders}, err
	}, func(err error) store.OrdersEvent {
		return store.OrdersEvent{Err: err}
	})
}

func (s *Store) WatchExpenses(ctx context.Context, businessDate string) (<-chan store.ExpensesEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	return watch(ctx, s, expensesChannel, businessDate, func(ctx context.Context) (store.ExpensesEvent, error) {
		expenses, err := s.ListExpenses(ctx, businessDate)
		return store.ExpensesEvent{Expenses: expenses}, err
	}, func(err error) store.ExpensesEvent {
		return store.ExpensesEvent{Err: err}
	})
}

// watch holds a dedicated LISTEN connection and reloads the full list after
// every notification for this schema and date.
func watch[E any](ctx context.Context, s *Store, channel string, businessDate string, load func(context.Context) (E, error), fail func(error) E) (<-chan E, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, wrapErr("listen "+channel, err)
	}
	if _, err := conn.ExecContext(ctx, `LISTEN `+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close()
		return nil, wrapErr("listen "+channel, err)
	}

	payload := s.schema + ":" + businessDate
	out := make(chan E)
	go func() {
		defer close(out)
		defer release(conn)

		for {
			event, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sendEvent(ctx, out, fail(err))
				}
				return
			}
			if !sendEvent(ctx, out, event) {
				return
			}
			if err := waitForPayload(ctx, conn, payload); err != nil {
				if ctx.Err() == nil {
					sendEvent(ctx, out, fail(store.Unavailable("wait "+channel, err)))
				}
				return
			}
		}
	}()
	return out, nil
}

func sendEvent[E any](ctx context.Context, out chan<- E, event E) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func waitForPayload(ctx context.Context, conn *sql.Conn, payload string) error {
	return conn.Raw(func(driverConn any) error {
		pgConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		for {
			n, err := pgConn.Conn().WaitForNotification(ctx)
			if err != nil {
				return err
			}
			if n.Payload == payload {
				return nil
			}
		}
	})
}

// release stops listening before handing the connection back to the pool.
func release(conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = conn.ExecContext(ctx, `UNLISTEN *`)
	_ = conn.Close()
}

var _ store.Repository = (*Store)(nil)
