package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"restopos/internal/store"
)

func (s *Store) WatchOrders(ctx context.Context, businessDate string) (<-chan store.OrdersEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	return watch(ctx, s.ordersQuery(businessDate), func(docs []*firestore.DocumentSnapshot) (store.OrdersEvent, error) {
		orders, err := decodeOrders(docs)
		return store.OrdersEvent{Orders: orders}, err
	}, func(err error) store.OrdersEvent {
		return store.OrdersEvent{Err: err}
	}), nil
}

func (s *Store) WatchExpenses(ctx context.Context, businessDate string) (<-chan store.ExpensesEvent, error) {
	if businessDate == "" {
		return nil, store.ErrInvalidTransaction
	}
	return watch(ctx, s.expensesQuery(businessDate), func(docs []*firestore.DocumentSnapshot) (store.ExpensesEvent, error) {
		expenses, err := decodeExpenses(docs)
		return store.ExpensesEvent{Expenses: expenses}, err
	}, func(err error) store.ExpensesEvent {
		return store.ExpensesEvent{Err: err}
	}), nil
}

func watch[E any](ctx context.Context, q firestore.Query, decode func([]*firestore.DocumentSnapshot) (E, error), fail func(error) E) <-chan E {
	out := make(chan E)
	go func() {
		defer close(out)
		it := q.Snapshots(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					deliver(ctx, out, fail(wrapErr("snapshot", err)))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				deliver(ctx, out, fail(wrapErr("snapshot documents", err)))
				return
			}
			event, err := decode(docs)
			if err != nil {
				deliver(ctx, out, fail(err))
				return
			}
			if !deliver(ctx, out, event) {
				return
			}
		}
	}()
	return out
}

func deliver[E any](ctx context.Context, out chan<- E, event E) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ store.Repository = (*Store)(nil)
