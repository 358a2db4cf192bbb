package till

import (
	"slices"
	"time"

	"restopos/internal/domain"
)

// BuildSnapshot freezes the aggregates together with a copy of every paid
// order and every expense so a closed shift can be reported without the
// source documents.
func BuildSnapshot(orders []domain.Order, expenses []domain.Expense, openingFloatCents int64, closedBy string, at time.Time) domain.ClosingSnapshot {
	return domain.ClosingSnapshot{
		Aggregates: ComputeAggregates(orders, expenses, openingFloatCents),
		Movements:  OrderMovements(orders),
		Expenses:   ExpenseMovements(expenses),
		ClosedBy:   closedBy,
		CapturedAt: at.UTC(),
	}
}

// OrderMovements summarizes paid orders in order-number sequence.
func OrderMovements(orders []domain.Order) []domain.OrderMovement {
	movements := make([]domain.OrderMovement, 0, len(orders))
	for _, order := range orders {
		if !order.IsPaid() {
			continue
		}
		var paidAt *time.Time
		if order.PaidAt != nil {
			at := order.PaidAt.UTC()
			paidAt = &at
		}
		movements = append(movements, domain.OrderMovement{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			CustomerName:     order.CustomerName,
			Items:            slices.Clone(order.Items),
			DeliveryType:     order.DeliveryType,
			DeliveryFeeCents: order.DeliveryFeeCents,
			TotalCents:       order.TotalCents,
			DiscountCents:    order.DiscountCents,
			CollectedCents:   order.CollectedCents(),
			PaymentMethod:    paymentMethodLabel(order.Payments),
			Payments:         slices.Clone(order.Payments),
			PaidAt:           paidAt,
		})
	}
	slices.SortStableFunc(movements, func(a, b domain.OrderMovement) int {
		return a.OrderNumber - b.OrderNumber
	})
	return movements
}

func ExpenseMovements(expenses []domain.Expense) []domain.ExpenseMovement {
	movements := make([]domain.ExpenseMovement, 0, len(expenses))
	for _, expense := range expenses {
		movements = append(movements, domain.ExpenseMovement{
			ExpenseID:   expense.ID,
			Description: expense.Description,
			Category:    expense.Category,
			WorkerName:  expense.WorkerName,
			AmountCents: expense.AmountCents,
			CreatedAt:   expense.CreatedAt.UTC(),
		})
	}
	slices.SortStableFunc(movements, func(a, b domain.ExpenseMovement) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return movements
}

func paymentMethodLabel(payments []domain.PaymentSplit) string {
	switch len(payments) {
	case 0:
		return ""
	case 1:
		return payments[0].Method
	default:
		return domain.PaymentSplitTag
	}
}
