package till

import "restopos/internal/domain"

// ComputeAggregates derives the till numbers from the complete order and
// expense lists of one business date. Pending orders are counted but never
// contribute money. The result does not depend on input order.
func ComputeAggregates(orders []domain.Order, expenses []domain.Expense, openingFloatCents int64) domain.ShiftAggregates {
	agg := domain.ShiftAggregates{OpeningFloatCents: openingFloatCents}

	for _, order := range orders {
		if !order.IsPaid() {
			agg.PendingOrders++
			continue
		}
		agg.PaidOrders++
		agg.GrossCollectedCents += order.CollectedCents()
		agg.DeliveryFeesTotalCents += order.DeliveryFeeCents
		agg.DiscountTotalCents += order.DiscountCents

		for _, payment := range order.Payments {
			switch payment.Method {
			case domain.PaymentCash:
				agg.CashCollectedCents += payment.AmountCents
			case domain.PaymentCard:
				agg.CardCollectedCents += payment.AmountCents
			case domain.PaymentTransfer:
				agg.TransferCollectedCents += payment.AmountCents
			default:
				agg.OtherCollectedCents += payment.AmountCents
			}
		}
	}

	for _, expense := range expenses {
		agg.ExpenseCount++
		agg.ExpensesTotalCents += expense.AmountCents
		if expense.Category == domain.ExpenseWage {
			agg.WagesTotalCents += expense.AmountCents
		}
	}

	agg.NetSalesCents = agg.GrossCollectedCents - agg.DeliveryFeesTotalCents
	agg.NetProfitCents = agg.NetSalesCents - agg.ExpensesTotalCents
	// Expenses are paid out of the drawer.
	agg.CashOnHandCents = openingFloatCents + agg.CashCollectedCents - agg.ExpensesTotalCents
	return agg
}

func ordersForDate(orders []domain.Order, businessDate string) []domain.Order {
	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.BusinessDate == businessDate {
			result = append(result, order)
		}
	}
	return result
}

func expensesForDate(expenses []domain.Expense, businessDate string) []domain.Expense {
	result := make([]domain.Expense, 0, len(expenses))
	for _, expense := range expenses {
		if expense.BusinessDate == businessDate {
			result = append(result, expense)
		}
	}
	return result
}

func pendingOrders(orders []domain.Order) []domain.Order {
	result := make([]domain.Order, 0, 8)
	for _, order := range orders {
		if !order.IsPaid() {
			result = append(result, order)
		}
	}
	return result
}
