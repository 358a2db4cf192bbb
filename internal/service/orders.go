package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"restopos/internal/domain"
	"restopos/internal/money"
	"restopos/internal/printer"
	"restopos/internal/store"
	"restopos/internal/xid"
)

// CreateOrder prices the items, numbers the order from the per-date counter
// and books it on the open shift's business date.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderResponse, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.DeliveryType = strings.ToLower(strings.TrimSpace(req.DeliveryType))
	if req.DeliveryType == "" {
		req.DeliveryType = domain.DeliveryOnSite
	}

	var errs fieldErrors
	switch req.DeliveryType {
	case domain.DeliveryOnSite:
		req.DeliveryFeeCents = 0
	case domain.DeliveryDelivery:
		if req.DeliveryFeeCents < 0 {
			errs.add("delivery_fee_cents", "must not be negative")
		}
		if strings.TrimSpace(req.Address) == "" {
			errs.add("address", "is required for delivery")
		}
	default:
		errs.add("delivery_type", "must be on_site or delivery")
	}
	if len(req.Items) == 0 {
		errs.add("items", "at least one item is required")
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	subtotal := int64(0)
	for i, item := range req.Items {
		line, err := s.priceLine(ctx, item)
		if err != nil {
			var verr *store.ValidationError
			if !errors.As(err, &verr) {
				return domain.OrderResponse{}, err
			}
			for _, f := range verr.Fields {
				errs.add(fmt.Sprintf("items[%d].%s", i, f.Field), f.Message)
			}
			continue
		}
		items = append(items, line)
		subtotal += line.LineTotalCents()
	}
	if err := errs.err(); err != nil {
		return domain.OrderResponse{}, err
	}

	shift, err := s.till.RequireOpenShift(ctx)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	number, err := s.repo.NextOrderNumber(ctx, shift.BusinessDate)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	order := domain.Order{
		ID:               xid.New("order"),
		OrderNumber:      number,
		BusinessDate:     shift.BusinessDate,
		ShiftID:          shift.ID,
		CustomerName:     req.CustomerName,
		Phone:            strings.TrimSpace(req.Phone),
		Address:          strings.TrimSpace(req.Address),
		Note:             strings.TrimSpace(req.Note),
		DeliveryType:     req.DeliveryType,
		DeliveryFeeCents: req.DeliveryFeeCents,
		Items:            items,
		SubtotalCents:    subtotal,
		TotalCents:       subtotal + req.DeliveryFeeCents,
		PaymentStatus:    domain.OrderStatusPending,
		CreatedBy:        actor.Username,
		CreatedAt:        s.now().UTC(),
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	log.Printf("[service] order created id=%s number=%d date=%s total=%d", created.ID, created.OrderNumber, created.BusinessDate, created.TotalCents)
	return domain.OrderResponse{Order: *created}, nil
}

// priceLine takes name and price from the menu when a menu item is referenced.
func (s *Service) priceLine(ctx context.Context, item domain.OrderItemRequest) (domain.LineItem, error) {
	var errs fieldErrors
	if item.Quantity < 1 {
		errs.add("quantity", "must be at least 1")
	}

	line := domain.LineItem{
		MenuItemID:     strings.TrimSpace(item.MenuItemID),
		Name:           strings.TrimSpace(item.Name),
		Quantity:       item.Quantity,
		UnitPriceCents: item.UnitPriceCents,
		Note:           strings.TrimSpace(item.Note),
	}
	if line.MenuItemID != "" {
		menuItem, err := s.repo.GetMenuItem(ctx, line.MenuItemID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			errs.add("menu_item_id", "unknown menu item")
		case err != nil:
			return domain.LineItem{}, err
		case !menuItem.Available:
			errs.add("menu_item_id", "menu item is not available")
		default:
			line.Name = menuItem.Name
			line.UnitPriceCents = menuItem.PriceCents
		}
	} else {
		if line.Name == "" {
			errs.add("name", "is required")
		}
		if line.UnitPriceCents < 0 {
			errs.add("unit_price_cents", "must not be negative")
		}
	}
	if err := errs.err(); err != nil {
		return domain.LineItem{}, err
	}
	return line, nil
}

func (s *Service) ListOrders(ctx context.Context, date string, status string) (domain.OrderListResponse, error) {
	businessDate, err := s.resolveDate(date)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != domain.OrderStatusPending && status != domain.OrderStatusPaid {
		return domain.OrderListResponse{}, store.NewValidationError("status", "must be pending or paid")
	}

	orders, err := s.repo.ListOrders(ctx, businessDate)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	filtered := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if status == "" || order.PaymentStatus == status {
			filtered = append(filtered, order)
		}
	}
	return domain.OrderListResponse{BusinessDate: businessDate, Orders: filtered}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.OrderResponse{}, err
	}
	return domain.OrderResponse{Order: *order}, nil
}

// DeleteOrder removes the source document only. Closed shifts keep their
// frozen copy.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	actor, _ := ActorFromContext(ctx)
	log.Printf("[service] order deleted id=%s by=%s", id, actor.Username)
	return nil
}

// PayOrder records the payment breakdown. The breakdown must add up to the
// amount due, which is the total less the house discount when applied.
func (s *Service) PayOrder(ctx context.Context, id string, req domain.PaymentRequest) (domain.OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.OrderResponse{}, err
	}
	if order.IsPaid() {
		return domain.OrderResponse{}, fmt.Errorf("order %d is already paid: %w", order.OrderNumber, store.ErrInvalidTransaction)
	}

	amountDue, discount := order.TotalCents, int64(0)
	if req.ApplyDiscount {
		amountDue, discount = money.ApplyDiscount(order.TotalCents)
	}

	payments, err := resolvePayments(req, amountDue)
	if err != nil {
		return domain.OrderResponse{}, err
	}

	cashPortion := int64(0)
	for _, p := range payments {
		if p.Method == domain.PaymentCash {
			cashPortion += p.AmountCents
		}
	}
	tendered, change := req.CashTenderedCents, int64(0)
	if tendered > 0 {
		if tendered < cashPortion {
			return domain.OrderResponse{}, store.NewValidationError("cash_tendered_cents", "is less than the cash amount due")
		}
		change = tendered - cashPortion
	}

	if _, err := s.till.RequireOpenShift(ctx); err != nil {
		return domain.OrderResponse{}, err
	}

	paidAt := s.now().UTC()
	order.Payments = payments
	order.DiscountCents = discount
	order.CashTenderedCents = tendered
	order.ChangeCents = change
	order.PaidAt = &paidAt

	paid, err := s.repo.MarkOrderPaid(ctx, *order)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	log.Printf("[service] order paid id=%s number=%d collected=%d discount=%d", paid.ID, paid.OrderNumber, paid.CollectedCents(), paid.DiscountCents)
	return domain.OrderResponse{Order: *paid}, nil
}

func resolvePayments(req domain.PaymentRequest, amountDue int64) ([]domain.PaymentSplit, error) {
	if len(req.Payments) == 0 {
		method := normalizeMethod(req.Method)
		if !isSupportedPaymentMethod(method) {
			return nil, store.NewValidationError("method", "must be cash, card, transfer or other")
		}
		return []domain.PaymentSplit{{Method: method, AmountCents: amountDue}}, nil
	}

	var errs fieldErrors
	payments := make([]domain.PaymentSplit, 0, len(req.Payments))
	sum := int64(0)
	for i, p := range req.Payments {
		method := normalizeMethod(p.Method)
		if !isSupportedPaymentMethod(method) {
			errs.add(fmt.Sprintf("payments[%d].method", i), "must be cash, card, transfer or other")
		}
		if p.AmountCents < 1 {
			errs.add(fmt.Sprintf("payments[%d].amount_cents", i), "must be positive")
		}
		sum += p.AmountCents
		payments = append(payments, domain.PaymentSplit{Method: method, AmountCents: p.AmountCents})
	}
	if sum != amountDue {
		errs.add("payments", fmt.Sprintf("must add up to %d, got %d", amountDue, sum))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer, domain.PaymentOther:
		return true
	default:
		return false
	}
}

func (s *Service) PrintOrder(ctx context.Context, id string) (domain.PrintResponse, error) {
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PrintResponse{}, err
	}
	receipt, err := s.spooler.PrintTicket(printer.TicketFromOrder(*order))
	if err != nil {
		return domain.PrintResponse{}, err
	}
	return domain.PrintResponse{Queued: receipt.Queued, Preview: receipt.Preview}, nil
}

func (s *Service) PrintInventory(_ context.Context, req domain.InventoryPrintRequest) (domain.PrintResponse, error) {
	items := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return domain.PrintResponse{}, store.NewValidationError("items", "at least one item is required")
	}
	receipt, err := s.spooler.PrintInventory(printer.InventoryList{Items: items, Date: s.today()})
	if err != nil {
		return domain.PrintResponse{}, err
	}
	return domain.PrintResponse{Queued: receipt.Queued, Preview: receipt.Preview}, nil
}
