package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		CustomerID:    1,
		CustomerEmail: "reader@example.com",
		PlacedAt:      now,
		TotalPrice:    decimal.RequireFromString("35.00"),
		Status:        domain.OrderStatusNew,
		Lines: []domain.OrderLine{
			{BookID: 1, BookName: "Dune", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{BookID: 2, BookName: "Solaris", Quantity: 1, UnitPrice: decimal.RequireFromString("15.00")},
		},
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut:  func(o *domain.Order) { o.CustomerEmail = "" },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no lines",
			mut:  func(o *domain.Order) { o.Lines = nil },
			want: domain.ErrItemsRequired,
		},
		{
			name: "unknown status",
			mut:  func(o *domain.Order) { o.Status = "SHIPPED" },
			want: domain.ErrInvalidStatus,
		},
		{
			name: "zero quantity",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = 0 },
			want: domain.ErrQuantityInvalid,
		},
		{
			name: "negative price",
			mut:  func(o *domain.Order) { o.Lines[1].UnitPrice = decimal.RequireFromString("-15.00") },
			want: domain.ErrPriceInvalid,
		},
		{
			name: "stale total",
			mut:  func(o *domain.Order) { o.TotalPrice = decimal.RequireFromString("30.00") },
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}

func TestOrderLinesTotal(t *testing.T) {
	order := makeOrder()
	if got := order.LinesTotal(); !got.Equal(decimal.RequireFromString("35")) {
		t.Fatalf("unexpected lines total %s", got)
	}
}

func TestOrderStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderStatusNew, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusNew, domain.OrderStatusCanceled, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCompleted, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCanceled, true},
		{domain.OrderStatusNew, domain.OrderStatusCompleted, false},
		{domain.OrderStatusCompleted, domain.OrderStatusNew, false},
		{domain.OrderStatusCanceled, domain.OrderStatusConfirmed, false},
		{domain.OrderStatusConfirmed, domain.OrderStatusNew, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := domain.ParseOrderStatus(" confirmed ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status %s", status)
	}

	if _, err := domain.ParseOrderStatus("shipped"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
