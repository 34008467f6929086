package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusNew — единственный начальный статус.
	OrderStatusNew OrderStatus = "NEW"
	// OrderStatusConfirmed — заказ подтверждён сотрудником.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusCompleted — заказ выдан.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCanceled — заказ отменён.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// OrderStatuses перечисляет статусы в порядке отображения.
var OrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusCompleted,
	OrderStatusCanceled,
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:       {OrderStatusConfirmed, OrderStatusCanceled},
	OrderStatusConfirmed: {OrderStatusCompleted, OrderStatusCanceled},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет переход по строгой таблице:
// NEW->CONFIRMED, CONFIRMED->COMPLETED, NEW/CONFIRMED->CANCELED.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// OrderLine — снимок позиции на момент оформления, с каталогом больше не сверяется.
type OrderLine struct {
	BookID    int64
	BookName  string
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal возвращает UnitPrice * Quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order — оформленный заказ. После создания меняется только Status.
// EmployeeID == 0 означает, что заказ оформлен покупателем, а не сотрудником.
type Order struct {
	ID            string
	CustomerID    int64
	CustomerEmail string
	EmployeeID    int64
	EmployeeEmail string
	PlacedAt      time.Time
	TotalPrice    decimal.Decimal
	Status        OrderStatus
	Lines         []OrderLine
	UpdatedAt     time.Time
}

// LinesTotal пересчитывает сумму по позициям.
func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
			break
		}
	}
	for _, line := range o.Lines {
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrPriceInvalid)
			break
		}
	}
	if !o.TotalPrice.Equal(o.LinesTotal()) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderRequestItem — позиция заказа, который вносит сотрудник (книга указывается по названию).
type OrderRequestItem struct {
	BookName string
	Quantity int
}

// OrderRequest — запрос на прямое создание заказа сотрудником.
type OrderRequest struct {
	CustomerEmail string
	EmployeeEmail string
	Items         []OrderRequestItem
}
