package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderPlacedLine — позиция в событии OrderPlaced.
type OrderPlacedLine struct {
	BookID    int64  `json:"book_id"`
	BookName  string `json:"book_name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderPlacedPayload публикуется после фиксации заказа.
type OrderPlacedPayload struct {
	OrderID       string            `json:"order_id"`
	CustomerEmail string            `json:"customer_email"`
	EmployeeEmail string            `json:"employee_email,omitempty"`
	TotalPrice    string            `json:"total_price"`
	Status        OrderStatus       `json:"status"`
	PlacedAt      time.Time         `json:"placed_at"`
	Lines         []OrderPlacedLine `json:"lines"`
}

// OrderStatusChangedPayload публикуется после смены статуса.
type OrderStatusChangedPayload struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Actor     string      `json:"actor,omitempty"`
	ChangedAt time.Time   `json:"changed_at"`
}

// NewOrderPlacedMessage собирает outbox-сообщение о новом заказе.
func NewOrderPlacedMessage(order Order) (OutboxMessage, error) {
	lines := make([]OrderPlacedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderPlacedLine{
			BookID:    line.BookID,
			BookName:  line.BookName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
		})
	}

	return newOrderMessage(order.ID, EventTypeOrderPlaced, OrderPlacedPayload{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		EmployeeEmail: order.EmployeeEmail,
		TotalPrice:    order.TotalPrice.StringFixed(2),
		Status:        order.Status,
		PlacedAt:      order.PlacedAt.UTC(),
		Lines:         lines,
	})
}

// NewOrderStatusChangedMessage собирает outbox-сообщение о смене статуса.
func NewOrderStatusChangedMessage(orderID string, from, to OrderStatus, actor string, at time.Time) (OutboxMessage, error) {
	return newOrderMessage(orderID, EventTypeOrderStatusChange, OrderStatusChangedPayload{
		OrderID:   orderID,
		From:      from,
		To:        to,
		Actor:     actor,
		ChangedAt: at.UTC(),
	})
}

func newOrderMessage(orderID, eventType string, payload any) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
