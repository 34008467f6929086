package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewOrderPlacedMessage(t *testing.T) {
	order := Order{
		ID:            "order-1",
		CustomerEmail: "reader@example.com",
		TotalPrice:    decimal.RequireFromString("20"),
		Status:        OrderStatusNew,
		PlacedAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Lines: []OrderLine{
			{BookID: 1, BookName: "Dune", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
		},
	}

	msg, err := NewOrderPlacedMessage(order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID == "" || msg.AggregateID != "order-1" || msg.EventType != EventTypeOrderPlaced {
		t.Fatalf("unexpected message %+v", msg)
	}

	var payload OrderPlacedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.TotalPrice != "20.00" || len(payload.Lines) != 1 || payload.Lines[0].UnitPrice != "10.00" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestNewOrderStatusChangedMessage(t *testing.T) {
	msg, err := NewOrderStatusChangedMessage("order-1", OrderStatusNew, OrderStatusConfirmed, "clerk@example.com", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.EventType != EventTypeOrderStatusChange || msg.AggregateType != AggregateTypeOrder {
		t.Fatalf("unexpected message %+v", msg)
	}
}
