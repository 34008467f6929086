package domain

import "time"

// Типы событий истории заказа.
const (
	HistoryEventPlaced        = "placed"
	HistoryEventStatusChanged = "status_changed"
)

// HistoryEvent описывает событие в жизненном цикле заказа.
type HistoryEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Actor    string
	Occurred time.Time
}
