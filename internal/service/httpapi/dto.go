package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type addCartItemRequest struct {
	BookID   int64 `json:"bookId" validate:"required,gt=0"`
	Quantity int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type addOrderItemRequest struct {
	BookName string `json:"bookName" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type addOrderRequest struct {
	CustomerEmail string                `json:"customerEmail" validate:"required,email"`
	Items         []addOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type bookResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Author   string `json:"author,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func newBookResponse(b domain.Book) bookResponse {
	return bookResponse{
		ID:       b.ID,
		Name:     b.Name,
		Author:   b.Author,
		Genre:    b.Genre,
		Price:    money(b.Price),
		Quantity: b.Quantity,
		ImageURL: b.ImageURL,
	}
}

type bookPageResponse struct {
	Items      []bookResponse `json:"items"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalItems int            `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
}

func newBookPageResponse(p domain.BookPage) bookPageResponse {
	items := make([]bookResponse, 0, len(p.Items))
	for _, b := range p.Items {
		items = append(items, newBookResponse(b))
	}
	return bookPageResponse{Items: items, Page: p.Page, Size: p.Size, TotalItems: p.TotalItems, TotalPages: p.TotalPages}
}

type cartLineResponse struct {
	BookID         int64  `json:"bookId"`
	BookName       string `json:"bookName"`
	UnitPrice      string `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	AvailableStock int    `json:"availableStock"`
	LineTotal      string `json:"lineTotal"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

type cartResponse struct {
	Items   []cartLineResponse `json:"items"`
	Total   string             `json:"total"`
	Balance string             `json:"balance,omitempty"`
}

func newCartResponse(lines []domain.CartLine, total decimal.Decimal) cartResponse {
	items := make([]cartLineResponse, 0, len(lines))
	for _, l := range lines {
		items = append(items, cartLineResponse{
			BookID:         l.BookID,
			BookName:       l.BookName,
			UnitPrice:      money(l.UnitPrice),
			Quantity:       l.Quantity,
			AvailableStock: l.AvailableStock,
			LineTotal:      money(l.LineTotal()),
			ImageURL:       l.ImageURL,
		})
	}
	return cartResponse{Items: items, Total: money(total)}
}

type orderLineResponse struct {
	BookID    int64  `json:"bookId"`
	BookName  string `json:"bookName"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	CustomerEmail string              `json:"customerEmail"`
	EmployeeEmail string              `json:"employeeEmail,omitempty"`
	PlacedAt      time.Time           `json:"placedAt"`
	TotalPrice    string              `json:"totalPrice"`
	Status        string              `json:"status"`
	Lines         []orderLineResponse `json:"lines"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			BookID:    l.BookID,
			BookName:  l.BookName,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
		})
	}
	return orderResponse{
		ID:            o.ID,
		CustomerEmail: o.CustomerEmail,
		EmployeeEmail: o.EmployeeEmail,
		PlacedAt:      o.PlacedAt,
		TotalPrice:    money(o.TotalPrice),
		Status:        string(o.Status),
		Lines:         lines,
		UpdatedAt:     o.UpdatedAt,
	}
}

type orderPageResponse struct {
	Items      []orderResponse `json:"items"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
}

func newOrderPageResponse(p domain.OrderPage) orderPageResponse {
	items := make([]orderResponse, 0, len(p.Items))
	for _, o := range p.Items {
		items = append(items, newOrderResponse(o))
	}
	return orderPageResponse{Items: items, Page: p.Page, Size: p.Size, TotalItems: p.TotalItems, TotalPages: p.TotalPages}
}

type historyEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
