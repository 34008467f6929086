package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// BookRepository — каталог книг.
type BookRepository interface {
	// Get возвращает книгу по ID или ErrBookNotFound.
	Get(ctx context.Context, id int64) (Book, error)
	// GetByName ищет книгу по точному названию.
	GetByName(ctx context.Context, name string) (Book, error)
	// List возвращает страницу каталога, отсортированную по ID.
	List(ctx context.Context, page PageRequest) (BookPage, error)
	// Save создаёт книгу (ID == 0) или перезаписывает существующую.
	Save(ctx context.Context, book Book) (Book, error)
}

// CustomerRepository — справочник покупателей.
type CustomerRepository interface {
	GetByEmail(ctx context.Context, email string) (Customer, error)
	Save(ctx context.Context, customer Customer) (Customer, error)
}

// EmployeeRepository — справочник сотрудников.
type EmployeeRepository interface {
	GetByEmail(ctx context.Context, email string) (Employee, error)
	Save(ctx context.Context, employee Employee) (Employee, error)
}

// OrderRepository описывает требования к хранилищу заказов.
// Все выборки отсортированы по PlacedAt DESC, затем по ID DESC.
type OrderRepository interface {
	// Create сохраняет новый заказ без изменения остатков и балансов.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	ListByCustomer(ctx context.Context, email string, page PageRequest) (OrderPage, error)
	ListByEmployee(ctx context.Context, email string, page PageRequest) (OrderPage, error)
	ListByStatus(ctx context.Context, status OrderStatus, page PageRequest) (OrderPage, error)
	List(ctx context.Context, page PageRequest) (OrderPage, error)
	// UpdateStatus перезаписывает статус. Если expected не пуст, запись выполняется
	// только при совпадении текущего статуса, иначе ErrOrderStatusConflict.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, expected OrderStatus) (Order, error)
}

// CheckoutCommit — всё, что нужно атомарно применить при оформлении заказа из корзины.
type CheckoutCommit struct {
	Order      Order
	CustomerID int64
	Debit      decimal.Decimal
}

// CheckoutStore фиксирует заказ вместе со списанием остатков и баланса.
//
// Реализация обязана выполнить всё или ничего: условное уменьшение остатка
// по каждой позиции (quantity >= n), условное списание баланса (balance >= debit)
// и запись заказа. При нарушении условия возвращается *InsufficientStockError
// или *InsufficientFundsError, и ни одно изменение не применяется.
type CheckoutStore interface {
	CommitCheckout(ctx context.Context, commit CheckoutCommit) error
}
