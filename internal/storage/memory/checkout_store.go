package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type checkoutStoreInMemory struct {
	store *Store
}

// NewCheckoutStore возвращает CheckoutStore, который проверяет и применяет
// все изменения под одной блокировкой Store.
func NewCheckoutStore(store *Store) domain.CheckoutStore {
	return &checkoutStoreInMemory{store: store}
}

func (c *checkoutStoreInMemory) CommitCheckout(_ context.Context, commit domain.CheckoutCommit) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[commit.Order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}

	// Одна книга может встретиться в нескольких позициях.
	requested := make(map[int64]int, len(commit.Order.Lines))
	for _, line := range commit.Order.Lines {
		if line.Quantity <= 0 {
			return domain.ErrQuantityInvalid
		}
		requested[line.BookID] += line.Quantity
	}

	for _, line := range commit.Order.Lines {
		book, ok := s.books[line.BookID]
		if !ok {
			return domain.ErrBookNotFound
		}
		if book.Quantity < requested[line.BookID] {
			return &domain.InsufficientStockError{
				BookID:    book.ID,
				BookName:  book.Name,
				Requested: requested[line.BookID],
				Available: book.Quantity,
			}
		}
	}

	customer, ok := s.customers[commit.CustomerID]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	if !customer.CanAfford(commit.Debit) {
		return &domain.InsufficientFundsError{Balance: customer.Balance, Total: commit.Debit}
	}

	for bookID, qty := range requested {
		book := s.books[bookID]
		book.Quantity -= qty
		s.books[bookID] = book
	}
	customer.Balance = customer.Balance.Sub(commit.Debit)
	s.customers[customer.ID] = customer
	s.orders[commit.Order.ID] = cloneOrder(commit.Order)

	return nil
}

var _ domain.CheckoutStore = (*checkoutStoreInMemory)(nil)
