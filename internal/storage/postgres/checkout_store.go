package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type checkoutStore struct {
	db *sql.DB
}

// NewCheckoutStore создаёт CheckoutStore, который фиксирует заказ одной транзакцией
// с условными UPDATE остатков и баланса.
func NewCheckoutStore(store *Store) domain.CheckoutStore {
	return &checkoutStore{db: store.DB()}
}

type bookDemand struct {
	bookID int64
	qty    int
}

func (c *checkoutStore) CommitCheckout(ctx context.Context, commit domain.CheckoutCommit) (err error) {
	demand, err := aggregateDemand(commit.Order.Lines)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, d := range demand {
		if err = reserveStock(ctx, tx, d); err != nil {
			return err
		}
	}
	if err = debitBalance(ctx, tx, commit.CustomerID, commit.Debit); err != nil {
		return err
	}
	if err = insertOrder(ctx, tx, commit.Order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout: %w", err)
	}
	return nil
}

// aggregateDemand суммирует количество по книгам и сортирует по ID,
// чтобы конкурирующие транзакции брали блокировки строк в одном порядке.
func aggregateDemand(lines []domain.OrderLine) ([]bookDemand, error) {
	byBook := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, domain.ErrQuantityInvalid
		}
		byBook[line.BookID] += line.Quantity
	}

	demand := make([]bookDemand, 0, len(byBook))
	for bookID, qty := range byBook {
		demand = append(demand, bookDemand{bookID: bookID, qty: qty})
	}
	sort.Slice(demand, func(i, j int) bool { return demand[i].bookID < demand[j].bookID })
	return demand, nil
}

func reserveStock(ctx context.Context, tx *sql.Tx, d bookDemand) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET quantity = quantity - $2
		WHERE id = $1
		  AND quantity >= $2
	`, d.bookID, d.qty)
	if err != nil {
		return fmt.Errorf("decrement book stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var (
		name      string
		available int
	)
	err = tx.QueryRowContext(ctx, `SELECT name, quantity FROM books WHERE id = $1`, d.bookID).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrBookNotFound
		}
		return fmt.Errorf("select book stock: %w", err)
	}
	return &domain.InsufficientStockError{
		BookID:    d.bookID,
		BookName:  name,
		Requested: d.qty,
		Available: available,
	}
}

func debitBalance(ctx context.Context, tx *sql.Tx, customerID int64, debit decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET balance = balance - $2
		WHERE id = $1
		  AND balance >= $2
	`, customerID, debit)
	if err != nil {
		return fmt.Errorf("debit customer balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT balance FROM customers WHERE id = $1`, customerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCustomerNotFound
		}
		return fmt.Errorf("select customer balance: %w", err)
	}
	return &domain.InsufficientFundsError{Balance: balance, Total: debit}
}

var _ domain.CheckoutStore = (*checkoutStore)(nil)
