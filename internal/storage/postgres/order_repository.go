package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const orderColumns = `id, customer_id, customer_email, employee_id, employee_email, placed_at, total_price, status, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return loadOrder(ctx, r.db, id)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(ctx, `customer_email = $1`, []any{email}, page)
}

func (r *orderRepository) ListByEmployee(ctx context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(ctx, `employee_id IS NOT NULL AND employee_email = $1`, []any{email}, page)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(ctx, `status = $1`, []any{string(status)}, page)
}

func (r *orderRepository) List(ctx context.Context, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(ctx, `TRUE`, nil, page)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status, expected domain.OrderStatus) (order domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Пустой expected означает безусловную запись.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND ($4::text = '' OR status = $4::text)
	`, id, string(status), time.Now().UTC(), string(expected))
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := orderExists(ctx, tx, id)
		if existsErr != nil {
			err = existsErr
			return domain.Order{}, err
		}
		if !exists {
			err = domain.ErrOrderNotFound
			return domain.Order{}, err
		}
		err = domain.ErrOrderStatusConflict
		return domain.Order{}, err
	}

	order, err = loadOrder(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit update order status: %w", err)
	}
	return order, nil
}

func (r *orderRepository) list(ctx context.Context, where string, args []any, page domain.PageRequest) (domain.OrderPage, error) {
	page = page.Normalize()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		WHERE %s
		ORDER BY placed_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, orderColumns, where, n+1, n+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, page.Size)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return domain.OrderPage{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.OrderPage{}, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		lines, err := loadLines(ctx, r.db, orders[i].ID)
		if err != nil {
			return domain.OrderPage{}, err
		}
		orders[i].Lines = lines
	}

	return domain.NewOrderPage(orders, page, total), nil
}

// insertOrder пишет заказ и его позиции внутри переданной транзакции.
func insertOrder(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.CustomerID, order.CustomerEmail,
		nullableID(order.EmployeeID), order.EmployeeEmail,
		order.PlacedAt, order.TotalPrice, string(order.Status), order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, book_id, book_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, i+1, line.BookID, line.BookName, line.Quantity, line.UnitPrice); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return nil
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order      domain.Order
		employeeID sql.NullInt64
		status     string
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.CustomerEmail, &employeeID, &order.EmployeeEmail,
		&order.PlacedAt, &order.TotalPrice, &status, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.EmployeeID = employeeID.Int64
	order.Status = domain.OrderStatus(status)
	order.PlacedAt = order.PlacedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func loadOrder(ctx context.Context, q queryer, id string) (domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := loadLines(ctx, q, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func loadLines(ctx context.Context, q queryer, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT book_id, book_name, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY line_no
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.BookID, &line.BookName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

func orderExists(ctx context.Context, q queryer, orderID string) (bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
