package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const bookColumns = `id, name, author, genre, price, quantity, image_url`

type bookRepository struct {
	db *sql.DB
}

// NewBookRepository создаёт PostgreSQL-реализацию BookRepository.
func NewBookRepository(store *Store) domain.BookRepository {
	return &bookRepository{db: store.DB()}
}

func scanBook(row interface{ Scan(...any) error }) (domain.Book, error) {
	var book domain.Book
	err := row.Scan(&book.ID, &book.Name, &book.Author, &book.Genre, &book.Price, &book.Quantity, &book.ImageURL)
	return book, err
}

func (r *bookRepository) Get(ctx context.Context, id int64) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	book, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("select book: %w", err)
	}
	return book, nil
}

func (r *bookRepository) GetByName(ctx context.Context, name string) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	book, err := scanBook(r.db.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE name = $1
		ORDER BY id
		LIMIT 1
	`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("select book by name: %w", err)
	}
	return book, nil
}

func (r *bookRepository) List(ctx context.Context, page domain.PageRequest) (domain.BookPage, error) {
	page = page.Normalize()

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return domain.BookPage{}, fmt.Errorf("count books: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0, page.Size)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return domain.BookPage{}, fmt.Errorf("scan book row: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return domain.BookPage{}, fmt.Errorf("iterate book rows: %w", err)
	}

	return domain.NewBookPage(books, page, total), nil
}

func (r *bookRepository) Save(ctx context.Context, book domain.Book) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if book.ID == 0 {
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO books (name, author, genre, price, quantity, image_url)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, book.Name, book.Author, book.Genre, book.Price, book.Quantity, book.ImageURL).Scan(&book.ID)
		if err != nil {
			return domain.Book{}, fmt.Errorf("insert book: %w", err)
		}
		return book, nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (id, name, author, genre, price, quantity, image_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    author = EXCLUDED.author,
		    genre = EXCLUDED.genre,
		    price = EXCLUDED.price,
		    quantity = EXCLUDED.quantity,
		    image_url = EXCLUDED.image_url
	`, book.ID, book.Name, book.Author, book.Genre, book.Price, book.Quantity, book.ImageURL)
	if err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	// Явный ID не двигает BIGSERIAL, подтягиваем последовательность вручную.
	if _, err := r.db.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('books', 'id'), GREATEST((SELECT MAX(id) FROM books), 1))
	`); err != nil {
		return domain.Book{}, fmt.Errorf("sync books sequence: %w", err)
	}
	return book, nil
}

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) GetByEmail(ctx context.Context, email string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, balance, blocked
		FROM customers
		WHERE email = $1
	`, email).Scan(&customer.ID, &customer.Email, &customer.Name, &customer.Balance, &customer.Blocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return customer, nil
}

// Save создаёт клиента или обновляет существующего с тем же email.
func (r *customerRepository) Save(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO customers (email, name, balance, blocked)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    balance = EXCLUDED.balance,
		    blocked = EXCLUDED.blocked
		RETURNING id
	`, customer.Email, customer.Name, customer.Balance, customer.Blocked).Scan(&customer.ID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("save customer: %w", err)
	}
	return customer, nil
}

type employeeRepository struct {
	db *sql.DB
}

// NewEmployeeRepository создаёт PostgreSQL-реализацию EmployeeRepository.
func NewEmployeeRepository(store *Store) domain.EmployeeRepository {
	return &employeeRepository{db: store.DB()}
}

func (r *employeeRepository) GetByEmail(ctx context.Context, email string) (domain.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var employee domain.Employee
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone
		FROM employees
		WHERE email = $1
	`, email).Scan(&employee.ID, &employee.Email, &employee.Name, &employee.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Employee{}, domain.ErrEmployeeNotFound
		}
		return domain.Employee{}, fmt.Errorf("select employee: %w", err)
	}
	return employee, nil
}

func (r *employeeRepository) Save(ctx context.Context, employee domain.Employee) (domain.Employee, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO employees (email, name, phone)
		VALUES ($1,$2,$3)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    phone = EXCLUDED.phone
		RETURNING id
	`, employee.Email, employee.Name, employee.Phone).Scan(&employee.ID)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("save employee: %w", err)
	}
	return employee, nil
}

var (
	_ domain.BookRepository     = (*bookRepository)(nil)
	_ domain.CustomerRepository = (*customerRepository)(nil)
	_ domain.EmployeeRepository = (*employeeRepository)(nil)
)
