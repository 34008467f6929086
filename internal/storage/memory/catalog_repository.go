package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type bookRepositoryInMemory struct {
	store *Store
}

// NewBookRepository возвращает каталог поверх общего Store.
func NewBookRepository(store *Store) domain.BookRepository {
	return &bookRepositoryInMemory{store: store}
}

func (r *bookRepositoryInMemory) Get(_ context.Context, id int64) (domain.Book, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	book, ok := r.store.books[id]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, nil
}

// GetByName возвращает книгу с наименьшим ID среди совпадающих по названию.
func (r *bookRepositoryInMemory) GetByName(_ context.Context, name string) (domain.Book, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var (
		found domain.Book
		ok    bool
	)
	for _, book := range r.store.books {
		if book.Name != name {
			continue
		}
		if !ok || book.ID < found.ID {
			found, ok = book, true
		}
	}
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return found, nil
}

func (r *bookRepositoryInMemory) List(_ context.Context, page domain.PageRequest) (domain.BookPage, error) {
	page = page.Normalize()

	r.store.mu.RLock()
	books := make([]domain.Book, 0, len(r.store.books))
	for _, book := range r.store.books {
		books = append(books, book)
	}
	r.store.mu.RUnlock()

	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })

	total := len(books)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return domain.NewBookPage(books[start:end], page, total), nil
}

func (r *bookRepositoryInMemory) Save(_ context.Context, book domain.Book) (domain.Book, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if book.ID == 0 {
		r.store.nextBookID++
		book.ID = r.store.nextBookID
	} else if book.ID > r.store.nextBookID {
		r.store.nextBookID = book.ID
	}
	r.store.books[book.ID] = book
	return book, nil
}

type customerRepositoryInMemory struct {
	store *Store
}

// NewCustomerRepository возвращает справочник клиентов поверх общего Store.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepositoryInMemory{store: store}
}

func (r *customerRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.customerByEmail[email]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return r.store.customers[id], nil
}

// Save создаёт клиента или перезаписывает существующего с тем же ID или email.
func (r *customerRepositoryInMemory) Save(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if customer.ID == 0 {
		if id, ok := r.store.customerByEmail[customer.Email]; ok {
			customer.ID = id
		} else {
			r.store.nextCustomerID++
			customer.ID = r.store.nextCustomerID
		}
	} else if customer.ID > r.store.nextCustomerID {
		r.store.nextCustomerID = customer.ID
	}

	if prev, ok := r.store.customers[customer.ID]; ok && prev.Email != customer.Email {
		delete(r.store.customerByEmail, prev.Email)
	}
	r.store.customers[customer.ID] = customer
	r.store.customerByEmail[customer.Email] = customer.ID
	return customer, nil
}

type employeeRepositoryInMemory struct {
	store *Store
}

// NewEmployeeRepository возвращает справочник сотрудников поверх общего Store.
func NewEmployeeRepository(store *Store) domain.EmployeeRepository {
	return &employeeRepositoryInMemory{store: store}
}

func (r *employeeRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.Employee, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.employeeByEmail[email]
	if !ok {
		return domain.Employee{}, domain.ErrEmployeeNotFound
	}
	return r.store.employees[id], nil
}

func (r *employeeRepositoryInMemory) Save(_ context.Context, employee domain.Employee) (domain.Employee, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if employee.ID == 0 {
		if id, ok := r.store.employeeByEmail[employee.Email]; ok {
			employee.ID = id
		} else {
			r.store.nextEmployeeID++
			employee.ID = r.store.nextEmployeeID
		}
	} else if employee.ID > r.store.nextEmployeeID {
		r.store.nextEmployeeID = employee.ID
	}

	if prev, ok := r.store.employees[employee.ID]; ok && prev.Email != employee.Email {
		delete(r.store.employeeByEmail, prev.Email)
	}
	r.store.employees[employee.ID] = employee
	r.store.employeeByEmail[employee.Email] = employee.ID
	return employee, nil
}

var (
	_ domain.BookRepository     = (*bookRepositoryInMemory)(nil)
	_ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
	_ domain.EmployeeRepository = (*employeeRepositoryInMemory)(nil)
)
