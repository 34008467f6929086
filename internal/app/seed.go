package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

var demoBooks = []domain.Book{
	{Name: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", Price: decimal.RequireFromString("12.99"), Quantity: 10},
	{Name: "Emma", Author: "Jane Austen", Genre: "Classic", Price: decimal.RequireFromString("7.50"), Quantity: 5},
	{Name: "The Hobbit", Author: "J. R. R. Tolkien", Genre: "Fantasy", Price: decimal.RequireFromString("9.99"), Quantity: 8},
	{Name: "Neuromancer", Author: "William Gibson", Genre: "Science Fiction", Price: decimal.RequireFromString("11.25"), Quantity: 3},
	{Name: "Moby-Dick", Author: "Herman Melville", Genre: "Classic", Price: decimal.RequireFromString("6.00"), Quantity: 1},
}

var demoCustomers = []domain.Customer{
	{Email: "reader@example.com", Name: "Demo Reader", Balance: decimal.RequireFromString("100.00")},
	{Email: "blocked@example.com", Name: "Blocked Reader", Balance: decimal.RequireFromString("50.00"), Blocked: true},
}

var demoEmployees = []domain.Employee{
	{Email: "clerk@example.com", Name: "Demo Clerk", Phone: "+10000000000"},
}

// seedDemo заполняет пустой каталог демонстрационными данными.
// Непустой каталог не трогается, балансы уже существующих клиентов тоже.
func seedDemo(ctx context.Context, deps *runtimeDependencies, logger *log.Entry) error {
	page, err := deps.books.List(ctx, domain.PageRequest{Size: 1})
	if err != nil {
		return fmt.Errorf("inspect catalog: %w", err)
	}
	if page.TotalItems == 0 {
		for _, book := range demoBooks {
			if _, err := deps.books.Save(ctx, book); err != nil {
				return fmt.Errorf("seed book %q: %w", book.Name, err)
			}
		}
	}

	for _, customer := range demoCustomers {
		if _, err := deps.customers.GetByEmail(ctx, customer.Email); err == nil {
			continue
		}
		if _, err := deps.customers.Save(ctx, customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.Email, err)
		}
	}
	for _, employee := range demoEmployees {
		if _, err := deps.employees.Save(ctx, employee); err != nil {
			return fmt.Errorf("seed employee %s: %w", employee.Email, err)
		}
	}

	logger.WithFields(log.Fields{
		"books":     len(demoBooks),
		"customers": len(demoCustomers),
		"employees": len(demoEmployees),
	}).Info("demo data seeded")
	return nil
}
