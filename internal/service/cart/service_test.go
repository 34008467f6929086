package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

const session = "session-1"

type fixture struct {
	svc   *Service
	books domain.BookRepository
	store *memory.CartStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	store := memory.NewStore()
	books := memory.NewBookRepository(store)
	carts := memory.NewCartStore(time.Hour)
	return fixture{
		svc:   NewService(carts, books),
		books: books,
		store: carts,
	}
}

func (f fixture) seedBook(t *testing.T, name, price string, qty int) domain.Book {
	t.Helper()

	book, err := f.books.Save(context.Background(), domain.Book{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return book
}

func TestAddItem_CapsAtStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, "Dune", "10.00", 5)

	if _, err := f.svc.AddItem(ctx, session, book.ID, 3); err != nil {
		t.Fatalf("first add: %v", err)
	}
	lines, err := f.svc.AddItem(ctx, session, book.ID, 3)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected single line capped at 5, got %+v", lines)
	}
	if lines[0].BookName != "Dune" || !lines[0].UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected cached book data, got %+v", lines[0])
	}
}

func TestAddItem_EdgeCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soldOut := f.seedBook(t, "Sold out", "5", 0)
	book := f.seedBook(t, "Dune", "10", 2)

	tests := []struct {
		name    string
		bookID  int64
		qty     int
		wantErr error
	}{
		{name: "unknown book", bookID: 404, qty: 1, wantErr: domain.ErrBookNotFound},
		{name: "zero quantity", bookID: book.ID, qty: 0},
		{name: "negative quantity", bookID: book.ID, qty: -2},
		{name: "no stock", bookID: soldOut.ID, qty: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := f.svc.AddItem(ctx, session, tt.bookID, tt.qty)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(lines) != 0 {
				t.Fatalf("expected nothing added, got %+v", lines)
			}
		})
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, "Dune", "10", 4)

	if _, err := f.svc.AddItem(ctx, session, book.ID, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	lines, err := f.svc.UpdateItemQuantity(ctx, session, book.ID, 10)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if lines[0].Quantity != 4 {
		t.Fatalf("expected quantity capped to 4, got %d", lines[0].Quantity)
	}

	if _, err := f.svc.UpdateItemQuantity(ctx, session, book.ID, 0); err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	cart, err := f.svc.GetCart(ctx, session)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 0 {
		t.Fatalf("expected line removed, got %+v", cart)
	}

	lines, err = f.svc.UpdateItemQuantity(ctx, session, book.ID, 2)
	if err != nil {
		t.Fatalf("update absent line: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("update must not create a line, got %+v", lines)
	}
}

func TestRemoveItemAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dune := f.seedBook(t, "Dune", "10", 4)
	solaris := f.seedBook(t, "Solaris", "12", 4)

	_, _ = f.svc.AddItem(ctx, session, dune.ID, 1)
	_, _ = f.svc.AddItem(ctx, session, solaris.ID, 1)

	lines, err := f.svc.RemoveItem(ctx, session, dune.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(lines) != 1 || lines[0].BookID != solaris.ID {
		t.Fatalf("unexpected lines after remove %+v", lines)
	}

	if _, err := f.svc.RemoveItem(ctx, session, 999); err != nil {
		t.Fatalf("remove absent line must not fail: %v", err)
	}

	if err := f.svc.ClearCart(ctx, session); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cart, _ := f.svc.GetCart(ctx, session)
	if len(cart) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestGetCart_RefreshesFromCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dune := f.seedBook(t, "Dune", "10", 5)
	solaris := f.seedBook(t, "Solaris", "12", 5)
	gone := f.seedBook(t, "Gone", "3", 5)

	_, _ = f.svc.AddItem(ctx, session, dune.ID, 4)
	_, _ = f.svc.AddItem(ctx, session, solaris.ID, 2)
	_, _ = f.svc.AddItem(ctx, session, gone.ID, 1)

	dune.Quantity = 2
	dune.Price = decimal.RequireFromString("11.50")
	solaris.Quantity = 0
	_, _ = f.books.Save(ctx, dune)
	_, _ = f.books.Save(ctx, solaris)

	// Имитируем книгу, удалённую из каталога.
	lines, _ := f.store.Load(ctx, session)
	lines[2].BookID = 404
	_ = f.store.Save(ctx, session, lines)

	cart, err := f.svc.GetCart(ctx, session)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart) != 1 {
		t.Fatalf("expected only Dune to remain, got %+v", cart)
	}
	if cart[0].Quantity != 2 || cart[0].AvailableStock != 2 || cart[0].UnitPrice.StringFixed(2) != "11.50" {
		t.Fatalf("expected refreshed line, got %+v", cart[0])
	}

	again, err := f.svc.GetCart(ctx, session)
	if err != nil {
		t.Fatalf("second get cart: %v", err)
	}
	if len(again) != 1 || again[0].Quantity != cart[0].Quantity {
		t.Fatalf("repeated read must be stable, got %+v", again)
	}

	if total := f.svc.CalculateTotal(again); total.StringFixed(2) != "23.00" {
		t.Fatalf("unexpected total %s", total.StringFixed(2))
	}
}

func TestCalculateTotal_Empty(t *testing.T) {
	f := newFixture(t)
	if total := f.svc.CalculateTotal(nil); !total.IsZero() {
		t.Fatalf("expected zero total, got %s", total)
	}
}

func TestLines_ReturnsStoredQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.seedBook(t, "Dune", "10.00", 5)

	if _, err := f.svc.AddItem(ctx, session, book.ID, 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	book.Quantity = 1
	if _, err := f.books.Save(ctx, book); err != nil {
		t.Fatalf("shrink stock: %v", err)
	}

	lines, err := f.svc.Lines(ctx, session)
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 4 {
		t.Fatalf("expected stored quantity 4, got %+v", lines)
	}
}
