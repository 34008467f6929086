package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
)

// Options задаёт зависимости сервиса корзины.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики операций с корзиной.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// Service управляет корзинами сессий. Корзина носит рекомендательный характер:
// она не резервирует остатки и при чтении сама подстраивается под каталог.
type Service struct {
	store   domain.CartStore
	books   domain.BookRepository
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
}

// NewService создаёт сервис корзины поверх хранилища сессий и каталога.
func NewService(store domain.CartStore, books domain.BookRepository, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart")
	}

	return &Service{
		store:   store,
		books:   books,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// GetCart возвращает корзину с актуальными ценами и остатками.
// Количество, превышающее остаток, молча уменьшается; строки с нулевым остатком
// и строки удалённых из каталога книг выбрасываются. Результат сохраняется обратно.
func (s *Service) GetCart(ctx context.Context, sessionID string) ([]domain.CartLine, error) {
	lines, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return []domain.CartLine{}, nil
	}

	refreshed := make([]domain.CartLine, 0, len(lines))
	changed := false
	for _, line := range lines {
		book, err := s.books.Get(ctx, line.BookID)
		if err != nil {
			if errors.Is(err, domain.ErrBookNotFound) {
				s.logger.WithField("book_id", line.BookID).Info("dropping cart line for removed book")
				changed = true
				continue
			}
			return nil, fmt.Errorf("refresh cart line %d: %w", line.BookID, err)
		}

		next := applyBook(line, book)
		if next.Quantity > book.Quantity {
			next.Quantity = book.Quantity
		}
		if !sameLine(next, line) {
			changed = true
		}
		if next.Quantity <= 0 {
			continue
		}
		refreshed = append(refreshed, next)
	}

	if changed {
		if err := s.store.Save(ctx, sessionID, refreshed); err != nil {
			return nil, fmt.Errorf("save refreshed cart: %w", err)
		}
	}
	return refreshed, nil
}

// Lines возвращает сохранённые строки без сверки с каталогом.
// Оформление заказа берёт именно их: количество не подрезается молча.
func (s *Service) Lines(ctx context.Context, sessionID string) ([]domain.CartLine, error) {
	lines, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return lines, nil
}

// AddItem добавляет книгу в корзину, ограничивая итоговое количество остатком.
// quantity <= 0 ничего не меняет; строка с итоговым нулём не добавляется.
func (s *Service) AddItem(ctx context.Context, sessionID string, bookID int64, quantity int) ([]domain.CartLine, error) {
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	lines, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if quantity <= 0 {
		return lines, nil
	}

	idx := indexOf(lines, bookID)
	if idx >= 0 {
		line := applyBook(lines[idx], book)
		line.Quantity = min(line.Quantity+quantity, book.Quantity)
		if line.Quantity <= 0 {
			lines = append(lines[:idx], lines[idx+1:]...)
		} else {
			lines[idx] = line
		}
	} else {
		qty := min(quantity, book.Quantity)
		if qty <= 0 {
			return lines, nil
		}
		line := applyBook(domain.CartLine{BookID: book.ID}, book)
		line.Quantity = qty
		lines = append(lines, line)
	}

	if err := s.store.Save(ctx, sessionID, lines); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.metrics.RecordCartOperation("add")
	return lines, nil
}

// RemoveItem удаляет строку книги; отсутствие строки ошибкой не считается.
func (s *Service) RemoveItem(ctx context.Context, sessionID string, bookID int64) ([]domain.CartLine, error) {
	lines, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	idx := indexOf(lines, bookID)
	if idx < 0 {
		return lines, nil
	}
	lines = append(lines[:idx], lines[idx+1:]...)

	if err := s.store.Save(ctx, sessionID, lines); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.metrics.RecordCartOperation("remove")
	return lines, nil
}

// UpdateItemQuantity задаёт количество строки. quantity <= 0 удаляет строку,
// иначе количество ограничивается остатком книги. Отсутствующая строка не создаётся.
func (s *Service) UpdateItemQuantity(ctx context.Context, sessionID string, bookID int64, quantity int) ([]domain.CartLine, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, sessionID, bookID)
	}

	lines, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	idx := indexOf(lines, bookID)
	if idx < 0 {
		return lines, nil
	}

	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	line := applyBook(lines[idx], book)
	line.Quantity = min(quantity, book.Quantity)
	if line.Quantity <= 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
	} else {
		lines[idx] = line
	}

	if err := s.store.Save(ctx, sessionID, lines); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.metrics.RecordCartOperation("update")
	return lines, nil
}

// CalculateTotal возвращает сумму UnitPrice * Quantity по строкам.
func (s *Service) CalculateTotal(lines []domain.CartLine) decimal.Decimal {
	return domain.CartTotal(lines)
}

// ClearCart удаляет все строки корзины сессии.
func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.metrics.RecordCartOperation("clear")
	return nil
}

func applyBook(line domain.CartLine, book domain.Book) domain.CartLine {
	line.BookName = book.Name
	line.UnitPrice = book.Price
	line.AvailableStock = book.Quantity
	line.ImageURL = book.ImageURL
	return line
}

func sameLine(a, b domain.CartLine) bool {
	return a.BookID == b.BookID &&
		a.BookName == b.BookName &&
		a.UnitPrice.Equal(b.UnitPrice) &&
		a.Quantity == b.Quantity &&
		a.AvailableStock == b.AvailableStock &&
		a.ImageURL == b.ImageURL
}

func indexOf(lines []domain.CartLine, bookID int64) int {
	for i, line := range lines {
		if line.BookID == bookID {
			return i
		}
	}
	return -1
}
