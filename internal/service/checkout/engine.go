package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
)

// Repositories — обязательные зависимости движка оформления.
type Repositories struct {
	Books     domain.BookRepository
	Customers domain.CustomerRepository
	Employees domain.EmployeeRepository
	Orders    domain.OrderRepository
	Commits   domain.CheckoutStore
}

// Options задаёт необязательные зависимости Engine.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
	Outbox  domain.OutboxRepository
	History domain.HistoryRepository
	Clock   func() time.Time
	NewID   func() string
}

// Option настраивает Engine.
type Option func(*Options)

// WithLogger задаёт logger движка.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithOutbox включает публикацию OrderPlaced через transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = repo
	}
}

// WithHistory включает запись истории заказа.
func WithHistory(repo domain.HistoryRepository) Option {
	return func(opts *Options) {
		opts.History = repo
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// Engine превращает корзину в заказ. Проверки остатка и баланса выполняются
// до любых изменений, а сама фиксация делегируется CheckoutStore, который
// повторяет их атомарно на уровне хранилища.
type Engine struct {
	repos   Repositories
	outbox  domain.OutboxRepository
	history domain.HistoryRepository
	logger  *log.Entry
	audit   *log.Entry
	metrics *metrics.CheckoutMetrics
	now     func() time.Time
	newID   func() string
}

// NewEngine создаёт движок оформления заказов.
func NewEngine(repos Repositories, options ...Option) *Engine {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Engine{
		repos:   repos,
		outbox:  opts.Outbox,
		history: opts.History,
		logger:  logger,
		audit:   logger.WithField("log", "business"),
		metrics: opts.Metrics,
		now:     opts.Clock,
		newID:   opts.NewID,
	}
}

// PlaceOrder оформляет заказ из строк корзины от имени customerEmail.
//
// Цены берутся из каталога на момент оформления, а не из кеша корзины.
// При ошибке проверки (NotFound, нехватка остатка или средств) никакие данные
// не изменяются. Пустая корзина отклоняется с ErrEmptyCart.
func (e *Engine) PlaceOrder(ctx context.Context, customerEmail string, lines []domain.CartLine) (order domain.Order, err error) {
	started := time.Now()
	e.metrics.RecordCheckoutStarted()
	defer func() {
		e.metrics.RecordCheckoutFinished(checkoutResult(err), time.Since(started))
	}()

	logger := e.logger.WithField("customer", customerEmail)

	customer, err := e.repos.Customers.GetByEmail(ctx, strings.TrimSpace(customerEmail))
	if err != nil {
		return domain.Order{}, fmt.Errorf("resolve customer: %w", err)
	}
	if customer.Blocked {
		logger.Info("checkout rejected: customer is blocked")
		return domain.Order{}, domain.ErrCustomerBlocked
	}
	if len(lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}

	books := make([]domain.Book, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.Order{}, domain.ErrQuantityInvalid
		}
		book, err := e.repos.Books.Get(ctx, line.BookID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve book %d: %w", line.BookID, err)
		}
		books = append(books, book)
	}

	for i, line := range lines {
		if books[i].Quantity < line.Quantity {
			logger.WithFields(log.Fields{
				"book_id":   books[i].ID,
				"requested": line.Quantity,
				"available": books[i].Quantity,
			}).Info("checkout rejected: insufficient stock")
			return domain.Order{}, &domain.InsufficientStockError{
				BookID:    books[i].ID,
				BookName:  books[i].Name,
				Requested: line.Quantity,
				Available: books[i].Quantity,
			}
		}
	}

	now := e.now()
	order = domain.Order{
		ID:            e.newID(),
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		PlacedAt:      now,
		Status:        domain.OrderStatusNew,
		Lines:         make([]domain.OrderLine, 0, len(lines)),
		UpdatedAt:     now,
	}
	for i, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			BookID:    books[i].ID,
			BookName:  books[i].Name,
			Quantity:  line.Quantity,
			UnitPrice: books[i].Price,
		})
	}
	order.TotalPrice = order.LinesTotal()
	if err := validateOrder(order); err != nil {
		logger.WithError(err).Error("checkout rejected: order violates invariants")
		return domain.Order{}, err
	}

	if !customer.CanAfford(order.TotalPrice) {
		logger.WithFields(log.Fields{
			"balance": customer.Balance.StringFixed(2),
			"total":   order.TotalPrice.StringFixed(2),
		}).Info("checkout rejected: insufficient funds")
		return domain.Order{}, &domain.InsufficientFundsError{Balance: customer.Balance, Total: order.TotalPrice}
	}

	if err := e.repos.Commits.CommitCheckout(ctx, domain.CheckoutCommit{
		Order:      order,
		CustomerID: customer.ID,
		Debit:      order.TotalPrice,
	}); err != nil {
		if domain.IsInsufficientStock(err) || domain.IsInsufficientFunds(err) {
			// Проверка прошла, но конкурирующее оформление успело раньше.
			logger.WithError(err).Info("checkout lost race at commit")
			return domain.Order{}, err
		}
		logger.WithError(err).Error("checkout commit failed")
		return domain.Order{}, fmt.Errorf("commit checkout: %w", err)
	}

	e.afterCommit(ctx, order, customer.Email, "checkout")
	return order, nil
}

// AddOrder сохраняет заказ, внесённый сотрудником напрямую.
//
// Это привилегированный путь: остатки и балансы не проверяются и не изменяются.
// Книги ищутся по названию, сумма считается по текущим ценам каталога.
func (e *Engine) AddOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	customer, err := e.repos.Customers.GetByEmail(ctx, strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		return domain.Order{}, fmt.Errorf("resolve customer: %w", err)
	}

	var employee domain.Employee
	if email := strings.TrimSpace(req.EmployeeEmail); email != "" {
		employee, err = e.repos.Employees.GetByEmail(ctx, email)
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve employee: %w", err)
		}
	}

	if len(req.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	now := e.now()
	order := domain.Order{
		ID:            e.newID(),
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		EmployeeID:    employee.ID,
		EmployeeEmail: employee.Email,
		PlacedAt:      now,
		Status:        domain.OrderStatusNew,
		Lines:         make([]domain.OrderLine, 0, len(req.Items)),
		UpdatedAt:     now,
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return domain.Order{}, domain.ErrQuantityInvalid
		}
		book, err := e.repos.Books.GetByName(ctx, strings.TrimSpace(item.BookName))
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve book %q: %w", item.BookName, err)
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			BookID:    book.ID,
			BookName:  book.Name,
			Quantity:  item.Quantity,
			UnitPrice: book.Price,
		})
	}
	order.TotalPrice = order.LinesTotal()
	if err := validateOrder(order); err != nil {
		return domain.Order{}, err
	}

	if err := e.repos.Orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	actor := employee.Email
	if actor == "" {
		actor = customer.Email
	}
	e.afterCommit(ctx, order, actor, "manual")
	return order, nil
}

// validateOrder возвращает первое нарушение инвариантов собранного заказа.
func validateOrder(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// afterCommit пишет историю, outbox и бизнес-лог. Заказ уже сохранён,
// поэтому ошибки здесь только логируются.
func (e *Engine) afterCommit(ctx context.Context, order domain.Order, actor, source string) {
	logger := e.logger.WithField("order_id", order.ID)

	if e.history != nil {
		if err := e.history.Append(ctx, domain.HistoryEvent{
			OrderID:  order.ID,
			Type:     domain.HistoryEventPlaced,
			Reason:   source,
			Actor:    actor,
			Occurred: order.PlacedAt,
		}); err != nil {
			logger.WithError(err).Warn("failed to append order history")
		} else {
			e.metrics.RecordHistoryEvent()
		}
	}

	if e.outbox != nil {
		msg, err := domain.NewOrderPlacedMessage(order)
		if err == nil {
			_, err = e.outbox.Enqueue(ctx, msg)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to enqueue OrderPlaced event")
		} else {
			e.metrics.RecordOutboxEvent()
		}
	}

	total, _ := order.TotalPrice.Float64()
	e.metrics.RecordOrderPlaced(source, total)

	e.audit.WithFields(log.Fields{
		"order_id": order.ID,
		"customer": order.CustomerEmail,
		"employee": order.EmployeeEmail,
		"total":    order.TotalPrice.StringFixed(2),
		"lines":    len(order.Lines),
		"source":   source,
	}).Info("order placed")
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case domain.IsInsufficientStock(err):
		return metrics.ResultInsufficientStock
	case domain.IsInsufficientFunds(err):
		return metrics.ResultInsufficientFunds
	case domain.IsNotFound(err):
		return metrics.ResultNotFound
	case errors.Is(err, domain.ErrCustomerBlocked):
		return metrics.ResultBlocked
	case errors.Is(err, domain.ErrEmptyCart):
		return metrics.ResultEmptyCart
	default:
		return metrics.ResultError
	}
}
