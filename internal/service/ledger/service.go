package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
)

// Filter — фильтры выборки всех заказов. Не комбинируются: непустой
// CustomerEmail важнее Status, при пустых фильтрах возвращаются все заказы.
type Filter struct {
	CustomerEmail string
	Status        string
}

// Options задаёт необязательные зависимости Service.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
	Outbox  domain.OutboxRepository
	History domain.HistoryRepository
	Guarded bool
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики смены статуса.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithOutbox включает публикацию OrderStatusChanged.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = repo
	}
}

// WithHistory включает запись истории смен статуса.
func WithHistory(repo domain.HistoryRepository) Option {
	return func(opts *Options) {
		opts.History = repo
	}
}

// WithGuardedTransitions включает проверку переходов по таблице
// NEW->CONFIRMED->COMPLETED и NEW/CONFIRMED->CANCELED.
// Без этой опции статус перезаписывается безусловно.
func WithGuardedTransitions() Option {
	return func(opts *Options) {
		opts.Guarded = true
	}
}

// Service — выборки заказов и смена их статуса.
type Service struct {
	orders  domain.OrderRepository
	outbox  domain.OutboxRepository
	history domain.HistoryRepository
	logger  *log.Entry
	audit   *log.Entry
	metrics *metrics.CheckoutMetrics
	guarded bool
}

// NewService создаёт сервис учёта заказов.
func NewService(orders domain.OrderRepository, options ...Option) *Service {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ledger")
	}

	return &Service{
		orders:  orders,
		outbox:  opts.Outbox,
		history: opts.History,
		logger:  logger,
		audit:   logger.WithField("log", "business"),
		metrics: opts.Metrics,
		guarded: opts.Guarded,
	}
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.Get(ctx, id)
}

// OrdersByCustomer возвращает заказы покупателя, новые сначала.
func (s *Service) OrdersByCustomer(ctx context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return s.orders.ListByCustomer(ctx, strings.TrimSpace(email), page)
}

// OrdersByEmployee возвращает заказы, внесённые сотрудником.
func (s *Service) OrdersByEmployee(ctx context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return s.orders.ListByEmployee(ctx, strings.TrimSpace(email), page)
}

// AllOrders применяет первый непустой фильтр: email клиента, затем статус.
func (s *Service) AllOrders(ctx context.Context, filter Filter, page domain.PageRequest) (domain.OrderPage, error) {
	if email := strings.TrimSpace(filter.CustomerEmail); email != "" {
		return s.orders.ListByCustomer(ctx, email, page)
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return domain.OrderPage{}, err
		}
		return s.orders.ListByStatus(ctx, status, page)
	}
	return s.orders.List(ctx, page)
}

// UpdateStatus меняет статус заказа от имени actor.
//
// По умолчанию статус перезаписывается безусловно (в том числе COMPLETED->NEW).
// В режиме WithGuardedTransitions недопустимый переход возвращает
// ErrInvalidTransition, а гонка двух смен статуса — ErrOrderStatusConflict.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, actor string) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	var expected domain.OrderStatus
	if s.guarded {
		if !current.Status.CanTransitionTo(status) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
		}
		expected = current.Status
	}

	updated, err := s.orders.UpdateStatus(ctx, id, status, expected)
	if err != nil {
		return domain.Order{}, err
	}

	s.afterStatusChange(ctx, current.Status, updated, actor)
	return updated, nil
}

// History возвращает историю заказа в хронологическом порядке.
func (s *Service) History(ctx context.Context, id string) ([]domain.HistoryEvent, error) {
	if _, err := s.orders.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.HistoryEvent{}, nil
	}
	return s.history.List(ctx, id)
}

func (s *Service) afterStatusChange(ctx context.Context, from domain.OrderStatus, order domain.Order, actor string) {
	logger := s.logger.WithField("order_id", order.ID)
	at := order.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if s.history != nil {
		if err := s.history.Append(ctx, domain.HistoryEvent{
			OrderID:  order.ID,
			Type:     domain.HistoryEventStatusChanged,
			Reason:   fmt.Sprintf("%s -> %s", from, order.Status),
			Actor:    actor,
			Occurred: at,
		}); err != nil {
			logger.WithError(err).Warn("failed to append status history")
		} else {
			s.metrics.RecordHistoryEvent()
		}
	}

	if s.outbox != nil {
		msg, err := domain.NewOrderStatusChangedMessage(order.ID, from, order.Status, actor, at)
		if err == nil {
			_, err = s.outbox.Enqueue(ctx, msg)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to enqueue OrderStatusChanged event")
		} else {
			s.metrics.RecordOutboxEvent()
		}
	}

	s.metrics.RecordStatusChange(string(order.Status))
	s.audit.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
		"to":       order.Status,
		"actor":    actor,
	}).Info("order status changed")
}
