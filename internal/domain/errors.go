package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound — общий корень для всех ошибок отсутствующих сущностей.
	ErrNotFound = errors.New("not found")
	// ErrBookNotFound возвращается, если книги нет в каталоге.
	ErrBookNotFound = fmt.Errorf("book %w", ErrNotFound)
	// ErrCustomerNotFound возвращается, если клиент с таким email не зарегистрирован.
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	// ErrEmployeeNotFound возвращается, если сотрудник с таким email не найден.
	ErrEmployeeNotFound = fmt.Errorf("employee %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)

	// ErrInsufficientStock — на складе меньше экземпляров, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientFunds — баланса клиента не хватает на оплату заказа.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCustomerBlocked — заблокированный клиент не может оформлять заказы.
	ErrCustomerBlocked = errors.New("customer is blocked")
	// ErrEmptyCart — попытка оформить заказ из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrItemsRequired — заказ без позиций.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// ErrQuantityInvalid — количество в позиции должно быть больше нуля.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// ErrPriceInvalid — цена позиции отрицательная.
	ErrPriceInvalid = errors.New("unit price must not be negative")
	// ErrTotalMismatch — сумма заказа не совпадает с суммой позиций.
	ErrTotalMismatch = errors.New("order total does not match its lines")
	// ErrCustomerRequired — не передан email клиента.
	ErrCustomerRequired = errors.New("customer email is required")

	// ErrInvalidStatus — неизвестное значение статуса заказа.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition — переход статуса запрещён таблицей переходов.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrOrderStatusConflict — статус заказа изменился между чтением и записью.
	ErrOrderStatusConflict = errors.New("order status changed concurrently")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrIdempotencyKeyRequired — не передан idempotency key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError описывает первую позицию, для которой не хватило остатка.
type InsufficientStockError struct {
	BookID    int64
	BookName  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %q: requested %d, available %d", e.BookName, e.Requested, e.Available)
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InsufficientFundsError несёт баланс и сумму заказа для показа пользователю.
type InsufficientFundsError struct {
	Balance decimal.Decimal
	Total   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, total %s", e.Balance.StringFixed(2), e.Total.StringFixed(2))
}

// Unwrap позволяет сравнивать через errors.Is(err, ErrInsufficientFunds).
func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientStock проверяет нехватку остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsInsufficientFunds проверяет нехватку средств.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
