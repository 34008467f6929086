package domain

import "github.com/shopspring/decimal"

// Book — позиция каталога. Quantity никогда не уходит в минус:
// уменьшать её может только оформление заказа из корзины.
type Book struct {
	ID       int64
	Name     string
	Author   string
	Genre    string
	Price    decimal.Decimal
	Quantity int
	ImageURL string
}

// Customer — покупатель с внутренним балансом. Ключ — email.
type Customer struct {
	ID      int64
	Email   string
	Name    string
	Balance decimal.Decimal
	Blocked bool
}

// CanAfford сообщает, хватает ли баланса на сумму total.
func (c Customer) CanAfford(total decimal.Decimal) bool {
	return c.Balance.GreaterThanOrEqual(total)
}

// Employee — сотрудник магазина, может вносить заказы и менять их статусы.
type Employee struct {
	ID    int64
	Email string
	Name  string
	Phone string
}
