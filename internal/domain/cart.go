package domain

import "github.com/shopspring/decimal"

// CartLine — строка корзины. Имя, цена и остаток кешируются и
// обновляются при каждом чтении корзины. Строки с Quantity == 0 не хранятся.
type CartLine struct {
	BookID         int64
	BookName       string
	UnitPrice      decimal.Decimal
	Quantity       int
	AvailableStock int
	ImageURL       string
}

// LineTotal возвращает UnitPrice * Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal суммирует стоимость всех строк; для пустой корзины — ноль.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// CloneCartLines возвращает независимую копию среза строк.
func CloneCartLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}
