package domain

const (
	// DefaultPageSize совпадает с размером страницы витрины заказов.
	DefaultPageSize = 6
	// MaxPageSize ограничивает размер страницы сверху.
	MaxPageSize = 100
)

// PageRequest задаёт номер страницы (с нуля) и её размер.
type PageRequest struct {
	Page int
	Size int
}

// Normalize подставляет значения по умолчанию и обрезает размер до MaxPageSize.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p PageRequest) Offset() int {
	p = p.Normalize()
	return p.Page * p.Size
}

// TotalPages считает количество страниц для total записей.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// OrderPage — страница заказов, отсортированных по дате оформления (новые сначала).
type OrderPage struct {
	Items      []Order
	Page       int
	Size       int
	TotalItems int
	TotalPages int
}

// NewOrderPage собирает страницу из уже выбранных элементов и общего количества.
func NewOrderPage(items []Order, req PageRequest, total int) OrderPage {
	req = req.Normalize()
	if items == nil {
		items = []Order{}
	}
	return OrderPage{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: total,
		TotalPages: TotalPages(total, req.Size),
	}
}

// BookPage — страница каталога.
type BookPage struct {
	Items      []Book
	Page       int
	Size       int
	TotalItems int
	TotalPages int
}

// NewBookPage собирает страницу каталога.
func NewBookPage(items []Book, req PageRequest, total int) BookPage {
	req = req.Normalize()
	if items == nil {
		items = []Book{}
	}
	return BookPage{
		Items:      items,
		Page:       req.Page,
		Size:       req.Size,
		TotalItems: total,
		TotalPages: TotalPages(total, req.Size),
	}
}
