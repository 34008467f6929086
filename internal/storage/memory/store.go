package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Store — общее in-memory хранилище каталога, клиентов, сотрудников и заказов.
// Все сущности защищены одним мьютексом, поэтому CommitCheckout атомарен
// относительно любых других операций с книгами, балансами и заказами.
type Store struct {
	mu sync.RWMutex

	books      map[int64]domain.Book
	nextBookID int64

	customers       map[int64]domain.Customer
	customerByEmail map[string]int64
	nextCustomerID  int64

	employees       map[int64]domain.Employee
	employeeByEmail map[string]int64
	nextEmployeeID  int64

	orders map[string]domain.Order
}

// NewStore создаёт пустое хранилище для локальной разработки и тестов.
func NewStore() *Store {
	return &Store{
		books:           make(map[int64]domain.Book),
		customers:       make(map[int64]domain.Customer),
		customerByEmail: make(map[string]int64),
		employees:       make(map[int64]domain.Employee),
		employeeByEmail: make(map[string]int64),
		orders:          make(map[string]domain.Order),
	}
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	return dst
}

// pageOrders сортирует выборку (новые сначала) и вырезает страницу.
func pageOrders(orders []domain.Order, page domain.PageRequest) domain.OrderPage {
	page = page.Normalize()

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].PlacedAt.Equal(orders[j].PlacedAt) {
			return orders[i].PlacedAt.After(orders[j].PlacedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	total := len(orders)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	items := make([]domain.Order, 0, end-start)
	for _, order := range orders[start:end] {
		items = append(items, cloneOrder(order))
	}
	return domain.NewOrderPage(items, page, total)
}
