package httpapi

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/cart"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookstore/internal/service/ledger"
)

// IdempotencyKeyHeader — заголовок, по которому повтор checkout отдаёт сохранённый ответ.
const IdempotencyKeyHeader = "Idempotency-Key"

const replayedHeader = "Idempotent-Replayed"

// Services — зависимости HTTP-слоя. Guard может быть nil: тогда ключ игнорируется.
type Services struct {
	Books     domain.BookRepository
	Customers domain.CustomerRepository
	Cart      *cart.Service
	Checkout  *checkout.Engine
	Ledger    *ledger.Service
	Guard     *idempotency.Guard
}

// Handler обслуживает REST API магазина.
type Handler struct {
	svc      Services
	validate *validator.Validate
	logger   *log.Entry
}

// NewHandler создаёт обработчики поверх сервисов.
func NewHandler(svc Services, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterPublicRoutes регистрирует маршруты, доступные без токена.
func (h *Handler) RegisterPublicRoutes(app fiber.Router) {
	app.Get("/api/v1/books", h.listBooks)
	app.Get("/api/v1/books/:id", h.getBook)
}

// RegisterProtectedRoutes регистрирует маршруты, которым нужен токен.
func (h *Handler) RegisterProtectedRoutes(app fiber.Router) {
	app.Get("/api/v1/cart", h.getCart)
	app.Post("/api/v1/cart/items", h.addCartItem)
	app.Put("/api/v1/cart/items/:bookId", h.updateCartItem)
	app.Delete("/api/v1/cart/items/:bookId", h.removeCartItem)
	app.Delete("/api/v1/cart", h.clearCart)
	app.Post("/api/v1/cart/checkout", requireRole(RoleCustomer), h.checkout)

	app.Get("/api/v1/orders/my", requireRole(RoleCustomer), h.myOrders)
	app.Get("/api/v1/orders/managed", requireRole(RoleEmployee), h.managedOrders)

	admin := app.Group("/api/v1/admin", requireRole(RoleEmployee))
	admin.Get("/orders", h.allOrders)
	admin.Post("/orders", h.addOrder)
	admin.Patch("/orders/:id/status", h.updateStatus)
	admin.Get("/orders/:id/history", h.orderHistory)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	return writeError(c, h.logger, err)
}

func (h *Handler) parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return h.validate.Struct(out)
}

func pageFromQuery(c *fiber.Ctx) domain.PageRequest {
	return domain.PageRequest{
		Page: c.QueryInt("page", 0),
		Size: c.QueryInt("size", domain.DefaultPageSize),
	}
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) listBooks(c *fiber.Ctx) error {
	page, err := h.svc.Books.List(c.UserContext(), pageFromQuery(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newBookPageResponse(page))
}

func (h *Handler) getBook(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	book, err := h.svc.Books.Get(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newBookResponse(book))
}

// cartContext возвращает вызывающего и его сессию.
func cartContext(c *fiber.Ctx) (Identity, string, error) {
	id, err := identityFromCtx(c)
	if err != nil {
		return Identity{}, "", err
	}
	sessionID, err := sessionIDFromCtx(c)
	if err != nil {
		return Identity{}, "", err
	}
	return id, sessionID, nil
}

func (h *Handler) cartView(c *fiber.Ctx, lines []domain.CartLine) error {
	return c.JSON(newCartResponse(lines, h.svc.Cart.CalculateTotal(lines)))
}

func (h *Handler) getCart(c *fiber.Ctx) error {
	id, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx := c.UserContext()

	lines, err := h.svc.Cart.GetCart(ctx, sessionID)
	if err != nil {
		return h.fail(c, err)
	}
	resp := newCartResponse(lines, h.svc.Cart.CalculateTotal(lines))
	if id.Role == RoleCustomer {
		customer, err := h.svc.Customers.GetByEmail(ctx, id.Email)
		switch {
		case err == nil:
			resp.Balance = money(customer.Balance)
		case !domain.IsNotFound(err):
			return h.fail(c, err)
		}
	}
	return c.JSON(resp)
}

func (h *Handler) addCartItem(c *fiber.Ctx) error {
	_, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req addCartItemRequest
	if err := h.parse(c, &req); err != nil {
		return h.fail(c, err)
	}

	lines, err := h.svc.Cart.AddItem(c.UserContext(), sessionID, req.BookID, req.Quantity)
	if err != nil {
		return h.fail(c, err)
	}
	return h.cartView(c, lines)
}

func (h *Handler) updateCartItem(c *fiber.Ctx) error {
	_, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return h.fail(c, err)
	}
	var req updateCartItemRequest
	if err := h.parse(c, &req); err != nil {
		return h.fail(c, err)
	}

	lines, err := h.svc.Cart.UpdateItemQuantity(c.UserContext(), sessionID, bookID, req.Quantity)
	if err != nil {
		return h.fail(c, err)
	}
	return h.cartView(c, lines)
}

func (h *Handler) removeCartItem(c *fiber.Ctx) error {
	_, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return h.fail(c, err)
	}

	lines, err := h.svc.Cart.RemoveItem(c.UserContext(), sessionID, bookID)
	if err != nil {
		return h.fail(c, err)
	}
	return h.cartView(c, lines)
}

func (h *Handler) clearCart(c *fiber.Ctx) error {
	_, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Cart.ClearCart(c.UserContext(), sessionID); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// checkout оформляет заказ из корзины сессии. С заголовком Idempotency-Key
// повтор запроса получает сохранённый ответ, в том числе бизнес-отказ.
func (h *Handler) checkout(c *fiber.Ctx) error {
	id, sessionID, err := cartContext(c)
	if err != nil {
		return h.fail(c, err)
	}

	run := func(ctx context.Context) (idempotency.Response, error) {
		return h.placeOrder(ctx, id.Email, sessionID)
	}

	// Ключ переживает запрос, а c.Get ссылается на буфер fasthttp.
	key := utils.CopyString(c.Get(IdempotencyKeyHeader))
	if key == "" || h.svc.Guard == nil {
		resp, err := run(c.UserContext())
		if err != nil {
			return h.fail(c, err)
		}
		return sendRaw(c, resp)
	}

	hash := idempotency.RequestHash("checkout", []byte(sessionID))
	resp, replayed, err := h.svc.Guard.Execute(c.UserContext(), id.Email, key, hash, run)
	if err != nil {
		return h.fail(c, err)
	}
	if replayed {
		c.Set(replayedHeader, "true")
	}
	return sendRaw(c, resp)
}

// placeOrder возвращает ошибку только для сбоев без готового ответа (5xx).
func (h *Handler) placeOrder(ctx context.Context, email, sessionID string) (idempotency.Response, error) {
	lines, err := h.svc.Cart.Lines(ctx, sessionID)
	if err != nil {
		return idempotency.Response{}, err
	}

	order, err := h.svc.Checkout.PlaceOrder(ctx, email, lines)
	if err != nil {
		status, body := errorResponse(err)
		if status >= fiber.StatusInternalServerError {
			return idempotency.Response{}, err
		}
		return jsonResponse(status, body)
	}

	if err := h.svc.Cart.ClearCart(ctx, sessionID); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to clear cart after checkout")
	}
	return jsonResponse(fiber.StatusCreated, newOrderResponse(order))
}

func jsonResponse(status int, body any) (idempotency.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return idempotency.Response{}, err
	}
	return idempotency.Response{Status: status, Body: raw}, nil
}

func sendRaw(c *fiber.Ctx, resp idempotency.Response) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(resp.Status).Send(resp.Body)
}

func (h *Handler) myOrders(c *fiber.Ctx) error {
	id, err := identityFromCtx(c)
	if err != nil {
		return h.fail(c, err)
	}
	page, err := h.svc.Ledger.OrdersByCustomer(c.UserContext(), id.Email, pageFromQuery(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newOrderPageResponse(page))
}

func (h *Handler) managedOrders(c *fiber.Ctx) error {
	id, err := identityFromCtx(c)
	if err != nil {
		return h.fail(c, err)
	}
	page, err := h.svc.Ledger.OrdersByEmployee(c.UserContext(), id.Email, pageFromQuery(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newOrderPageResponse(page))
}

func (h *Handler) allOrders(c *fiber.Ctx) error {
	filter := ledger.Filter{
		CustomerEmail: c.Query("customerEmail"),
		Status:        c.Query("status"),
	}
	page, err := h.svc.Ledger.AllOrders(c.UserContext(), filter, pageFromQuery(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newOrderPageResponse(page))
}

func (h *Handler) addOrder(c *fiber.Ctx) error {
	id, err := identityFromCtx(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req addOrderRequest
	if err := h.parse(c, &req); err != nil {
		return h.fail(c, err)
	}

	items := make([]domain.OrderRequestItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderRequestItem{BookName: item.BookName, Quantity: item.Quantity})
	}
	order, err := h.svc.Checkout.AddOrder(c.UserContext(), domain.OrderRequest{
		CustomerEmail: req.CustomerEmail,
		EmployeeEmail: id.Email,
		Items:         items,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newOrderResponse(order))
}

func (h *Handler) updateStatus(c *fiber.Ctx) error {
	id, err := identityFromCtx(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req updateStatusRequest
	if err := h.parse(c, &req); err != nil {
		return h.fail(c, err)
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return h.fail(c, err)
	}

	order, err := h.svc.Ledger.UpdateStatus(c.UserContext(), c.Params("id"), status, id.Email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(newOrderResponse(order))
}

func (h *Handler) orderHistory(c *fiber.Ctx) error {
	events, err := h.svc.Ledger.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	resp := make([]historyEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, historyEventResponse{
			Type:       e.Type,
			Reason:     e.Reason,
			Actor:      e.Actor,
			OccurredAt: e.Occurred,
		})
	}
	return c.JSON(resp)
}
