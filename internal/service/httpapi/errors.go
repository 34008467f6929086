package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
)

// errorResponse переводит доменную ошибку в HTTP-статус и тело ответа.
func errorResponse(err error) (int, fiber.Map) {
	var (
		stockErr *domain.InsufficientStockError
		fundsErr *domain.InsufficientFundsError
		validErr validator.ValidationErrors
		fiberErr *fiber.Error
	)

	switch {
	case errors.As(err, &validErr):
		fields := make([]string, 0, len(validErr))
		for _, fe := range validErr {
			fields = append(fields, fe.Field())
		}
		return fiber.StatusBadRequest, fiber.Map{"message": "validation failed", "code": "validation_failed", "fields": fields}
	case errors.As(err, &stockErr):
		return fiber.StatusConflict, fiber.Map{
			"message": err.Error(),
			"code":    "insufficient_stock",
			"details": fiber.Map{
				"bookId":    stockErr.BookID,
				"bookName":  stockErr.BookName,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			},
		}
	case errors.As(err, &fundsErr):
		return fiber.StatusConflict, fiber.Map{
			"message": err.Error(),
			"code":    "insufficient_funds",
			"details": fiber.Map{
				"balance": fundsErr.Balance.StringFixed(2),
				"total":   fundsErr.Total.StringFixed(2),
			},
		}
	case errors.Is(err, domain.ErrCustomerBlocked):
		return fiber.StatusForbidden, fiber.Map{"message": err.Error(), "code": "customer_blocked"}
	case domain.IsNotFound(err):
		return fiber.StatusNotFound, fiber.Map{"message": err.Error(), "code": "not_found"}
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrQuantityInvalid),
		errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return fiber.StatusBadRequest, fiber.Map{"message": err.Error(), "code": "bad_request"}
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOrderStatusConflict):
		return fiber.StatusConflict, fiber.Map{"message": err.Error(), "code": "status_conflict"}
	case domain.IsIdempotencyConflict(err),
		errors.Is(err, idempotency.ErrRequestInProgress):
		return fiber.StatusConflict, fiber.Map{"message": err.Error(), "code": "idempotency_conflict"}
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiber.Map{"message": fiberErr.Message}
	default:
		return fiber.StatusInternalServerError, fiber.Map{"message": "internal error"}
	}
}

// writeError отвечает ошибкой; 5xx дополнительно логируются.
func writeError(c *fiber.Ctx, logger *log.Entry, err error) error {
	status, body := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
	}
	return c.Status(status).JSON(body)
}
