package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/fiber/v2/utils"
	log "github.com/sirupsen/logrus"
)

// SessionCookieName — cookie, по которой находится корзина.
const SessionCookieName = "bookstore_session"

const localsSessionID = "session_id"

// NewSessionStore создаёт хранилище сессий fiber. Корзина живёт столько же, сколько сессия.
func NewSessionStore(ttl time.Duration) *session.Store {
	return session.New(session.Config{
		Expiration:     ttl,
		KeyLookup:      "cookie:" + SessionCookieName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})
}

// sessionMiddleware продлевает сессию и кладёт её идентификатор в c.Locals.
func sessionMiddleware(store *session.Store, logger *log.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			logger.WithError(err).Warn("failed to load session")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "session unavailable"})
		}
		// После Save сессию трогать нельзя, ID читаем заранее.
		id := utils.CopyString(sess.ID())
		if err := sess.Save(); err != nil {
			logger.WithError(err).Warn("failed to save session")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "session unavailable"})
		}
		c.Locals(localsSessionID, id)
		return c.Next()
	}
}

func sessionIDFromCtx(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals(localsSessionID).(string)
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "session is required")
	}
	return id, nil
}
