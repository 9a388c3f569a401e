package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/auth"
	"github.com/spec-kit/msp-sla/internal/domain"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// Clock returns the current instant. Handlers are the only HTTP code that reads it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("staff required")
	}
	return actor, nil
}

func data(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"data": payload})
}
