package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/domain"
	apperrors "github.com/spec-kit/msp-sla/pkg/util/errorutil"
)

// RequireStaffRole ensures the caller holds one of the allowed roles. With no roles
// any authenticated staff member passes.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("staff required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[actor.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireSupervisor admits managers and administrators.
func RequireSupervisor() fiber.Handler {
	return RequireStaffRole(domain.StaffRoleManager, domain.StaffRoleAdmin)
}
