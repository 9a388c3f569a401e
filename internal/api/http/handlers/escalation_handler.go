package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/msp-sla/internal/api/dto"
	"github.com/spec-kit/msp-sla/internal/escalation"
)

// Scanner runs an escalation pass.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) (escalation.ScanResult, error)
}

// EscalationHandler triggers on-demand scans.
type EscalationHandler struct {
	scanner Scanner
	clock   Clock
}

// NewEscalationHandler constructs the handler.
func NewEscalationHandler(scanner Scanner, clock Clock) *EscalationHandler {
	return &EscalationHandler{scanner: scanner, clock: clock}
}

// Scan POST /escalations/scan.
func (h *EscalationHandler) Scan(c *fiber.Ctx) error {
	result, err := h.scanner.Scan(c.UserContext(), h.clock.now())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewScanResponse(result))
}
