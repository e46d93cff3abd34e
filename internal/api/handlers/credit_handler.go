package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/publora/publora/internal/service"
)

type CreditHandler struct {
	ledger service.CreditLedger
}

func NewCreditHandler(ledger service.CreditLedger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

func (h *CreditHandler) GetBalance(c *fiber.Ctx) error {
	scope := GetScope(c)

	balance, err := h.ledger.Balance(c.Context(), scope)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to fetch credit balance",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"balance": balance})
}
