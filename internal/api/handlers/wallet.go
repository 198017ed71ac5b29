/**
 * @description
 * HTTP Handlers for Wallet management.
 * Exposes endpoints to create/fetch the user's vault and to manage
 * delegate session keys.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/cityforge-project/backend/internal/api/middleware"
	"github.com/cityforge-project/backend/internal/services"
)

type WalletHandler struct {
	Manager *services.WalletManager
}

func NewWalletHandler(manager *services.WalletManager) *WalletHandler {
	return &WalletHandler{Manager: manager}
}

// GetWallet returns the vault for the authenticated user, creating it on
// first visit. This effectively "Auto-Onboards" the user.
// GET /api/v1/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	v, err := h.Manager.EnsureWallet(c.Context(), owner)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Wallet check failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"owner_address": owner.Hex(),
		"vault_address": v.Address().Hex(),
	})
}

// CreateDelegateRequest defines payload for granting a delegate key
type CreateDelegateRequest struct {
	Delegate   string `json:"delegate"`
	ValidUntil int64  `json:"valid_until"` // unix seconds
	DailyLimit string `json:"daily_limit"` // decimal string, "0" for no spend allowance
}

// CreateDelegate grants or refreshes a delegate session key on the vault
// POST /api/v1/wallet/delegates
func (h *WalletHandler) CreateDelegate(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req CreateDelegateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if !common.IsHexAddress(req.Delegate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "delegate must be a valid address"})
	}
	limit, ok := new(big.Int).SetString(req.DailyLimit, 10)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "daily_limit must be a decimal string"})
	}

	v, err := h.Manager.EnsureWallet(c.Context(), owner)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Wallet check failed: " + err.Error()})
	}

	validUntil := time.Unix(req.ValidUntil, 0).UTC()
	if err := v.CreateDelegate(owner, common.HexToAddress(req.Delegate), validUntil, limit); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// RevokeDelegate deactivates a delegate key
// DELETE /api/v1/wallet/delegates/:address
func (h *WalletHandler) RevokeDelegate(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	delegateHex := c.Params("address")
	if !common.IsHexAddress(delegateHex) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid delegate address"})
	}

	v, err := h.Manager.EnsureWallet(c.Context(), owner)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Wallet check failed: " + err.Error()})
	}

	if err := v.RevokeDelegate(owner, common.HexToAddress(delegateHex)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// ListDelegates returns the vault's delegate table
// GET /api/v1/wallet/delegates
func (h *WalletHandler) ListDelegates(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	v, err := h.Manager.EnsureWallet(c.Context(), owner)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Wallet check failed: " + err.Error()})
	}

	type delegateView struct {
		Address    string `json:"address"`
		ValidUntil int64  `json:"valid_until"`
		DailyLimit string `json:"daily_limit"`
		SpentToday string `json:"spent_today"`
		Active     bool   `json:"active"`
	}

	delegates := v.Delegates()
	out := make([]delegateView, 0, len(delegates))
	for addr, policy := range delegates {
		out = append(out, delegateView{
			Address:    addr.Hex(),
			ValidUntil: policy.ValidUntil.Unix(),
			DailyLimit: policy.DailyLimit.String(),
			SpentToday: policy.SpentToday.String(),
			Active:     policy.Active,
		})
	}

	return c.JSON(fiber.Map{"delegates": out})
}
