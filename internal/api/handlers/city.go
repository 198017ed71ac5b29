/**
 * @description
 * City API Handlers.
 * Exposes the place/harvest/demolish actions plus city reads and the live
 * event stream (SSE).
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 * - backend/internal/api/middleware
 */

package handlers

import (
	"bufio"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/cityforge-project/backend/internal/adapters"
	"github.com/cityforge-project/backend/internal/api/middleware"
	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
	"github.com/cityforge-project/backend/internal/services"
)

type CityHandler struct {
	Service *services.CityService
	Hub     *services.CityEventHub
}

func NewCityHandler(service *services.CityService, hub *services.CityEventHub) *CityHandler {
	return &CityHandler{Service: service, Hub: hub}
}

type buildingView struct {
	ID           uint64 `json:"id"`
	BuildingType string `json:"building_type"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	X            uint32 `json:"x"`
	Y            uint32 `json:"y"`
	Active       bool   `json:"active"`
	PlacedAt     int64  `json:"placed_at"`
}

func toBuildingView(b ledger.Building) buildingView {
	return buildingView{
		ID:           b.ID,
		BuildingType: b.BuildingType,
		Asset:        b.Asset.Hex(),
		Amount:       b.Amount.String(),
		X:            b.X,
		Y:            b.Y,
		Active:       b.Active,
		PlacedAt:     b.PlacedAt.Unix(),
	}
}

// PlaceBuildingRequest defines payload for placing a building
type PlaceBuildingRequest struct {
	BuildingType string `json:"building_type"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"` // decimal string
	X            uint32 `json:"x"`
	Y            uint32 `json:"y"`
	Metadata     string `json:"metadata"` // opaque, passed through to the ledger
}

// PlaceBuilding places a new building on the caller's grid
// POST /api/v1/city/buildings
func (h *CityHandler) PlaceBuilding(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req PlaceBuildingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.BuildingType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "building_type is required"})
	}
	amount := new(big.Int)
	if req.Amount != "" {
		parsed, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok || parsed.Sign() < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be a non-negative decimal string"})
		}
		amount = parsed
	}
	var asset common.Address
	if req.Asset != "" {
		if !common.IsHexAddress(req.Asset) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "asset must be a valid address"})
		}
		asset = common.HexToAddress(req.Asset)
	}

	params := adapters.PlaceParams{
		Asset:    asset,
		Amount:   amount,
		X:        req.X,
		Y:        req.Y,
		Metadata: []byte(req.Metadata),
	}
	id, err := h.Service.PlaceBuilding(c.Context(), owner, req.BuildingType, params)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(toBuildingView(h.Service.Ledger.GetBuilding(id)))
}

// HarvestBuilding claims accrued yield for a building
// POST /api/v1/city/buildings/:id/harvest
func (h *CityHandler) HarvestBuilding(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid building id"})
	}

	harvested, err := h.Service.HarvestBuilding(c.Context(), owner, uint64(id))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"building_id": uint64(id),
		"harvested":   harvested.String(),
	})
}

// DemolishBuilding tears a building down and returns its principal
// DELETE /api/v1/city/buildings/:id
func (h *CityHandler) DemolishBuilding(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid building id"})
	}

	returned, err := h.Service.DemolishBuilding(c.Context(), owner, uint64(id))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"building_id": uint64(id),
		"returned":    returned.String(),
	})
}

// GetCity returns the authenticated user's buildings in placement order
// GET /api/v1/city
func (h *CityHandler) GetCity(c *fiber.Ctx) error {
	owner, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.JSON(h.cityView(owner))
}

// GetCityByOwner returns any user's city. Cities are public.
// GET /api/v1/city/:owner
func (h *CityHandler) GetCityByOwner(c *fiber.Ctx) error {
	ownerHex := c.Params("owner")
	if !common.IsHexAddress(ownerHex) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid owner address"})
	}
	return c.JSON(h.cityView(common.HexToAddress(ownerHex)))
}

func (h *CityHandler) cityView(owner common.Address) fiber.Map {
	buildings := h.Service.GetCity(owner)
	views := make([]buildingView, 0, len(buildings))
	for _, b := range buildings {
		views = append(views, toBuildingView(b))
	}
	stats := h.Service.Ledger.GetUserStats(owner)
	return fiber.Map{
		"owner":     owner.Hex(),
		"buildings": views,
		"stats": fiber.Map{
			"building_count":  stats.BuildingCount,
			"city_created_at": stats.CityCreatedAt.Unix(),
			"total_deposited": stats.TotalDeposited.String(),
			"total_withdrawn": stats.TotalWithdrawn.String(),
			"total_harvested": stats.TotalHarvested.String(),
		},
	}
}

// GetBuildingTypes lists the registered building types
// GET /api/v1/city/types
func (h *CityHandler) GetBuildingTypes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"types": h.Service.Registry.Types()})
}

// ExecuteCallRequest defines payload for a raw vault call
type ExecuteCallRequest struct {
	Owner  string `json:"owner"`  // vault owner; defaults to the caller
	Target string `json:"target"` // call target address
	Value  string `json:"value"`  // decimal string
	Data   string `json:"data"`   // 0x-prefixed calldata
}

// ExecuteCall runs one arbitrary call through a vault. The authenticated
// caller must be the vault owner or an authorized delegate.
// POST /api/v1/city/execute
func (h *CityHandler) ExecuteCall(c *fiber.Ctx) error {
	caller, err := middleware.GetOwnerAddress(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req ExecuteCallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	owner := caller
	if req.Owner != "" {
		if !common.IsHexAddress(req.Owner) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid owner address"})
		}
		owner = common.HexToAddress(req.Owner)
	}
	if !common.IsHexAddress(req.Target) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target must be a valid address"})
	}
	value := new(big.Int)
	if req.Value != "" {
		parsed, ok := new(big.Int).SetString(req.Value, 10)
		if !ok || parsed.Sign() < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "value must be a non-negative decimal string"})
		}
		value = parsed
	}
	data := common.FromHex(req.Data)

	output, err := h.Service.ExecuteCall(c.Context(), caller, owner, chain.Call{
		Target: common.HexToAddress(req.Target),
		Value:  value,
		Data:   data,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"output": common.Bytes2Hex(output)})
}

// StreamEvents streams live building events over SSE. An optional ?owner=
// query narrows the stream to one owner's city.
// GET /api/v1/city/stream
func (h *CityHandler) StreamEvents(c *fiber.Ctx) error {
	ownerHex := c.Query("owner")
	if ownerHex != "" && !common.IsHexAddress(ownerHex) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid owner address"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()

	var events <-chan []byte
	var unsubscribe func()
	if ownerHex != "" {
		events, unsubscribe = h.Hub.SubscribeOwner(common.HexToAddress(ownerHex))
	} else {
		events, unsubscribe = h.Hub.Subscribe()
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		requestDone := requestCtx.Done()

		for {
			select {
			case <-requestDone:
				return
			case payload, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
