/**
 * @description
 * City Service.
 * Orchestrates the core flow for every city action: resolve the user's
 * vault, ask the registered adapter to prepare the call batch, execute the
 * batch atomically through the vault, then mirror the committed outcome to
 * Postgres and publish it on the Redis event channel.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/redis/go-redis/v9
 * - backend/internal/adapters
 * - backend/internal/chain
 * - backend/internal/ledger
 * - backend/internal/vault
 *
 * @notes
 * - The in-memory core is authoritative. Postgres/Redis writes happen after
 *   the batch commits and never revert it; failures there are logged only.
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgconn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/cityforge-project/backend/internal/adapters"
	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
	"github.com/cityforge-project/backend/internal/logger"
	"github.com/cityforge-project/backend/internal/models"
	"github.com/cityforge-project/backend/internal/vault"
)

type CityService struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Ledger   *ledger.Ledger
	Registry *adapters.Registry
	Wallets  *WalletManager

	EventChannel string
}

func NewCityService(db *gorm.DB, rdb *redis.Client, l *ledger.Ledger, registry *adapters.Registry, wallets *WalletManager, eventChannel string) *CityService {
	return &CityService{
		DB:           db,
		Redis:        rdb,
		Ledger:       l,
		Registry:     registry,
		Wallets:      wallets,
		EventChannel: eventChannel,
	}
}

// CityEvent is the payload published on the Redis event channel after a
// committed action.
type CityEvent struct {
	Event        string `json:"event"` // "placed" | "harvested" | "demolished"
	Owner        string `json:"owner"`
	Vault        string `json:"vault"`
	BuildingID   uint64 `json:"building_id"`
	BuildingType string `json:"building_type"`
	Asset        string `json:"asset,omitempty"`
	Amount       string `json:"amount"`
	X            uint32 `json:"x"`
	Y            uint32 `json:"y"`
}

// PlaceBuilding runs the full placement flow and returns the new building id.
func (s *CityService) PlaceBuilding(ctx context.Context, owner common.Address, buildingType string, params adapters.PlaceParams) (uint64, error) {
	v, err := s.Wallets.EnsureWallet(ctx, owner)
	if err != nil {
		return 0, err
	}
	adapter, err := s.Registry.Get(buildingType)
	if err != nil {
		return 0, err
	}

	encoded, err := adapters.EncodePlaceParams(params)
	if err != nil {
		return 0, err
	}
	batch, err := adapter.PreparePlace(owner, v.Address(), encoded)
	if err != nil {
		return 0, err
	}

	outputs, err := v.ExecuteBatch(owner, batch)
	if err != nil {
		return 0, err
	}
	id, err := ledger.UnpackPlacementID(outputs[len(outputs)-1])
	if err != nil {
		return 0, err
	}

	building := s.Ledger.GetBuilding(id)
	s.recordAndPublish(ctx, models.EventPlaced, "placed", building, building.Amount)
	return id, nil
}

// HarvestBuilding claims yield for a building. Returns the harvested amount.
func (s *CityService) HarvestBuilding(ctx context.Context, owner common.Address, buildingID uint64) (*big.Int, error) {
	v, err := s.Wallets.EnsureWallet(ctx, owner)
	if err != nil {
		return nil, err
	}
	building := s.Ledger.GetBuilding(buildingID)
	adapter, err := s.Registry.Get(building.BuildingType)
	if err != nil {
		return nil, err
	}

	batch, err := adapter.PrepareHarvest(owner, v.Address(), buildingID, nil)
	if err != nil {
		return nil, err
	}
	// The trailing record call carries the amount the ledger will record;
	// reading it from the batch keeps the reported amount tied to this
	// action even when other actions by the same owner run concurrently.
	harvested, err := ledger.UnpackRecordedAmount(batch[len(batch)-1].Data)
	if err != nil {
		return nil, err
	}
	if _, err := v.ExecuteBatch(owner, batch); err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, models.EventHarvested, "harvested", building, harvested)
	return harvested, nil
}

// DemolishBuilding tears a building down. Returns the principal withdrawn.
func (s *CityService) DemolishBuilding(ctx context.Context, owner common.Address, buildingID uint64) (*big.Int, error) {
	v, err := s.Wallets.EnsureWallet(ctx, owner)
	if err != nil {
		return nil, err
	}
	building := s.Ledger.GetBuilding(buildingID)
	adapter, err := s.Registry.Get(building.BuildingType)
	if err != nil {
		return nil, err
	}

	batch, err := adapter.PrepareDemolish(owner, v.Address(), buildingID, nil)
	if err != nil {
		return nil, err
	}
	returned, err := ledger.UnpackRecordedAmount(batch[len(batch)-1].Data)
	if err != nil {
		return nil, err
	}
	if _, err := v.ExecuteBatch(owner, batch); err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, models.EventDemolished, "demolished", building, returned)
	return returned, nil
}

// ExecuteCall runs a single arbitrary call through the owner's vault on
// behalf of caller (the owner, or one of the vault's delegates).
func (s *CityService) ExecuteCall(ctx context.Context, caller, owner common.Address, call chain.Call) ([]byte, error) {
	v, ok := s.Wallets.Factory.Wallet(owner)
	if !ok {
		return nil, vault.ErrNotAuthorized
	}
	return v.Execute(caller, call)
}

// GetCity returns every building the owner has ever placed, in placement order.
func (s *CityService) GetCity(owner common.Address) []ledger.Building {
	ids := s.Ledger.GetUserBuildings(owner)
	buildings := make([]ledger.Building, 0, len(ids))
	for _, id := range ids {
		buildings = append(buildings, s.Ledger.GetBuilding(id))
	}
	return buildings
}

func (s *CityService) recordAndPublish(ctx context.Context, eventType models.BuildingEventType, eventName string, building ledger.Building, amount *big.Int) {
	if amount == nil {
		amount = new(big.Int)
	}

	if s.DB != nil {
		row := models.BuildingEvent{
			BuildingID:   building.ID,
			EventType:    eventType,
			OwnerAddress: building.Owner.Hex(),
			VaultAddress: building.Vault.Hex(),
			BuildingType: building.BuildingType,
			AssetAddress: building.Asset.Hex(),
			Amount:       amount.String(),
			X:            building.X,
			Y:            building.Y,
		}
		if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
				logger.Error("Failed to record building event %d: %v", building.ID, err)
			}
		}
	}

	if s.Redis != nil {
		event := CityEvent{
			Event:        eventName,
			Owner:        building.Owner.Hex(),
			Vault:        building.Vault.Hex(),
			BuildingID:   building.ID,
			BuildingType: building.BuildingType,
			Amount:       amount.String(),
			X:            building.X,
			Y:            building.Y,
		}
		if building.Asset != (common.Address{}) {
			event.Asset = building.Asset.Hex()
		}
		payload, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to marshal city event: %v", err)
			return
		}
		if err := s.Redis.Publish(ctx, s.EventChannel, payload).Err(); err != nil {
			logger.Error("Failed to publish city event: %v", err)
		}
	}
}
