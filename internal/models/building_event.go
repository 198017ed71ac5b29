/**
 * @description
 * Building event history model.
 * Maps to the 'building_events' table in PostgreSQL. One row per committed
 * core action (placement, harvest, demolition); written best-effort after
 * the vault batch commits.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BuildingEventType string

const (
	EventPlaced     BuildingEventType = "PLACED"
	EventHarvested  BuildingEventType = "HARVESTED"
	EventDemolished BuildingEventType = "DEMOLISHED"
)

// BuildingEvent is one committed city action
type BuildingEvent struct {
	ID           uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	BuildingID   uint64            `gorm:"column:building_id;index" json:"building_id"`
	EventType    BuildingEventType `gorm:"column:event_type;not null" json:"event_type"`
	OwnerAddress string            `gorm:"column:owner_address;index;not null" json:"owner_address"`
	VaultAddress string            `gorm:"column:vault_address" json:"vault_address"`
	BuildingType string            `gorm:"column:building_type" json:"building_type"`
	AssetAddress string            `gorm:"column:asset_address" json:"asset_address"`
	Amount       string            `gorm:"column:amount;type:numeric" json:"amount"` // big.Int as decimal string
	X            uint32            `json:"x"`
	Y            uint32            `json:"y"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name used by BuildingEvent to `building_events`
func (BuildingEvent) TableName() string {
	return "building_events"
}

// BeforeCreate ensures UUID is generated if not present
func (e *BuildingEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return
}
