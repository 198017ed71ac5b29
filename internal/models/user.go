/**
 * @description
 * User database model.
 * Maps to the 'users' table in PostgreSQL. Mirrors the core ledger's
 * owner⇄vault bijection for history and UI queries; the in-memory ledger
 * stays authoritative.
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

// User represents a registered city owner
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	OwnerAddress string    `gorm:"column:owner_address;uniqueIndex;not null" json:"owner_address"`
	VaultAddress string    `gorm:"column:vault_address;uniqueIndex;not null" json:"vault_address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by User to `users`
func (User) TableName() string {
	return "users"
}

// BeforeCreate ensures UUID is generated if not present
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
