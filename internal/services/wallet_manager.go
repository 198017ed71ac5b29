/**
 * @description
 * Wallet Manager Service.
 * Handles the business logic for:
 * 1. Creating (or returning) a user's vault via the deterministic factory.
 * 2. Mirroring the owner⇄vault binding into the local User database.
 *
 * @dependencies
 * - gorm.io/gorm
 * - backend/internal/models
 * - backend/internal/vault
 * - backend/internal/logger
 */

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgconn"
	"gorm.io/gorm"

	"github.com/cityforge-project/backend/internal/ledger"
	"github.com/cityforge-project/backend/internal/logger"
	"github.com/cityforge-project/backend/internal/models"
	"github.com/cityforge-project/backend/internal/vault"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

type WalletManager struct {
	DB      *gorm.DB
	Factory *vault.Factory
	Ledger  *ledger.Ledger
}

func NewWalletManager(db *gorm.DB, factory *vault.Factory, l *ledger.Ledger) *WalletManager {
	return &WalletManager{
		DB:      db,
		Factory: factory,
		Ledger:  l,
	}
}

// EnsureWallet returns the owner's vault, creating it on first call. The
// core factory is idempotent; the database row is a best-effort mirror.
func (s *WalletManager) EnsureWallet(ctx context.Context, owner common.Address) (*vault.Vault, error) {
	v, err := s.Factory.CreateOrGetWallet(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}

	if s.DB != nil {
		s.mirrorUser(ctx, owner, v.Address())
	}
	return v, nil
}

// GetUserWallet returns the mirrored wallet row for an owner.
func (s *WalletManager) GetUserWallet(ctx context.Context, owner common.Address) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("owner_address = ?", owner.Hex()).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

// mirrorUser upserts the users row. A unique violation means a concurrent
// request already wrote the same binding, which is fine.
func (s *WalletManager) mirrorUser(ctx context.Context, owner, vaultAddr common.Address) {
	user := models.User{
		OwnerAddress: owner.Hex(),
		VaultAddress: vaultAddr.Hex(),
	}
	err := s.DB.WithContext(ctx).
		Where("owner_address = ?", owner.Hex()).
		FirstOrCreate(&user).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return
		}
		logger.Error("Failed to mirror user %s: %v", owner.Hex(), err)
	}
}
