/**
 * @description
 * Building Ledger: the canonical record of per-owner grid occupancy, building
 * lifecycle, and aggregate user statistics for the CityForge core.
 * The ledger never moves funds. It only records what a vault batch has
 * already executed, and it only accepts mutations from the vault registered
 * for the owner in question.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 *
 * @notes
 * - Building records are append-only: demolition flips Active to false and
 *   frees the grid cell, the record itself is never deleted and its id is
 *   never reused.
 * - Reads return zero-value sentinels for absent entries rather than errors.
 */

package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ContractAddress is the well-known address of the building ledger.
var ContractAddress = common.HexToAddress("0x0000000000000000000000000000000000C17E00")

var (
	ErrNotVault         = errors.New("caller is not the registered vault for this owner")
	ErrVaultExists      = errors.New("owner already has a registered vault")
	ErrVaultBound       = errors.New("vault is already bound to a different owner")
	ErrGridOccupied     = errors.New("grid cell already holds an active building")
	ErrBuildingNotFound = errors.New("building not found")
	ErrBuildingInactive = errors.New("building is not active")
	ErrNotOwner         = errors.New("building belongs to a different owner")
)

// Coord addresses one cell on an owner's grid.
type Coord struct {
	X uint32
	Y uint32
}

// Building is one placed building. Asset is the zero address for building
// types with no backing position (e.g. the town hall).
type Building struct {
	ID           uint64
	Owner        common.Address
	Vault        common.Address
	BuildingType string
	Asset        common.Address
	Amount       *big.Int
	PlacedAt     time.Time
	X            uint32
	Y            uint32
	Active       bool
	Metadata     []byte
}

// UserStats aggregates per-owner totals. Zero-asset buildings count toward
// BuildingCount but contribute nothing to the amount totals.
type UserStats struct {
	BuildingCount  uint64
	CityCreatedAt  time.Time
	TotalDeposited *big.Int
	TotalWithdrawn *big.Int
	TotalHarvested *big.Int
}

// Ledger owns the building records, the per-owner grid index, the stats
// table, and the owner⇄vault bijection.
type Ledger struct {
	mu sync.RWMutex

	clock func() time.Time

	nextID       uint64
	buildings    map[uint64]*Building
	grid         map[common.Address]map[Coord]uint64
	byOwner      map[common.Address][]uint64
	stats        map[common.Address]*UserStats
	ownerToVault map[common.Address]common.Address
	vaultToOwner map[common.Address]common.Address
}

// New creates an empty ledger. The clock is used for PlacedAt/CityCreatedAt
// stamps and must be the environment's injectable clock.
func New(clock func() time.Time) *Ledger {
	return &Ledger{
		clock:        clock,
		nextID:       1,
		buildings:    make(map[uint64]*Building),
		grid:         make(map[common.Address]map[Coord]uint64),
		byOwner:      make(map[common.Address][]uint64),
		stats:        make(map[common.Address]*UserStats),
		ownerToVault: make(map[common.Address]common.Address),
		vaultToOwner: make(map[common.Address]common.Address),
	}
}

// RegisterVault binds owner and vault 1:1. Called once per owner by the
// factory; fails if either side of the bijection is already taken.
func (l *Ledger) RegisterVault(owner, vault common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.ownerToVault[owner]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrVaultExists, owner.Hex(), existing.Hex())
	}
	if existing, ok := l.vaultToOwner[vault]; ok {
		return fmt.Errorf("%w: %s -> %s", ErrVaultBound, vault.Hex(), existing.Hex())
	}
	l.ownerToVault[owner] = vault
	l.vaultToOwner[vault] = owner
	return nil
}

// RecordPlacement creates a building record and occupies the owner's grid
// cell. Caller must be the owner's registered vault. Returns the new id.
func (l *Ledger) RecordPlacement(caller, owner common.Address, buildingType string, asset common.Address, amount *big.Int, x, y uint32, metadata []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := l.requireVault(caller, owner)
	if err != nil {
		return 0, err
	}

	cell := Coord{X: x, Y: y}
	ownerGrid, ok := l.grid[owner]
	if !ok {
		ownerGrid = make(map[Coord]uint64)
		l.grid[owner] = ownerGrid
	}
	if existing, occupied := ownerGrid[cell]; occupied {
		return 0, fmt.Errorf("%w: (%d,%d) holds building %d", ErrGridOccupied, x, y, existing)
	}

	if amount == nil {
		amount = new(big.Int)
	}

	id := l.nextID
	l.nextID++

	now := l.clock()
	building := &Building{
		ID:           id,
		Owner:        owner,
		Vault:        vault,
		BuildingType: buildingType,
		Asset:        asset,
		Amount:       new(big.Int).Set(amount),
		PlacedAt:     now,
		X:            x,
		Y:            y,
		Active:       true,
		Metadata:     append([]byte(nil), metadata...),
	}
	l.buildings[id] = building
	ownerGrid[cell] = id
	l.byOwner[owner] = append(l.byOwner[owner], id)

	stats := l.statsFor(owner, now)
	stats.BuildingCount++
	stats.TotalDeposited.Add(stats.TotalDeposited, amount)

	return id, nil
}

// RecordHarvest credits harvested yield against an active building.
// Does not change the building's position or active flag.
func (l *Ledger) RecordHarvest(caller, owner common.Address, id uint64, harvested *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.requireVault(caller, owner); err != nil {
		return err
	}
	if _, err := l.requireActive(owner, id); err != nil {
		return err
	}
	if harvested == nil {
		harvested = new(big.Int)
	}

	stats := l.statsFor(owner, l.clock())
	stats.TotalHarvested.Add(stats.TotalHarvested, harvested)
	return nil
}

// RecordDemolition deactivates a building, frees its grid cell, and credits
// the returned principal to the owner's withdrawal total.
func (l *Ledger) RecordDemolition(caller, owner common.Address, id uint64, returned *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.requireVault(caller, owner); err != nil {
		return err
	}
	building, err := l.requireActive(owner, id)
	if err != nil {
		return err
	}
	if returned == nil {
		returned = new(big.Int)
	}

	building.Active = false
	delete(l.grid[owner], Coord{X: building.X, Y: building.Y})

	stats := l.statsFor(owner, l.clock())
	stats.TotalWithdrawn.Add(stats.TotalWithdrawn, returned)
	return nil
}

// HasWallet reports whether the owner has a registered vault.
func (l *Ledger) HasWallet(owner common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ownerToVault[owner]
	return ok
}

// GetWallet returns the vault for an owner, or the zero address.
func (l *Ledger) GetWallet(owner common.Address) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ownerToVault[owner]
}

// GetOwner returns the owner for a vault, or the zero address.
func (l *Ledger) GetOwner(vault common.Address) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vaultToOwner[vault]
}

// GetBuilding returns a copy of the building with the given id, or a
// zero-value Building if no such id exists.
func (l *Ledger) GetBuilding(id uint64) Building {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if building, ok := l.buildings[id]; ok {
		return copyBuilding(building)
	}
	return Building{}
}

// GetBuildingAt returns a copy of the active building at the owner's cell,
// or a zero-value Building (ID 0) if the cell is free.
func (l *Ledger) GetBuildingAt(owner common.Address, x, y uint32) Building {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if ownerGrid, ok := l.grid[owner]; ok {
		if id, occupied := ownerGrid[Coord{X: x, Y: y}]; occupied {
			return copyBuilding(l.buildings[id])
		}
	}
	return Building{}
}

// GetUserBuildings returns the ids of every building the owner has ever
// placed, in placement order (demolished ones included).
func (l *Ledger) GetUserBuildings(owner common.Address) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.byOwner[owner]...)
}

// GetUserStats returns a copy of the owner's aggregate statistics, or a
// zero-value UserStats if the owner has never placed a building.
func (l *Ledger) GetUserStats(owner common.Address) UserStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if stats, ok := l.stats[owner]; ok {
		return UserStats{
			BuildingCount:  stats.BuildingCount,
			CityCreatedAt:  stats.CityCreatedAt,
			TotalDeposited: new(big.Int).Set(stats.TotalDeposited),
			TotalWithdrawn: new(big.Int).Set(stats.TotalWithdrawn),
			TotalHarvested: new(big.Int).Set(stats.TotalHarvested),
		}
	}
	return UserStats{
		TotalDeposited: new(big.Int),
		TotalWithdrawn: new(big.Int),
		TotalHarvested: new(big.Int),
	}
}

// requireVault checks the sole access-control boundary: caller must equal
// the vault registered for owner. Holds l.mu.
func (l *Ledger) requireVault(caller, owner common.Address) (common.Address, error) {
	vault, ok := l.ownerToVault[owner]
	if !ok || caller != vault {
		return common.Address{}, fmt.Errorf("%w: owner %s, caller %s", ErrNotVault, owner.Hex(), caller.Hex())
	}
	return vault, nil
}

// requireActive fetches a building that must exist, be active, and belong
// to owner. Holds l.mu.
func (l *Ledger) requireActive(owner common.Address, id uint64) (*Building, error) {
	building, ok := l.buildings[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrBuildingNotFound, id)
	}
	if building.Owner != owner {
		return nil, fmt.Errorf("%w: id %d", ErrNotOwner, id)
	}
	if !building.Active {
		return nil, fmt.Errorf("%w: id %d", ErrBuildingInactive, id)
	}
	return building, nil
}

func (l *Ledger) statsFor(owner common.Address, now time.Time) *UserStats {
	stats, ok := l.stats[owner]
	if !ok {
		stats = &UserStats{
			CityCreatedAt:  now,
			TotalDeposited: new(big.Int),
			TotalWithdrawn: new(big.Int),
			TotalHarvested: new(big.Int),
		}
		l.stats[owner] = stats
	}
	return stats
}

func copyBuilding(b *Building) Building {
	copied := *b
	copied.Amount = new(big.Int).Set(b.Amount)
	copied.Metadata = append([]byte(nil), b.Metadata...)
	return copied
}
