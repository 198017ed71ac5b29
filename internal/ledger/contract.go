/**
 * @description
 * Chain-facing binding for the Building Ledger. Adapters emit ABI-encoded
 * record calls as the trailing call of every batch; the vault executes them
 * against this dispatcher. Also implements snapshot/rollback so a failing
 * batch leaves no trace in the ledger.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/accounts/abi
 * - github.com/ethereum/go-ethereum/common
 */

package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

var (
	ErrUnknownMethod = errors.New("unknown ledger method selector")
	ErrBadCalldata   = errors.New("malformed ledger calldata")
)

const ledgerABIJSON = `[
	{"name":"recordPlacement","type":"function","inputs":[{"name":"owner","type":"address"},{"name":"buildingType","type":"string"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"x","type":"uint32"},{"name":"y","type":"uint32"},{"name":"metadata","type":"bytes"}],"outputs":[{"name":"id","type":"uint64"}]},
	{"name":"recordHarvest","type":"function","inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint64"},{"name":"harvested","type":"uint256"}],"outputs":[]},
	{"name":"recordDemolition","type":"function","inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint64"},{"name":"returned","type":"uint256"}],"outputs":[]}
]`

var (
	ledgerABIOnce sync.Once
	ledgerABI     abi.ABI
	ledgerABIErr  error
)

func parsedABI() (abi.ABI, error) {
	ledgerABIOnce.Do(func() {
		ledgerABI, ledgerABIErr = abi.JSON(strings.NewReader(ledgerABIJSON))
	})
	return ledgerABI, ledgerABIErr
}

// Call dispatches an ABI-encoded record invocation from a vault batch.
func (l *Ledger) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	parsed, err := parsedABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger ABI: %w", err)
	}
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, ErrUnknownMethod
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: ledger.%s", ErrBadCalldata, method.Name)
	}

	switch method.Name {
	case "recordPlacement":
		owner := args[0].(common.Address)
		buildingType := args[1].(string)
		asset := args[2].(common.Address)
		amount := args[3].(*big.Int)
		x := args[4].(uint32)
		y := args[5].(uint32)
		metadata := args[6].([]byte)
		id, err := l.RecordPlacement(caller, owner, buildingType, asset, amount, x, y, metadata)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(id)

	case "recordHarvest":
		owner := args[0].(common.Address)
		id := args[1].(uint64)
		harvested := args[2].(*big.Int)
		return nil, l.RecordHarvest(caller, owner, id, harvested)

	case "recordDemolition":
		owner := args[0].(common.Address)
		id := args[1].(uint64)
		returned := args[2].(*big.Int)
		return nil, l.RecordDemolition(caller, owner, id, returned)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
}

// PackRecordPlacement ABI-encodes the trailing placement record call.
func PackRecordPlacement(owner common.Address, buildingType string, asset common.Address, amount *big.Int, x, y uint32, metadata []byte) ([]byte, error) {
	parsed, err := parsedABI()
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = []byte{}
	}
	return parsed.Pack("recordPlacement", owner, buildingType, asset, amount, x, y, metadata)
}

// PackRecordHarvest ABI-encodes the trailing harvest record call.
func PackRecordHarvest(owner common.Address, id uint64, harvested *big.Int) ([]byte, error) {
	parsed, err := parsedABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("recordHarvest", owner, id, harvested)
}

// PackRecordDemolition ABI-encodes the trailing demolition record call.
func PackRecordDemolition(owner common.Address, id uint64, returned *big.Int) ([]byte, error) {
	parsed, err := parsedABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("recordDemolition", owner, id, returned)
}

// UnpackPlacementID extracts the building id from a recordPlacement output.
func UnpackPlacementID(output []byte) (uint64, error) {
	parsed, err := parsedABI()
	if err != nil {
		return 0, err
	}
	values, err := parsed.Methods["recordPlacement"].Outputs.Unpack(output)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack placement result: %w", err)
	}
	return values[0].(uint64), nil
}

// UnpackRecordedAmount extracts the amount argument from a packed
// recordHarvest or recordDemolition call, so callers can report exactly
// what the ledger will record for the batch.
func UnpackRecordedAmount(input []byte) (*big.Int, error) {
	parsed, err := parsedABI()
	if err != nil {
		return nil, err
	}
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := parsed.MethodById(input[:4])
	if err != nil {
		return nil, ErrUnknownMethod
	}
	if method.Name != "recordHarvest" && method.Name != "recordDemolition" {
		return nil, fmt.Errorf("%w: %s carries no amount", ErrUnknownMethod, method.Name)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: ledger.%s", ErrBadCalldata, method.Name)
	}
	return args[2].(*big.Int), nil
}

type ledgerSnapshot struct {
	nextID       uint64
	buildings    map[uint64]Building
	grid         map[common.Address]map[Coord]uint64
	byOwner      map[common.Address][]uint64
	stats        map[common.Address]UserStats
	ownerToVault map[common.Address]common.Address
	vaultToOwner map[common.Address]common.Address
}

// Snapshot captures full ledger state for batch rollback.
func (l *Ledger) Snapshot() interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &ledgerSnapshot{
		nextID:       l.nextID,
		buildings:    make(map[uint64]Building, len(l.buildings)),
		grid:         make(map[common.Address]map[Coord]uint64, len(l.grid)),
		byOwner:      make(map[common.Address][]uint64, len(l.byOwner)),
		stats:        make(map[common.Address]UserStats, len(l.stats)),
		ownerToVault: make(map[common.Address]common.Address, len(l.ownerToVault)),
		vaultToOwner: make(map[common.Address]common.Address, len(l.vaultToOwner)),
	}
	for id, building := range l.buildings {
		snap.buildings[id] = copyBuilding(building)
	}
	for owner, ownerGrid := range l.grid {
		copied := make(map[Coord]uint64, len(ownerGrid))
		for cell, id := range ownerGrid {
			copied[cell] = id
		}
		snap.grid[owner] = copied
	}
	for owner, ids := range l.byOwner {
		snap.byOwner[owner] = append([]uint64(nil), ids...)
	}
	for owner, stats := range l.stats {
		snap.stats[owner] = UserStats{
			BuildingCount:  stats.BuildingCount,
			CityCreatedAt:  stats.CityCreatedAt,
			TotalDeposited: new(big.Int).Set(stats.TotalDeposited),
			TotalWithdrawn: new(big.Int).Set(stats.TotalWithdrawn),
			TotalHarvested: new(big.Int).Set(stats.TotalHarvested),
		}
	}
	for owner, vault := range l.ownerToVault {
		snap.ownerToVault[owner] = vault
	}
	for vault, owner := range l.vaultToOwner {
		snap.vaultToOwner[vault] = owner
	}
	return snap
}

// Restore reinstates a snapshot taken by Snapshot.
func (l *Ledger) Restore(snapshot interface{}) {
	snap := snapshot.(*ledgerSnapshot)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID = snap.nextID
	l.buildings = make(map[uint64]*Building, len(snap.buildings))
	for id, building := range snap.buildings {
		restored := building
		restored.Amount = new(big.Int).Set(building.Amount)
		restored.Metadata = append([]byte(nil), building.Metadata...)
		l.buildings[id] = &restored
	}
	l.grid = make(map[common.Address]map[Coord]uint64, len(snap.grid))
	for owner, ownerGrid := range snap.grid {
		copied := make(map[Coord]uint64, len(ownerGrid))
		for cell, id := range ownerGrid {
			copied[cell] = id
		}
		l.grid[owner] = copied
	}
	l.byOwner = make(map[common.Address][]uint64, len(snap.byOwner))
	for owner, ids := range snap.byOwner {
		l.byOwner[owner] = append([]uint64(nil), ids...)
	}
	l.stats = make(map[common.Address]*UserStats, len(snap.stats))
	for owner, stats := range snap.stats {
		l.stats[owner] = &UserStats{
			BuildingCount:  stats.BuildingCount,
			CityCreatedAt:  stats.CityCreatedAt,
			TotalDeposited: new(big.Int).Set(stats.TotalDeposited),
			TotalWithdrawn: new(big.Int).Set(stats.TotalWithdrawn),
			TotalHarvested: new(big.Int).Set(stats.TotalHarvested),
		}
	}
	l.ownerToVault = make(map[common.Address]common.Address, len(snap.ownerToVault))
	for owner, vault := range snap.ownerToVault {
		l.ownerToVault[owner] = vault
	}
	l.vaultToOwner = make(map[common.Address]common.Address, len(snap.vaultToOwner))
	for vault, owner := range snap.vaultToOwner {
		l.vaultToOwner[vault] = owner
	}
}
