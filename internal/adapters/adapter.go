/**
 * @description
 * Adapter interface and registry for the CityForge core. An adapter
 * translates one building type's domain parameters into the ordered call
 * batch a vault must execute; the registry is the authoritative
 * buildingType -> adapter mapping.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/accounts/abi
 * - github.com/ethereum/go-ethereum/common
 *
 * @notes
 * - prepare* methods are pure: they may read external protocol and ledger
 *   state but never mutate anything. Only the vault's execution of the
 *   returned batch has side effects.
 * - Every batch ends with exactly one call into the building ledger, so
 *   atomic batch execution guarantees funds never move without a record.
 */

package adapters

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
)

var (
	ErrUnknownBuildingType = errors.New("unknown building type")
	ErrBadParams           = errors.New("malformed adapter parameters")
	ErrTypeMismatch        = errors.New("building type does not match adapter")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrAssetRequired       = errors.New("asset address required")
)

// Building type tags.
const (
	TypeLend      = "lend"
	TypeLiquidity = "liquidity"
	TypeLottery   = "lottery"
	TypeTownHall  = "townhall"
)

// Adapter produces the ordered call batches for one building type.
type Adapter interface {
	PreparePlace(user, vault common.Address, params []byte) (chain.Batch, error)
	PrepareHarvest(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error)
	PrepareDemolish(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error)
}

// Registry maps building types to adapters. Registration is administrative
// and last-write-wins.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a building type, replacing any prior one.
func (r *Registry) Register(buildingType string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[buildingType] = adapter
}

// Get returns the adapter for a building type.
func (r *Registry) Get(buildingType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[buildingType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuildingType, buildingType)
	}
	return adapter, nil
}

// Types returns the registered building types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.adapters))
	for buildingType := range r.adapters {
		types = append(types, buildingType)
	}
	return types
}

// PlaceParams are the type-specific placement parameters shared by the
// yield-bearing adapters, ABI-encoded at the adapter boundary.
type PlaceParams struct {
	Asset    common.Address
	Amount   *big.Int
	X        uint32
	Y        uint32
	Metadata []byte
}

var placeParamsArgs = mustArguments(
	mustType("address"),
	mustType("uint256"),
	mustType("uint32"),
	mustType("uint32"),
	mustType("bytes"),
)

// EncodePlaceParams ABI-encodes placement parameters.
func EncodePlaceParams(p PlaceParams) ([]byte, error) {
	amount := p.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = []byte{}
	}
	return placeParamsArgs.Pack(p.Asset, amount, p.X, p.Y, metadata)
}

// DecodePlaceParams reverses EncodePlaceParams.
func DecodePlaceParams(data []byte) (PlaceParams, error) {
	values, err := placeParamsArgs.Unpack(data)
	if err != nil {
		return PlaceParams{}, fmt.Errorf("%w: %v", ErrBadParams, err)
	}
	return PlaceParams{
		Asset:    values[0].(common.Address),
		Amount:   values[1].(*big.Int),
		X:        values[2].(uint32),
		Y:        values[3].(uint32),
		Metadata: values[4].([]byte),
	}, nil
}

// lookupBuilding fetches a building that must exist, belong to user, be
// active, and match the adapter's type. Read-only; used by prepare* calls.
func lookupBuilding(records *ledger.Ledger, user common.Address, buildingID uint64, wantType string) (ledger.Building, error) {
	building := records.GetBuilding(buildingID)
	if building.ID == 0 {
		return ledger.Building{}, fmt.Errorf("%w: id %d", ledger.ErrBuildingNotFound, buildingID)
	}
	if building.Owner != user {
		return ledger.Building{}, fmt.Errorf("%w: id %d", ledger.ErrNotOwner, buildingID)
	}
	if !building.Active {
		return ledger.Building{}, fmt.Errorf("%w: id %d", ledger.ErrBuildingInactive, buildingID)
	}
	if building.BuildingType != wantType {
		return ledger.Building{}, fmt.Errorf("%w: id %d is %q, want %q", ErrTypeMismatch, buildingID, building.BuildingType, wantType)
	}
	return building, nil
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type %q: %v", name, err))
	}
	return t
}

func mustArguments(types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		args = append(args, abi.Argument{Type: t})
	}
	return args
}
