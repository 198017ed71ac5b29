/**
 * @description
 * Adapter for the "townhall" origin building. It has no backing asset:
 * placement and demolition are record-only single-call batches, and a
 * harvest records zero yield. The building still consumes a grid cell and
 * counts toward the owner's building count.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 */

package adapters

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
)

// TownHallAdapter prepares record-only batches.
type TownHallAdapter struct {
	records *ledger.Ledger
}

// NewTownHallAdapter creates the adapter for the "townhall" building type.
func NewTownHallAdapter(records *ledger.Ledger) *TownHallAdapter {
	return &TownHallAdapter{records: records}
}

// PreparePlace emits a single recordPlacement with no asset and no amount.
func (a *TownHallAdapter) PreparePlace(user, vault common.Address, params []byte) (chain.Batch, error) {
	p, err := DecodePlaceParams(params)
	if err != nil {
		return nil, err
	}
	if p.Amount != nil && p.Amount.Sign() > 0 {
		return nil, fmt.Errorf("%w: townhall carries no backing asset", ErrBadParams)
	}

	record, err := ledger.PackRecordPlacement(user, TypeTownHall, common.Address{}, new(big.Int), p.X, p.Y, p.Metadata)
	if err != nil {
		return nil, err
	}
	return chain.Batch{{Target: ledger.ContractAddress, Data: record}}, nil
}

// PrepareHarvest emits a single zero-amount recordHarvest.
func (a *TownHallAdapter) PrepareHarvest(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	if _, err := lookupBuilding(a.records, user, buildingID, TypeTownHall); err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordHarvest(user, buildingID, new(big.Int))
	if err != nil {
		return nil, err
	}
	return chain.Batch{{Target: ledger.ContractAddress, Data: record}}, nil
}

// PrepareDemolish emits a single recordDemolition returning nothing.
func (a *TownHallAdapter) PrepareDemolish(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	if _, err := lookupBuilding(a.records, user, buildingID, TypeTownHall); err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordDemolition(user, buildingID, new(big.Int))
	if err != nil {
		return nil, err
	}
	return chain.Batch{{Target: ledger.ContractAddress, Data: record}}, nil
}
