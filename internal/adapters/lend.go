/**
 * @description
 * Adapter for "lend" buildings backed by the lending pool. Placement
 * approves and supplies principal; harvest claims accrued interest;
 * demolition withdraws the full principal. Every batch ends with the
 * ledger record call.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 */

package adapters

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
	"github.com/cityforge-project/backend/internal/protocols"
)

// LendAdapter prepares batches against the lending pool.
type LendAdapter struct {
	pool    *protocols.LendingPool
	records *ledger.Ledger
}

// NewLendAdapter creates the adapter for the "lend" building type.
func NewLendAdapter(pool *protocols.LendingPool, records *ledger.Ledger) *LendAdapter {
	return &LendAdapter{pool: pool, records: records}
}

// PreparePlace emits approve -> supply -> recordPlacement.
func (a *LendAdapter) PreparePlace(user, vault common.Address, params []byte) (chain.Batch, error) {
	p, err := DecodePlaceParams(params)
	if err != nil {
		return nil, err
	}
	if p.Asset == (common.Address{}) {
		return nil, fmt.Errorf("%w: lend placement", ErrAssetRequired)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: lend placement", ErrZeroAmount)
	}

	approve, err := protocols.PackTokenApprove(a.pool.Address(), p.Amount)
	if err != nil {
		return nil, err
	}
	supply, err := a.pool.PackSupply(p.Asset, p.Amount)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordPlacement(user, TypeLend, p.Asset, p.Amount, p.X, p.Y, p.Metadata)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: p.Asset, Data: approve},
		{Target: a.pool.Address(), Data: supply},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

// PrepareHarvest emits claimInterest -> recordHarvest with the interest
// claimable at preparation time.
func (a *LendAdapter) PrepareHarvest(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := a.lookup(user, buildingID)
	if err != nil {
		return nil, err
	}

	claimable := a.pool.InterestOf(building.Asset, vault)
	claim, err := a.pool.PackClaimInterest(building.Asset, vault)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordHarvest(user, buildingID, claimable)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: a.pool.Address(), Data: claim},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

// PrepareDemolish emits withdraw(full principal) -> recordDemolition.
func (a *LendAdapter) PrepareDemolish(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := a.lookup(user, buildingID)
	if err != nil {
		return nil, err
	}

	withdraw, err := a.pool.PackWithdraw(building.Asset, building.Amount, vault)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordDemolition(user, buildingID, building.Amount)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: a.pool.Address(), Data: withdraw},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

func (a *LendAdapter) lookup(user common.Address, buildingID uint64) (ledger.Building, error) {
	return lookupBuilding(a.records, user, buildingID, TypeLend)
}
