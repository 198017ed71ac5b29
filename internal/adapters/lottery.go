/**
 * @description
 * Adapter for "lottery" buildings backed by the prize pool. Placement buys
 * entries (principal is kept, no-loss); harvest claims awarded winnings;
 * demolition withdraws all entries.
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

// LotteryAdapter prepares batches against the prize pool.
type LotteryAdapter struct {
	pool    *protocols.PrizePool
	records *ledger.Ledger
}

// NewLotteryAdapter creates the adapter for the "lottery" building type.
func NewLotteryAdapter(pool *protocols.PrizePool, records *ledger.Ledger) *LotteryAdapter {
	return &LotteryAdapter{pool: pool, records: records}
}

// PreparePlace emits approve -> buyEntries -> recordPlacement.
func (a *LotteryAdapter) PreparePlace(user, vault common.Address, params []byte) (chain.Batch, error) {
	p, err := DecodePlaceParams(params)
	if err != nil {
		return nil, err
	}
	if p.Asset == (common.Address{}) {
		return nil, fmt.Errorf("%w: lottery placement", ErrAssetRequired)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: lottery placement", ErrZeroAmount)
	}

	approve, err := protocols.PackTokenApprove(a.pool.Address(), p.Amount)
	if err != nil {
		return nil, err
	}
	buy, err := a.pool.PackBuyEntries(p.Asset, p.Amount)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordPlacement(user, TypeLottery, p.Asset, p.Amount, p.X, p.Y, p.Metadata)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: p.Asset, Data: approve},
		{Target: a.pool.Address(), Data: buy},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

// PrepareHarvest emits claimWinnings -> recordHarvest with the winnings
// claimable at preparation time.
func (a *LotteryAdapter) PrepareHarvest(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := lookupBuilding(a.records, user, buildingID, TypeLottery)
	if err != nil {
		return nil, err
	}

	claimable := a.pool.WinningsOf(building.Asset, vault)
	claim, err := a.pool.PackClaimWinnings(building.Asset, vault)
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

// PrepareDemolish emits withdrawEntries(full principal) -> recordDemolition.
func (a *LotteryAdapter) PrepareDemolish(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := lookupBuilding(a.records, user, buildingID, TypeLottery)
	if err != nil {
		return nil, err
	}

	withdraw, err := a.pool.PackWithdrawEntries(building.Asset, building.Amount, vault)
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
