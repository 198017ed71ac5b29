/**
 * @description
 * Adapter for "liquidity" buildings backed by the swap router. Placement
 * approves and provides liquidity; harvest claims accrued trading fees;
 * demolition removes the full position.
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

// LiquidityAdapter prepares batches against the swap router.
type LiquidityAdapter struct {
	router  *protocols.SwapRouter
	records *ledger.Ledger
}

// NewLiquidityAdapter creates the adapter for the "liquidity" building type.
func NewLiquidityAdapter(router *protocols.SwapRouter, records *ledger.Ledger) *LiquidityAdapter {
	return &LiquidityAdapter{router: router, records: records}
}

// PreparePlace emits approve -> addLiquidity -> recordPlacement.
func (a *LiquidityAdapter) PreparePlace(user, vault common.Address, params []byte) (chain.Batch, error) {
	p, err := DecodePlaceParams(params)
	if err != nil {
		return nil, err
	}
	if p.Asset == (common.Address{}) {
		return nil, fmt.Errorf("%w: liquidity placement", ErrAssetRequired)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: liquidity placement", ErrZeroAmount)
	}

	approve, err := protocols.PackTokenApprove(a.router.Address(), p.Amount)
	if err != nil {
		return nil, err
	}
	add, err := a.router.PackAddLiquidity(p.Asset, p.Amount)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordPlacement(user, TypeLiquidity, p.Asset, p.Amount, p.X, p.Y, p.Metadata)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: p.Asset, Data: approve},
		{Target: a.router.Address(), Data: add},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

// PrepareHarvest emits claimFees -> recordHarvest with the fees claimable
// at preparation time.
func (a *LiquidityAdapter) PrepareHarvest(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := lookupBuilding(a.records, user, buildingID, TypeLiquidity)
	if err != nil {
		return nil, err
	}

	claimable := a.router.FeesOf(building.Asset, vault)
	claim, err := a.router.PackClaimFees(building.Asset, vault)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordHarvest(user, buildingID, claimable)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: a.router.Address(), Data: claim},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}

// PrepareDemolish emits removeLiquidity(full position) -> recordDemolition.
func (a *LiquidityAdapter) PrepareDemolish(user, vault common.Address, buildingID uint64, params []byte) (chain.Batch, error) {
	building, err := lookupBuilding(a.records, user, buildingID, TypeLiquidity)
	if err != nil {
		return nil, err
	}

	remove, err := a.router.PackRemoveLiquidity(building.Asset, building.Amount, vault)
	if err != nil {
		return nil, err
	}
	record, err := ledger.PackRecordDemolition(user, buildingID, building.Amount)
	if err != nil {
		return nil, err
	}

	return chain.Batch{
		{Target: a.router.Address(), Data: remove},
		{Target: ledger.ContractAddress, Data: record},
	}, nil
}
