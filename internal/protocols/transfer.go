/**
 * @description
 * Token movement helpers shared by the protocol simulators. Pools pull
 * deposits via transferFrom (requires a prior approve from the vault) and
 * push withdrawals/claims via transfer, always as nested calls through the
 * execution environment so rollback covers them.
 */

package protocols

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

// tokenCallABI is the parsed token ABI used to encode nested token calls.
var tokenCallABI = mustParseABI(tokenABIJSON)

func mustParseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in ABI: %v", err))
	}
	return parsed
}

// PackTokenApprove ABI-encodes an approve call against any token address.
// Adapters use this to emit the pre-condition call of a placement batch.
func PackTokenApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return tokenCallABI.Pack("approve", spender, amount)
}

// pullToken moves amount of asset from `from` into the pool via transferFrom.
func pullToken(env *chain.Env, pool, asset, from common.Address, amount *big.Int) error {
	data, err := tokenCallABI.Pack("transferFrom", from, pool, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transferFrom: %w", err)
	}
	if _, err := env.Invoke(pool, asset, nil, data); err != nil {
		return err
	}
	return nil
}

// pushToken moves amount of asset from the pool's own balance to `to`.
func pushToken(env *chain.Env, pool, asset, to common.Address, amount *big.Int) error {
	data, err := tokenCallABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("failed to pack transfer: %w", err)
	}
	if _, err := env.Invoke(pool, asset, nil, data); err != nil {
		return err
	}
	return nil
}
