/**
 * @description
 * Swap/liquidity router simulator. Holds liquidity positions per asset and
 * account and pays out trading fees credited by the router operator. Backs
 * the "liquidity" building type.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/accounts/abi
 * - github.com/ethereum/go-ethereum/common
 */

package protocols

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

// SwapRouterAddress is the well-known address of the swap router.
var SwapRouterAddress = common.HexToAddress("0x00000000000000000000000000000000000dEF02")

var ErrInsufficientLiquidity = errors.New("remove exceeds provided liquidity")

const swapABIJSON = `[
	{"name":"addLiquidity","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"removeLiquidity","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"claimFees","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"to","type":"address"}],"outputs":[{"name":"claimed","type":"uint256"}]}
]`

// SwapRouter implements chain.Contract and chain.Stateful.
type SwapRouter struct {
	address   common.Address
	parsedABI abi.ABI
	liquidity book
	fees      book
}

// NewSwapRouter creates the router at its well-known address.
func NewSwapRouter() (*SwapRouter, error) {
	parsed, err := abi.JSON(strings.NewReader(swapABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse swap router ABI: %w", err)
	}
	return &SwapRouter{
		address:   SwapRouterAddress,
		parsedABI: parsed,
		liquidity: newBook(),
		fees:      newBook(),
	}, nil
}

// Address returns the router's contract address.
func (r *SwapRouter) Address() common.Address {
	return r.address
}

// Call dispatches an ABI-encoded invocation.
func (r *SwapRouter) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := r.parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: swap router", ErrUnknownMethod)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: swaprouter.%s", ErrBadCalldata, method.Name)
	}

	switch method.Name {
	case "addLiquidity":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if err := pullToken(env, r.address, asset, caller, amount); err != nil {
			return nil, err
		}
		r.liquidity.add(asset, caller, amount)
		return nil, nil

	case "removeLiquidity":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		to := args[2].(common.Address)
		if !r.liquidity.sub(asset, caller, amount) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientLiquidity, caller.Hex())
		}
		if err := pushToken(env, r.address, asset, to, amount); err != nil {
			return nil, err
		}
		return nil, nil

	case "claimFees":
		asset := args[0].(common.Address)
		to := args[1].(common.Address)
		claimed := r.fees.drain(asset, caller)
		if claimed.Sign() > 0 {
			if err := pushToken(env, r.address, asset, to, claimed); err != nil {
				return nil, err
			}
		}
		return method.Outputs.Pack(claimed)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
}

// CreditFees accrues claimable trading fees for an account.
func (r *SwapRouter) CreditFees(asset, account common.Address, amount *big.Int) {
	r.fees.add(asset, account, amount)
}

// LiquidityOf returns the provided liquidity for an account.
func (r *SwapRouter) LiquidityOf(asset, account common.Address) *big.Int {
	return r.liquidity.get(asset, account)
}

// FeesOf returns the claimable fees for an account.
func (r *SwapRouter) FeesOf(asset, account common.Address) *big.Int {
	return r.fees.get(asset, account)
}

// PackAddLiquidity ABI-encodes an addLiquidity call.
func (r *SwapRouter) PackAddLiquidity(asset common.Address, amount *big.Int) ([]byte, error) {
	return r.parsedABI.Pack("addLiquidity", asset, amount)
}

// PackRemoveLiquidity ABI-encodes a removeLiquidity call.
func (r *SwapRouter) PackRemoveLiquidity(asset common.Address, amount *big.Int, to common.Address) ([]byte, error) {
	return r.parsedABI.Pack("removeLiquidity", asset, amount, to)
}

// PackClaimFees ABI-encodes a claimFees call.
func (r *SwapRouter) PackClaimFees(asset, to common.Address) ([]byte, error) {
	return r.parsedABI.Pack("claimFees", asset, to)
}

type swapSnapshot struct {
	liquidity book
	fees      book
}

// Snapshot captures router state for rollback.
func (r *SwapRouter) Snapshot() interface{} {
	return &swapSnapshot{
		liquidity: r.liquidity.clone(),
		fees:      r.fees.clone(),
	}
}

// Restore reinstates a snapshot taken by Snapshot.
func (r *SwapRouter) Restore(snapshot interface{}) {
	snap := snapshot.(*swapSnapshot)
	r.liquidity = snap.liquidity.clone()
	r.fees = snap.fees.clone()
}
