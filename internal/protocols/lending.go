/**
 * @description
 * Lending pool simulator. Holds supplied principal per asset and account,
 * pays out interest credited by the pool operator. Backs the "lend"
 * building type.
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

// LendingPoolAddress is the well-known address of the lending pool.
var LendingPoolAddress = common.HexToAddress("0x00000000000000000000000000000000000dEF01")

var ErrInsufficientDeposit = errors.New("withdraw exceeds supplied principal")

const lendingABIJSON = `[
	{"name":"supply","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"claimInterest","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"to","type":"address"}],"outputs":[{"name":"claimed","type":"uint256"}]}
]`

// LendingPool implements chain.Contract and chain.Stateful.
type LendingPool struct {
	address   common.Address
	parsedABI abi.ABI
	principal book
	interest  book
}

// NewLendingPool creates the pool at its well-known address.
func NewLendingPool() (*LendingPool, error) {
	parsed, err := abi.JSON(strings.NewReader(lendingABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lending pool ABI: %w", err)
	}
	return &LendingPool{
		address:   LendingPoolAddress,
		parsedABI: parsed,
		principal: newBook(),
		interest:  newBook(),
	}, nil
}

// Address returns the pool's contract address.
func (p *LendingPool) Address() common.Address {
	return p.address
}

// Call dispatches an ABI-encoded invocation.
func (p *LendingPool) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := p.parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: lending pool", ErrUnknownMethod)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: lendingpool.%s", ErrBadCalldata, method.Name)
	}

	switch method.Name {
	case "supply":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if err := pullToken(env, p.address, asset, caller, amount); err != nil {
			return nil, err
		}
		p.principal.add(asset, caller, amount)
		return nil, nil

	case "withdraw":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		to := args[2].(common.Address)
		if !p.principal.sub(asset, caller, amount) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientDeposit, caller.Hex())
		}
		if err := pushToken(env, p.address, asset, to, amount); err != nil {
			return nil, err
		}
		return nil, nil

	case "claimInterest":
		asset := args[0].(common.Address)
		to := args[1].(common.Address)
		claimed := p.interest.drain(asset, caller)
		if claimed.Sign() > 0 {
			if err := pushToken(env, p.address, asset, to, claimed); err != nil {
				return nil, err
			}
		}
		return method.Outputs.Pack(claimed)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
}

// CreditInterest accrues claimable interest for an account. Operator hook;
// the pool must hold the matching token balance before the claim executes.
func (p *LendingPool) CreditInterest(asset, account common.Address, amount *big.Int) {
	p.interest.add(asset, account, amount)
}

// PrincipalOf returns the supplied principal for an account.
func (p *LendingPool) PrincipalOf(asset, account common.Address) *big.Int {
	return p.principal.get(asset, account)
}

// InterestOf returns the claimable interest for an account.
func (p *LendingPool) InterestOf(asset, account common.Address) *big.Int {
	return p.interest.get(asset, account)
}

// PackSupply ABI-encodes a supply call.
func (p *LendingPool) PackSupply(asset common.Address, amount *big.Int) ([]byte, error) {
	return p.parsedABI.Pack("supply", asset, amount)
}

// PackWithdraw ABI-encodes a withdraw call.
func (p *LendingPool) PackWithdraw(asset common.Address, amount *big.Int, to common.Address) ([]byte, error) {
	return p.parsedABI.Pack("withdraw", asset, amount, to)
}

// PackClaimInterest ABI-encodes a claimInterest call.
func (p *LendingPool) PackClaimInterest(asset, to common.Address) ([]byte, error) {
	return p.parsedABI.Pack("claimInterest", asset, to)
}

type lendingSnapshot struct {
	principal book
	interest  book
}

// Snapshot captures pool state for rollback.
func (p *LendingPool) Snapshot() interface{} {
	return &lendingSnapshot{
		principal: p.principal.clone(),
		interest:  p.interest.clone(),
	}
}

// Restore reinstates a snapshot taken by Snapshot.
func (p *LendingPool) Restore(snapshot interface{}) {
	snap := snapshot.(*lendingSnapshot)
	p.principal = snap.principal.clone()
	p.interest = snap.interest.clone()
}
