/**
 * @description
 * ERC20-style token contract for the CityForge execution environment.
 * Backs buildings with a real transferable asset: vaults approve spenders,
 * protocol pools pull funds via transferFrom.
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

var (
	ErrUnknownMethod         = errors.New("unknown method selector")
	ErrBadCalldata           = errors.New("malformed calldata")
	ErrInsufficientFunds     = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
)

const tokenABIJSON = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"ok","type":"bool"}]},
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"ok","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"ok","type":"bool"}]},
	{"name":"balanceOf","type":"function","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]}
]`

// Token is an in-process fungible token with standard allowance semantics.
type Token struct {
	address    common.Address
	symbol     string
	parsedABI  abi.ABI
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewToken creates a token contract bound to the given address.
func NewToken(address common.Address, symbol string) (*Token, error) {
	parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	return &Token{
		address:    address,
		symbol:     symbol,
		parsedABI:  parsed,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}, nil
}

// Address returns the token's contract address.
func (t *Token) Address() common.Address {
	return t.address
}

// Symbol returns the token's display symbol.
func (t *Token) Symbol() string {
	return t.symbol
}

// Call dispatches an ABI-encoded invocation.
func (t *Token) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := t.parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, t.symbol)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrBadCalldata, t.symbol, method.Name)
	}

	switch method.Name {
	case "approve":
		spender := args[0].(common.Address)
		amount := args[1].(*big.Int)
		t.setAllowance(caller, spender, amount)
		return method.Outputs.Pack(true)

	case "transfer":
		to := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if err := t.move(caller, to, amount); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "transferFrom":
		from := args[0].(common.Address)
		to := args[1].(common.Address)
		amount := args[2].(*big.Int)
		if err := t.spendAllowance(from, caller, amount); err != nil {
			return nil, err
		}
		if err := t.move(from, to, amount); err != nil {
			return nil, err
		}
		return method.Outputs.Pack(true)

	case "balanceOf":
		owner := args[0].(common.Address)
		return method.Outputs.Pack(t.BalanceOf(owner))
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
}

// Mint credits new tokens to an address (funding/test setup).
func (t *Token) Mint(to common.Address, amount *big.Int) {
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
		t.balances[to] = bal
	}
	bal.Add(bal, amount)
}

// BalanceOf returns a copy of the token balance for an address.
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	if bal, ok := t.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Allowance returns a copy of the remaining allowance from owner to spender.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if row, ok := t.allowances[owner]; ok {
		if allowed, ok := row[spender]; ok {
			return new(big.Int).Set(allowed)
		}
	}
	return new(big.Int)
}

// PackApprove ABI-encodes an approve call.
func (t *Token) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return t.parsedABI.Pack("approve", spender, amount)
}

// PackTransfer ABI-encodes a transfer call.
func (t *Token) PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return t.parsedABI.Pack("transfer", to, amount)
}

// PackTransferFrom ABI-encodes a transferFrom call.
func (t *Token) PackTransferFrom(from, to common.Address, amount *big.Int) ([]byte, error) {
	return t.parsedABI.Pack("transferFrom", from, to, amount)
}

func (t *Token) setAllowance(owner, spender common.Address, amount *big.Int) {
	row, ok := t.allowances[owner]
	if !ok {
		row = make(map[common.Address]*big.Int)
		t.allowances[owner] = row
	}
	row[spender] = new(big.Int).Set(amount)
}

func (t *Token) spendAllowance(owner, spender common.Address, amount *big.Int) error {
	allowed := t.Allowance(owner, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, owner.Hex(), allowed, amount)
	}
	t.setAllowance(owner, spender, allowed.Sub(allowed, amount))
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	fromBal := t.BalanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBal, t.symbol, amount)
	}
	t.balances[from] = fromBal.Sub(fromBal, amount)
	toBal, ok := t.balances[to]
	if !ok {
		toBal = new(big.Int)
		t.balances[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

type tokenSnapshot struct {
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// Snapshot captures balances and allowances for rollback.
func (t *Token) Snapshot() interface{} {
	snap := &tokenSnapshot{
		balances:   make(map[common.Address]*big.Int, len(t.balances)),
		allowances: make(map[common.Address]map[common.Address]*big.Int, len(t.allowances)),
	}
	for addr, bal := range t.balances {
		snap.balances[addr] = new(big.Int).Set(bal)
	}
	for owner, row := range t.allowances {
		copied := make(map[common.Address]*big.Int, len(row))
		for spender, allowed := range row {
			copied[spender] = new(big.Int).Set(allowed)
		}
		snap.allowances[owner] = copied
	}
	return snap
}

// Restore reinstates a snapshot taken by Snapshot.
func (t *Token) Restore(snapshot interface{}) {
	snap := snapshot.(*tokenSnapshot)
	t.balances = make(map[common.Address]*big.Int, len(snap.balances))
	for addr, bal := range snap.balances {
		t.balances[addr] = new(big.Int).Set(bal)
	}
	t.allowances = make(map[common.Address]map[common.Address]*big.Int, len(snap.allowances))
	for owner, row := range snap.allowances {
		copied := make(map[common.Address]*big.Int, len(row))
		for spender, allowed := range row {
			copied[spender] = new(big.Int).Set(allowed)
		}
		t.allowances[owner] = copied
	}
}
