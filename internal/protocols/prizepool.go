/**
 * @description
 * Prize pool simulator (lottery-style, no-loss). Entries keep their principal
 * and may claim winnings awarded by the pool operator. Backs the "lottery"
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

// PrizePoolAddress is the well-known address of the prize pool.
var PrizePoolAddress = common.HexToAddress("0x00000000000000000000000000000000000dEF03")

var ErrInsufficientEntries = errors.New("withdraw exceeds purchased entries")

const prizeABIJSON = `[
	{"name":"buyEntries","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdrawEntries","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"claimWinnings","type":"function","inputs":[{"name":"asset","type":"address"},{"name":"to","type":"address"}],"outputs":[{"name":"claimed","type":"uint256"}]}
]`

// PrizePool implements chain.Contract and chain.Stateful.
type PrizePool struct {
	address   common.Address
	parsedABI abi.ABI
	entries   book
	winnings  book
}

// NewPrizePool creates the pool at its well-known address.
func NewPrizePool() (*PrizePool, error) {
	parsed, err := abi.JSON(strings.NewReader(prizeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prize pool ABI: %w", err)
	}
	return &PrizePool{
		address:   PrizePoolAddress,
		parsedABI: parsed,
		entries:   newBook(),
		winnings:  newBook(),
	}, nil
}

// Address returns the pool's contract address.
func (p *PrizePool) Address() common.Address {
	return p.address
}

// Call dispatches an ABI-encoded invocation.
func (p *PrizePool) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, ErrBadCalldata
	}
	method, err := p.parsedABI.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: prize pool", ErrUnknownMethod)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: prizepool.%s", ErrBadCalldata, method.Name)
	}

	switch method.Name {
	case "buyEntries":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if err := pullToken(env, p.address, asset, caller, amount); err != nil {
			return nil, err
		}
		p.entries.add(asset, caller, amount)
		return nil, nil

	case "withdrawEntries":
		asset := args[0].(common.Address)
		amount := args[1].(*big.Int)
		to := args[2].(common.Address)
		if !p.entries.sub(asset, caller, amount) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientEntries, caller.Hex())
		}
		if err := pushToken(env, p.address, asset, to, amount); err != nil {
			return nil, err
		}
		return nil, nil

	case "claimWinnings":
		asset := args[0].(common.Address)
		to := args[1].(common.Address)
		claimed := p.winnings.drain(asset, caller)
		if claimed.Sign() > 0 {
			if err := pushToken(env, p.address, asset, to, claimed); err != nil {
				return nil, err
			}
		}
		return method.Outputs.Pack(claimed)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method.Name)
}

// AwardPrize credits claimable winnings to an account.
func (p *PrizePool) AwardPrize(asset, account common.Address, amount *big.Int) {
	p.winnings.add(asset, account, amount)
}

// EntriesOf returns the purchased entries for an account.
func (p *PrizePool) EntriesOf(asset, account common.Address) *big.Int {
	return p.entries.get(asset, account)
}

// WinningsOf returns the claimable winnings for an account.
func (p *PrizePool) WinningsOf(asset, account common.Address) *big.Int {
	return p.winnings.get(asset, account)
}

// PackBuyEntries ABI-encodes a buyEntries call.
func (p *PrizePool) PackBuyEntries(asset common.Address, amount *big.Int) ([]byte, error) {
	return p.parsedABI.Pack("buyEntries", asset, amount)
}

// PackWithdrawEntries ABI-encodes a withdrawEntries call.
func (p *PrizePool) PackWithdrawEntries(asset common.Address, amount *big.Int, to common.Address) ([]byte, error) {
	return p.parsedABI.Pack("withdrawEntries", asset, amount, to)
}

// PackClaimWinnings ABI-encodes a claimWinnings call.
func (p *PrizePool) PackClaimWinnings(asset, to common.Address) ([]byte, error) {
	return p.parsedABI.Pack("claimWinnings", asset, to)
}

type prizeSnapshot struct {
	entries  book
	winnings book
}

// Snapshot captures pool state for rollback.
func (p *PrizePool) Snapshot() interface{} {
	return &prizeSnapshot{
		entries:  p.entries.clone(),
		winnings: p.winnings.clone(),
	}
}

// Restore reinstates a snapshot taken by Snapshot.
func (p *PrizePool) Restore(snapshot interface{}) {
	snap := snapshot.(*prizeSnapshot)
	p.entries = snap.entries.clone()
	p.winnings = snap.winnings.clone()
}
