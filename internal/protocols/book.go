/**
 * @description
 * Shared asset->account accounting used by the protocol simulators.
 * Each pool keeps one book per concern (principal, accrued yield, entries).
 */

package protocols

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// book tracks per-asset, per-account amounts.
type book map[common.Address]map[common.Address]*big.Int

func newBook() book {
	return make(book)
}

func (b book) get(asset, account common.Address) *big.Int {
	if row, ok := b[asset]; ok {
		if amount, ok := row[account]; ok {
			return new(big.Int).Set(amount)
		}
	}
	return new(big.Int)
}

func (b book) add(asset, account common.Address, amount *big.Int) {
	row, ok := b[asset]
	if !ok {
		row = make(map[common.Address]*big.Int)
		b[asset] = row
	}
	current, ok := row[account]
	if !ok {
		current = new(big.Int)
		row[account] = current
	}
	current.Add(current, amount)
}

// sub reduces the balance, returning false if it would go negative.
// A zero subtraction against an absent row is a no-op success.
func (b book) sub(asset, account common.Address, amount *big.Int) bool {
	row, ok := b[asset]
	if !ok {
		return amount.Sign() == 0
	}
	current, ok := row[account]
	if !ok {
		return amount.Sign() == 0
	}
	if current.Cmp(amount) < 0 {
		return false
	}
	current.Sub(current, amount)
	return true
}

// drain zeroes the balance and returns what was held.
func (b book) drain(asset, account common.Address) *big.Int {
	amount := b.get(asset, account)
	if row, ok := b[asset]; ok {
		delete(row, account)
	}
	return amount
}

func (b book) clone() book {
	copied := make(book, len(b))
	for asset, row := range b {
		copiedRow := make(map[common.Address]*big.Int, len(row))
		for account, amount := range row {
			copiedRow[account] = new(big.Int).Set(amount)
		}
		copied[asset] = copiedRow
	}
	return copied
}
