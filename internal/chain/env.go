/**
 * @description
 * Execution environment for the CityForge core.
 * Hosts in-process contracts (vaults, the building ledger, external protocol
 * simulators) behind stable addresses, owns the native balance table, and
 * serializes every mutation through a single transaction path so that each
 * batch either fully commits or fully rolls back.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 *
 * @notes
 * - The clock is injectable so tests can control delegate expiry and daily
 *   spend bucketing.
 * - Snapshot/rollback covers the balance table plus every registered contract
 *   that implements Stateful.
 */

package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownTarget       = errors.New("no contract registered at target address")
	ErrInsufficientBalance = errors.New("insufficient native balance")
)

// Contract is the capability every in-process contract exposes to the
// environment. Input payloads are ABI-encoded; contracts dispatch on the
// 4-byte method selector.
type Contract interface {
	Call(env *Env, caller common.Address, value *big.Int, input []byte) ([]byte, error)
}

// Stateful contracts participate in transaction snapshot/rollback.
type Stateful interface {
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// Env is the single-authority deterministic state machine. All mutating
// entry points run inside Transact, which holds the environment lock.
type Env struct {
	mu        sync.Mutex
	contracts map[common.Address]Contract
	balances  map[common.Address]*big.Int

	// Now is the injectable clock. Nil means time.Now.
	Now func() time.Time
}

// NewEnv creates an empty execution environment.
func NewEnv() *Env {
	return &Env{
		contracts: make(map[common.Address]Contract),
		balances:  make(map[common.Address]*big.Int),
	}
}

// Timestamp returns the current time from the injected clock.
func (e *Env) Timestamp() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Register binds a contract to an address. Last write wins.
func (e *Env) Register(addr common.Address, c Contract) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contracts[addr] = c
}

// Credit adds native balance to an address (funding/test setup).
func (e *Env) Credit(addr common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bal, ok := e.balances[addr]
	if !ok {
		bal = new(big.Int)
		e.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

// BalanceOf returns a copy of the native balance for an address.
func (e *Env) BalanceOf(addr common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bal, ok := e.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Transact runs fn under the environment lock with snapshot semantics:
// if fn returns an error or panics, every contract state and balance
// touched inside the transaction is restored to its pre-transaction value.
// A panic is restored-then-repropagated so a misbehaving contract cannot
// commit partial state.
func (e *Env) Transact(fn func(tx *Env) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snapshotAll()
	defer func() {
		if r := recover(); r != nil {
			e.restoreAll(snap)
			panic(r)
		}
	}()
	if err := fn(e); err != nil {
		e.restoreAll(snap)
		return err
	}
	return nil
}

// Invoke dispatches a call to the contract at target. Must only be called
// from inside a Transact body (by a vault, or by a contract making a nested
// call such as a pool pulling tokens).
func (e *Env) Invoke(caller, target common.Address, value *big.Int, input []byte) ([]byte, error) {
	contract, ok := e.contracts[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target.Hex())
	}
	if value != nil && value.Sign() > 0 {
		if err := e.moveValue(caller, target, value); err != nil {
			return nil, err
		}
	}
	return contract.Call(e, caller, value, input)
}

func (e *Env) moveValue(from, to common.Address, amount *big.Int) error {
	fromBal, ok := e.balances[from]
	if !ok || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s", ErrInsufficientBalance, from.Hex(), amount.String())
	}
	fromBal.Sub(fromBal, amount)
	toBal, ok := e.balances[to]
	if !ok {
		toBal = new(big.Int)
		e.balances[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

type envSnapshot struct {
	balances map[common.Address]*big.Int
	states   map[common.Address]interface{}
}

func (e *Env) snapshotAll() *envSnapshot {
	snap := &envSnapshot{
		balances: make(map[common.Address]*big.Int, len(e.balances)),
		states:   make(map[common.Address]interface{}),
	}
	for addr, bal := range e.balances {
		snap.balances[addr] = new(big.Int).Set(bal)
	}
	for addr, contract := range e.contracts {
		if stateful, ok := contract.(Stateful); ok {
			snap.states[addr] = stateful.Snapshot()
		}
	}
	return snap
}

func (e *Env) restoreAll(snap *envSnapshot) {
	e.balances = make(map[common.Address]*big.Int, len(snap.balances))
	for addr, bal := range snap.balances {
		e.balances[addr] = new(big.Int).Set(bal)
	}
	for addr, contract := range e.contracts {
		if stateful, ok := contract.(Stateful); ok {
			if state, found := snap.states[addr]; found {
				stateful.Restore(state)
			}
		}
	}
}
