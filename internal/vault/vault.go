/**
 * @description
 * Vault: the delegated-execution account at the center of the CityForge core.
 * A vault is bound to exactly one owner, exclusively custodies that owner's
 * funds inside the execution environment, and executes single calls or
 * ordered batches all-or-nothing on behalf of the owner or a time-bounded,
 * spend-limited delegate key.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 *
 * @notes
 * - Delegate daily spend uses monotonic unix-day bucketing, not wall-clock
 *   rollover; the counter resets on the first authorized call of a new day.
 * - A failed batch rolls back everything, including the vault's own
 *   delegate table (the SpentToday accrual for that batch).
 */

package vault

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

var (
	ErrNotAuthorized      = errors.New("caller is not the owner or an active delegate")
	ErrDelegateInactive   = errors.New("delegate key has been revoked")
	ErrDelegateExpired    = errors.New("delegate key has expired")
	ErrDailyLimitExceeded = errors.New("delegate daily spending limit exceeded")
	ErrOwnerOnly          = errors.New("operation restricted to the vault owner")
	ErrInvalidExpiry      = errors.New("validUntil must be in the future")
	ErrInvalidLimit       = errors.New("dailyLimit must not be negative")
	ErrUnknownMethod      = errors.New("vault accepts only plain value transfers")
)

const secondsPerDay = 86400

// DelegatePolicy scopes what a non-owner identity may do through the vault.
// A zero DailyLimit permits execution but forbids moving any value.
type DelegatePolicy struct {
	ValidUntil   time.Time
	DailyLimit   *big.Int
	SpentToday   *big.Int
	LastResetDay int64
	Active       bool
}

// Vault is an owner-bound account registered in the execution environment.
type Vault struct {
	mu        sync.RWMutex
	env       *chain.Env
	address   common.Address
	owner     common.Address
	delegates map[common.Address]*DelegatePolicy
}

// NewVault creates a vault for owner at the given address. Use the factory
// to derive the address and wire the ledger bijection.
func NewVault(env *chain.Env, address, owner common.Address) *Vault {
	return &Vault{
		env:       env,
		address:   address,
		owner:     owner,
		delegates: make(map[common.Address]*DelegatePolicy),
	}
}

// Address returns the vault's address in the execution environment.
func (v *Vault) Address() common.Address {
	return v.address
}

// Owner returns the owner identity the vault was created for.
func (v *Vault) Owner() common.Address {
	return v.owner
}

// Execute runs a single call. The caller must be the owner or an authorized
// delegate; on any failure nothing is retained.
func (v *Vault) Execute(caller common.Address, call chain.Call) ([]byte, error) {
	var output []byte
	err := v.env.Transact(func(tx *chain.Env) error {
		if err := v.authorize(caller, callValue(call)); err != nil {
			return err
		}
		result, err := tx.Invoke(v.address, call.Target, call.Value, call.Data)
		if err != nil {
			return err
		}
		output = result
		return nil
	})
	return output, err
}

// ExecuteBatch runs an ordered batch of calls all-or-nothing. Later calls
// may depend on state mutated by earlier calls in the same batch; if any
// call fails, no effect of any call persists.
func (v *Vault) ExecuteBatch(caller common.Address, batch chain.Batch) ([][]byte, error) {
	var outputs [][]byte
	err := v.env.Transact(func(tx *chain.Env) error {
		if err := v.authorize(caller, batch.ValueSum()); err != nil {
			return err
		}
		outputs = make([][]byte, 0, len(batch))
		for _, call := range batch {
			result, err := tx.Invoke(v.address, call.Target, call.Value, call.Data)
			if err != nil {
				outputs = nil
				return err
			}
			outputs = append(outputs, result)
		}
		return nil
	})
	return outputs, err
}

// CreateDelegate upserts a delegate policy. Owner only. Upserting replaces
// any prior policy for the delegate, including its spent counter.
func (v *Vault) CreateDelegate(caller, delegate common.Address, validUntil time.Time, dailyLimit *big.Int) error {
	if caller != v.owner {
		return fmt.Errorf("%w: createDelegate", ErrOwnerOnly)
	}
	now := v.env.Timestamp()
	if !validUntil.After(now) {
		return fmt.Errorf("%w: %s", ErrInvalidExpiry, validUntil)
	}
	if dailyLimit == nil {
		dailyLimit = new(big.Int)
	}
	if dailyLimit.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLimit, dailyLimit)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.delegates[delegate] = &DelegatePolicy{
		ValidUntil:   validUntil,
		DailyLimit:   new(big.Int).Set(dailyLimit),
		SpentToday:   new(big.Int),
		LastResetDay: now.Unix() / secondsPerDay,
		Active:       true,
	}
	return nil
}

// RevokeDelegate deactivates a delegate immediately. Owner only, idempotent.
func (v *Vault) RevokeDelegate(caller, delegate common.Address) error {
	if caller != v.owner {
		return fmt.Errorf("%w: revokeDelegate", ErrOwnerOnly)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if policy, ok := v.delegates[delegate]; ok {
		policy.Active = false
	}
	return nil
}

// Delegate returns a copy of the policy for a delegate, if one exists.
func (v *Vault) Delegate(delegate common.Address) (DelegatePolicy, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	policy, ok := v.delegates[delegate]
	if !ok {
		return DelegatePolicy{}, false
	}
	return copyPolicy(policy), true
}

// Delegates returns a copy of the whole delegate table.
func (v *Vault) Delegates() map[common.Address]DelegatePolicy {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.delegatesLocked()
}

// Call lets the vault receive plain native value transfers. The vault does
// not dispatch methods; its operations are invoked directly by its owner
// and delegates, never through another contract.
func (v *Vault) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	return nil, ErrUnknownMethod
}

// authorize enforces the caller rule, evaluated against the timestamp
// captured at call start. The spend accrual happens here, inside the
// surrounding transaction, so a failed batch rolls it back.
func (v *Vault) authorize(caller common.Address, amount *big.Int) error {
	if caller == v.owner {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	policy, ok := v.delegates[caller]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, caller.Hex())
	}
	if !policy.Active {
		return fmt.Errorf("%w: %s", ErrDelegateInactive, caller.Hex())
	}

	now := v.env.Timestamp()
	if now.After(policy.ValidUntil) {
		return fmt.Errorf("%w: %s expired %s", ErrDelegateExpired, caller.Hex(), policy.ValidUntil)
	}

	day := now.Unix() / secondsPerDay
	if day != policy.LastResetDay {
		policy.SpentToday = new(big.Int)
		policy.LastResetDay = day
	}

	if amount != nil && amount.Sign() > 0 {
		projected := new(big.Int).Add(policy.SpentToday, amount)
		if projected.Cmp(policy.DailyLimit) > 0 {
			return fmt.Errorf("%w: spent %s + %s > limit %s",
				ErrDailyLimitExceeded, policy.SpentToday, amount, policy.DailyLimit)
		}
		policy.SpentToday = projected
	}
	return nil
}

func callValue(call chain.Call) *big.Int {
	if call.Value == nil {
		return new(big.Int)
	}
	return call.Value
}

func copyPolicy(policy *DelegatePolicy) DelegatePolicy {
	return DelegatePolicy{
		ValidUntil:   policy.ValidUntil,
		DailyLimit:   new(big.Int).Set(policy.DailyLimit),
		SpentToday:   new(big.Int).Set(policy.SpentToday),
		LastResetDay: policy.LastResetDay,
		Active:       policy.Active,
	}
}

type vaultSnapshot struct {
	delegates map[common.Address]DelegatePolicy
}

// Snapshot captures the delegate table for batch rollback.
func (v *Vault) Snapshot() interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return &vaultSnapshot{delegates: v.delegatesLocked()}
}

// Restore reinstates a snapshot taken by Snapshot.
func (v *Vault) Restore(snapshot interface{}) {
	snap := snapshot.(*vaultSnapshot)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delegates = make(map[common.Address]*DelegatePolicy, len(snap.delegates))
	for delegate, policy := range snap.delegates {
		restored := copyPolicy(&policy)
		v.delegates[delegate] = &restored
	}
}

func (v *Vault) delegatesLocked() map[common.Address]DelegatePolicy {
	table := make(map[common.Address]DelegatePolicy, len(v.delegates))
	for delegate, policy := range v.delegates {
		table[delegate] = copyPolicy(policy)
	}
	return table
}
