/**
 * @description
 * Vault factory: deterministic, idempotent creation of one vault per owner.
 * The vault address is derived from the owner identity via keccak, so the
 * same owner always maps to the same address; the ledger's owner⇄vault
 * bijection makes double registration impossible.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common
 * - github.com/ethereum/go-ethereum/crypto
 */

package vault

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
)

// vaultSaltPrefix namespaces the address derivation.
const vaultSaltPrefix = "cityforge/vault/v1/"

// DeriveAddress computes the deterministic vault address for an owner.
func DeriveAddress(owner common.Address) common.Address {
	hash := crypto.Keccak256(append([]byte(vaultSaltPrefix), owner.Bytes()...))
	return common.BytesToAddress(hash[12:])
}

// Factory creates and tracks vaults. One factory per environment.
type Factory struct {
	mu     sync.Mutex
	env    *chain.Env
	ledger *ledger.Ledger
	vaults map[common.Address]*Vault
}

// NewFactory creates a factory bound to an environment and ledger.
func NewFactory(env *chain.Env, l *ledger.Ledger) *Factory {
	return &Factory{
		env:    env,
		ledger: l,
		vaults: make(map[common.Address]*Vault),
	}
}

// CreateOrGetWallet returns the owner's vault, creating and registering it
// on first call. Idempotent: repeated and concurrent calls for the same
// owner always yield the same vault.
func (f *Factory) CreateOrGetWallet(owner common.Address) (*Vault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.vaults[owner]; ok {
		return existing, nil
	}

	address := DeriveAddress(owner)
	created := NewVault(f.env, address, owner)
	if err := f.ledger.RegisterVault(owner, address); err != nil {
		return nil, err
	}
	f.env.Register(address, created)
	f.vaults[owner] = created
	return created, nil
}

// Wallet returns the vault for an owner without creating one.
func (f *Factory) Wallet(owner common.Address) (*Vault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.vaults[owner]
	return existing, ok
}
