package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
	"github.com/cityforge-project/backend/internal/ledger"
)

var (
	owner       = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	delegateKey = common.HexToAddress("0xDE1E000000000000000000000000000000000002")
	stranger    = common.HexToAddress("0x5717A00000000000000000000000000000000003")
	sinkAddr    = common.HexToAddress("0x5111C00000000000000000000000000000000004")
)

// sink accepts any call; with input "fail" it errors. Stateful so rollback
// coverage includes it.
type sink struct {
	calls int
}

func (s *sink) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	s.calls++
	if string(input) == "fail" {
		return nil, errors.New("sink failure")
	}
	return nil, nil
}

func (s *sink) Snapshot() interface{}        { return s.calls }
func (s *sink) Restore(snapshot interface{}) { s.calls = snapshot.(int) }

type fixture struct {
	env   *chain.Env
	vault *Vault
	sink  *sink
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		env: chain.NewEnv(),
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.env.Now = func() time.Time { return f.now }

	records := ledger.New(f.env.Timestamp)
	f.env.Register(ledger.ContractAddress, records)

	factory := NewFactory(f.env, records)
	v, err := factory.CreateOrGetWallet(owner)
	if err != nil {
		t.Fatalf("CreateOrGetWallet failed: %v", err)
	}
	f.vault = v

	f.sink = &sink{}
	f.env.Register(sinkAddr, f.sink)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestOwnerExecute(t *testing.T) {
	f := newFixture(t)

	if _, err := f.vault.Execute(owner, chain.Call{Target: sinkAddr}); err != nil {
		t.Fatalf("owner execute failed: %v", err)
	}
	if f.sink.calls != 1 {
		t.Fatalf("expected 1 sink call, got %d", f.sink.calls)
	}
}

func TestStrangerCannotExecute(t *testing.T) {
	f := newFixture(t)

	_, err := f.vault.Execute(stranger, chain.Call{Target: sinkAddr})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if f.sink.calls != 0 {
		t.Fatalf("expected no sink calls, got %d", f.sink.calls)
	}
}

func TestDelegateLifecycle(t *testing.T) {
	f := newFixture(t)

	// Only the owner may grant.
	err := f.vault.CreateDelegate(stranger, delegateKey, f.now.Add(time.Hour), big.NewInt(100))
	if !errors.Is(err, ErrOwnerOnly) {
		t.Fatalf("expected ErrOwnerOnly, got %v", err)
	}

	// Expiry must be in the future.
	err = f.vault.CreateDelegate(owner, delegateKey, f.now.Add(-time.Minute), big.NewInt(100))
	if !errors.Is(err, ErrInvalidExpiry) {
		t.Fatalf("expected ErrInvalidExpiry, got %v", err)
	}

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(time.Hour), big.NewInt(100)); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr}); err != nil {
		t.Fatalf("delegate execute failed: %v", err)
	}

	// Revocation takes effect immediately and is idempotent.
	if err := f.vault.RevokeDelegate(owner, delegateKey); err != nil {
		t.Fatalf("RevokeDelegate failed: %v", err)
	}
	if err := f.vault.RevokeDelegate(owner, delegateKey); err != nil {
		t.Fatalf("second RevokeDelegate failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr}); !errors.Is(err, ErrDelegateInactive) {
		t.Fatalf("expected ErrDelegateInactive, got %v", err)
	}
}

func TestDelegateExpiry(t *testing.T) {
	f := newFixture(t)

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(time.Hour), big.NewInt(100)); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}

	f.advance(2 * time.Hour)

	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr}); !errors.Is(err, ErrDelegateExpired) {
		t.Fatalf("expected ErrDelegateExpired, got %v", err)
	}
	// The owner is never affected by delegate expiry.
	if _, err := f.vault.Execute(owner, chain.Call{Target: sinkAddr}); err != nil {
		t.Fatalf("owner execute failed after delegate expiry: %v", err)
	}
}

func TestDelegateDailyLimit(t *testing.T) {
	f := newFixture(t)
	f.env.Credit(f.vault.Address(), big.NewInt(1000))

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(48*time.Hour), big.NewInt(100)); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}

	// 60 + 40 = limit, exactly allowed.
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(60)}); err != nil {
		t.Fatalf("first spend failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(40)}); err != nil {
		t.Fatalf("second spend failed: %v", err)
	}

	// One more unit exceeds the limit.
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(1)}); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}

	// Zero-value execution still works at the cap.
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr}); err != nil {
		t.Fatalf("zero-value execute failed at cap: %v", err)
	}

	// A new unix day resets the counter.
	f.advance(24 * time.Hour)
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(100)}); err != nil {
		t.Fatalf("spend after day reset failed: %v", err)
	}

	policy, ok := f.vault.Delegate(delegateKey)
	if !ok {
		t.Fatal("expected delegate policy to exist")
	}
	if policy.SpentToday.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected spent today 100, got %s", policy.SpentToday)
	}
}

func TestZeroLimitDelegateCannotSpend(t *testing.T) {
	f := newFixture(t)
	f.env.Credit(f.vault.Address(), big.NewInt(1000))

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(time.Hour), nil); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}

	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr}); err != nil {
		t.Fatalf("zero-value execute failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(1)}); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}
}

func TestUpsertResetsSpentCounter(t *testing.T) {
	f := newFixture(t)
	f.env.Credit(f.vault.Address(), big.NewInt(1000))

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(time.Hour), big.NewInt(100)); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(100)}); err != nil {
		t.Fatalf("spend failed: %v", err)
	}

	// Re-granting replaces the policy, including the spent counter.
	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(2*time.Hour), big.NewInt(50)); err != nil {
		t.Fatalf("re-grant failed: %v", err)
	}
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(50)}); err != nil {
		t.Fatalf("spend after re-grant failed: %v", err)
	}
}

func TestBatchAtomicity(t *testing.T) {
	f := newFixture(t)
	f.env.Credit(f.vault.Address(), big.NewInt(1000))

	if err := f.vault.CreateDelegate(owner, delegateKey, f.now.Add(time.Hour), big.NewInt(500)); err != nil {
		t.Fatalf("CreateDelegate failed: %v", err)
	}

	batch := chain.Batch{
		{Target: sinkAddr, Value: big.NewInt(100)},
		{Target: sinkAddr, Data: []byte("fail")},
	}
	if _, err := f.vault.ExecuteBatch(delegateKey, batch); err == nil {
		t.Fatal("expected batch to fail")
	}

	// Balances, sink state, and the delegate's spent counter all roll back.
	if got := f.env.BalanceOf(f.vault.Address()); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected vault balance restored to 1000, got %s", got)
	}
	if f.sink.calls != 0 {
		t.Fatalf("expected sink state rolled back, got %d calls", f.sink.calls)
	}
	policy, _ := f.vault.Delegate(delegateKey)
	if policy.SpentToday.Sign() != 0 {
		t.Fatalf("expected spent counter rolled back, got %s", policy.SpentToday)
	}

	// The delegate's budget is intact: the full limit is still spendable.
	if _, err := f.vault.Execute(delegateKey, chain.Call{Target: sinkAddr, Value: big.NewInt(500)}); err != nil {
		t.Fatalf("spend after rollback failed: %v", err)
	}
}

func TestBatchOrderPreserved(t *testing.T) {
	f := newFixture(t)

	var order []string
	recorder := contractFunc(func(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
		order = append(order, string(input))
		return nil, nil
	})
	recAddr := common.HexToAddress("0x1EC0000000000000000000000000000000000005")
	f.env.Register(recAddr, recorder)

	batch := chain.Batch{
		{Target: recAddr, Data: []byte("a")},
		{Target: recAddr, Data: []byte("b")},
		{Target: recAddr, Data: []byte("c")},
	}
	outputs, err := f.vault.ExecuteBatch(owner, batch)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("expected in-order execution, got %v", order)
	}
}

// contractFunc adapts a function to chain.Contract for tests.
type contractFunc func(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error)

func (f contractFunc) Call(env *chain.Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	return f(env, caller, value, input)
}
