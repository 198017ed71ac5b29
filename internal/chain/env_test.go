package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

// counter is a minimal stateful contract: every call increments n, any call
// with input "fail" errors after incrementing, any call with input "panic"
// panics after incrementing.
type counter struct {
	n int
}

func (c *counter) Call(env *Env, caller common.Address, value *big.Int, input []byte) ([]byte, error) {
	c.n++
	if string(input) == "fail" {
		return nil, errors.New("contract failure")
	}
	if string(input) == "panic" {
		panic("contract panic")
	}
	return []byte{byte(c.n)}, nil
}

func (c *counter) Snapshot() interface{} {
	return c.n
}

func (c *counter) Restore(snapshot interface{}) {
	c.n = snapshot.(int)
}

func TestCreditAndBalance(t *testing.T) {
	env := NewEnv()

	if got := env.BalanceOf(alice); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got)
	}

	env.Credit(alice, big.NewInt(100))
	env.Credit(alice, big.NewInt(50))

	if got := env.BalanceOf(alice); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected balance 150, got %s", got)
	}
}

func TestInvokeUnknownTarget(t *testing.T) {
	env := NewEnv()

	err := env.Transact(func(tx *Env) error {
		_, err := tx.Invoke(alice, bob, nil, nil)
		return err
	})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestInvokeMovesValue(t *testing.T) {
	env := NewEnv()
	target := common.HexToAddress("0xC000000000000000000000000000000000000003")
	env.Register(target, &counter{})
	env.Credit(alice, big.NewInt(100))

	err := env.Transact(func(tx *Env) error {
		_, err := tx.Invoke(alice, target, big.NewInt(40), nil)
		return err
	})
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}

	if got := env.BalanceOf(alice); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected sender balance 60, got %s", got)
	}
	if got := env.BalanceOf(target); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected target balance 40, got %s", got)
	}
}

func TestInvokeInsufficientBalance(t *testing.T) {
	env := NewEnv()
	target := common.HexToAddress("0xC000000000000000000000000000000000000003")
	env.Register(target, &counter{})
	env.Credit(alice, big.NewInt(10))

	err := env.Transact(func(tx *Env) error {
		_, err := tx.Invoke(alice, target, big.NewInt(40), nil)
		return err
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := env.BalanceOf(alice); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected balance unchanged at 10, got %s", got)
	}
}

func TestTransactRollsBackBalancesAndState(t *testing.T) {
	env := NewEnv()
	target := common.HexToAddress("0xC000000000000000000000000000000000000003")
	c := &counter{}
	env.Register(target, c)
	env.Credit(alice, big.NewInt(100))

	// First call succeeds and moves value, second call fails: everything,
	// including the first call's effects, must be undone.
	err := env.Transact(func(tx *Env) error {
		if _, err := tx.Invoke(alice, target, big.NewInt(30), nil); err != nil {
			return err
		}
		_, err := tx.Invoke(alice, target, nil, []byte("fail"))
		return err
	})
	if err == nil {
		t.Fatal("expected transact to fail")
	}

	if got := env.BalanceOf(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance restored to 100, got %s", got)
	}
	if got := env.BalanceOf(target); got.Sign() != 0 {
		t.Fatalf("expected target balance restored to 0, got %s", got)
	}
	if c.n != 0 {
		t.Fatalf("expected contract state restored to 0, got %d", c.n)
	}
}

func TestTransactRestoresOnPanic(t *testing.T) {
	env := NewEnv()
	target := common.HexToAddress("0xC000000000000000000000000000000000000003")
	c := &counter{}
	env.Register(target, c)
	env.Credit(alice, big.NewInt(100))

	// First call succeeds and moves value, second call panics: the panic
	// must propagate, but nothing from the batch may persist.
	recovered := func() (r interface{}) {
		defer func() { r = recover() }()
		_ = env.Transact(func(tx *Env) error {
			if _, err := tx.Invoke(alice, target, big.NewInt(30), nil); err != nil {
				return err
			}
			_, err := tx.Invoke(alice, target, nil, []byte("panic"))
			return err
		})
		return nil
	}()
	if recovered == nil {
		t.Fatal("expected panic to propagate out of Transact")
	}

	if got := env.BalanceOf(alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance restored to 100, got %s", got)
	}
	if got := env.BalanceOf(target); got.Sign() != 0 {
		t.Fatalf("expected target balance restored to 0, got %s", got)
	}
	if c.n != 0 {
		t.Fatalf("expected contract state restored to 0, got %d", c.n)
	}

	// The environment lock must have been released on the way out.
	err := env.Transact(func(tx *Env) error {
		_, err := tx.Invoke(alice, target, nil, nil)
		return err
	})
	if err != nil {
		t.Fatalf("transact after panic failed: %v", err)
	}
	if c.n != 1 {
		t.Fatalf("expected contract state 1 after clean transact, got %d", c.n)
	}
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	env := NewEnv()
	target := common.HexToAddress("0xC000000000000000000000000000000000000003")
	c := &counter{}
	env.Register(target, c)

	err := env.Transact(func(tx *Env) error {
		_, err := tx.Invoke(alice, target, nil, nil)
		return err
	})
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if c.n != 1 {
		t.Fatalf("expected contract state 1, got %d", c.n)
	}
}

func TestBatchHelpers(t *testing.T) {
	targets := []common.Address{alice, bob}
	values := []*big.Int{big.NewInt(1), big.NewInt(2)}
	payloads := [][]byte{{0x01}, {0x02}}

	batch, err := NewBatch(targets, values, payloads)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	if got := batch.ValueSum(); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected value sum 3, got %s", got)
	}

	gotTargets, gotValues, gotPayloads := batch.Arrays()
	if len(gotTargets) != 2 || len(gotValues) != 2 || len(gotPayloads) != 2 {
		t.Fatalf("arrays round trip lost entries")
	}
	if gotTargets[1] != bob {
		t.Fatalf("expected second target %s, got %s", bob.Hex(), gotTargets[1].Hex())
	}

	if _, err := NewBatch(targets, values[:1], payloads); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}
