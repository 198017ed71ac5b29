package protocols

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

var (
	tokenAddr = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	holder    = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	spender   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
	receiver  = common.HexToAddress("0xCAFE000000000000000000000000000000000003")
)

func newTestToken(t *testing.T) (*chain.Env, *Token) {
	t.Helper()
	env := chain.NewEnv()
	token, err := NewToken(tokenAddr, "USDC")
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	env.Register(token.Address(), token)
	return env, token
}

func invoke(t *testing.T, env *chain.Env, caller, target common.Address, data []byte) ([]byte, error) {
	t.Helper()
	var output []byte
	err := env.Transact(func(tx *chain.Env) error {
		result, err := tx.Invoke(caller, target, nil, data)
		if err != nil {
			return err
		}
		output = result
		return nil
	})
	return output, err
}

func TestTokenTransfer(t *testing.T) {
	env, token := newTestToken(t)
	token.Mint(holder, big.NewInt(100))

	data, err := token.PackTransfer(receiver, big.NewInt(40))
	if err != nil {
		t.Fatalf("PackTransfer failed: %v", err)
	}
	if _, err := invoke(t, env, holder, tokenAddr, data); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if got := token.BalanceOf(holder); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected holder balance 60, got %s", got)
	}
	if got := token.BalanceOf(receiver); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected receiver balance 40, got %s", got)
	}
}

func TestTokenTransferInsufficientFunds(t *testing.T) {
	env, token := newTestToken(t)
	token.Mint(holder, big.NewInt(10))

	data, _ := token.PackTransfer(receiver, big.NewInt(40))
	if _, err := invoke(t, env, holder, tokenAddr, data); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// Rolled back, nothing moved.
	if got := token.BalanceOf(holder); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected balance unchanged, got %s", got)
	}
}

func TestTokenApproveAndTransferFrom(t *testing.T) {
	env, token := newTestToken(t)
	token.Mint(holder, big.NewInt(100))

	approve, _ := token.PackApprove(spender, big.NewInt(70))
	if _, err := invoke(t, env, holder, tokenAddr, approve); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if got := token.Allowance(holder, spender); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("expected allowance 70, got %s", got)
	}

	pull, _ := token.PackTransferFrom(holder, receiver, big.NewInt(50))
	if _, err := invoke(t, env, spender, tokenAddr, pull); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	if got := token.Allowance(holder, spender); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected remaining allowance 20, got %s", got)
	}
	if got := token.BalanceOf(receiver); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected receiver balance 50, got %s", got)
	}

	// Exceeding the remaining allowance fails.
	pull, _ = token.PackTransferFrom(holder, receiver, big.NewInt(21))
	if _, err := invoke(t, env, spender, tokenAddr, pull); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestTokenZeroAmountTransferFromWithoutApproval(t *testing.T) {
	env, token := newTestToken(t)
	token.Mint(holder, big.NewInt(100))

	// No allowance row exists for holder/spender; a zero-amount pull must
	// still succeed and leave every balance and allowance untouched.
	pull, _ := token.PackTransferFrom(holder, receiver, big.NewInt(0))
	if _, err := invoke(t, env, spender, tokenAddr, pull); err != nil {
		t.Fatalf("zero-amount transferFrom failed: %v", err)
	}
	if got := token.BalanceOf(holder); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected holder balance unchanged, got %s", got)
	}
	if got := token.Allowance(holder, spender); got.Sign() != 0 {
		t.Fatalf("expected zero allowance, got %s", got)
	}
}

func TestTokenRejectsUnknownSelector(t *testing.T) {
	env, _ := newTestToken(t)
	if _, err := invoke(t, env, holder, tokenAddr, []byte{0xde, 0xad, 0xbe, 0xef}); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if _, err := invoke(t, env, holder, tokenAddr, []byte{0x01}); !errors.Is(err, ErrBadCalldata) {
		t.Fatalf("expected ErrBadCalldata, got %v", err)
	}
}
