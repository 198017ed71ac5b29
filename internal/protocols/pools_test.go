package protocols

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cityforge-project/backend/internal/chain"
)

// poolFixture wires a token and all three pools into one environment the way
// the API binary does, with the vault role played by a plain address.
type poolFixture struct {
	env     *chain.Env
	token   *Token
	lending *LendingPool
	swap    *SwapRouter
	prize   *PrizePool
	vault   common.Address
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()

	env := chain.NewEnv()
	token, err := NewToken(tokenAddr, "USDC")
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	env.Register(token.Address(), token)

	lending, err := NewLendingPool()
	if err != nil {
		t.Fatalf("NewLendingPool failed: %v", err)
	}
	env.Register(LendingPoolAddress, lending)

	swap, err := NewSwapRouter()
	if err != nil {
		t.Fatalf("NewSwapRouter failed: %v", err)
	}
	env.Register(SwapRouterAddress, swap)

	prize, err := NewPrizePool()
	if err != nil {
		t.Fatalf("NewPrizePool failed: %v", err)
	}
	env.Register(PrizePoolAddress, prize)

	f := &poolFixture{
		env:     env,
		token:   token,
		lending: lending,
		swap:    swap,
		prize:   prize,
		vault:   common.HexToAddress("0xFA0170000000000000000000000000000000000A"),
	}
	token.Mint(f.vault, big.NewInt(1000))
	return f
}

func (f *poolFixture) approve(t *testing.T, spender common.Address, amount int64) {
	t.Helper()
	data, err := f.token.PackApprove(spender, big.NewInt(amount))
	if err != nil {
		t.Fatalf("PackApprove failed: %v", err)
	}
	if _, err := invoke(t, f.env, f.vault, tokenAddr, data); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
}

func TestLendingSupplyWithdrawClaim(t *testing.T) {
	f := newPoolFixture(t)
	f.approve(t, LendingPoolAddress, 400)

	supply, _ := f.lending.PackSupply(tokenAddr, big.NewInt(400))
	if _, err := invoke(t, f.env, f.vault, LendingPoolAddress, supply); err != nil {
		t.Fatalf("supply failed: %v", err)
	}
	if got := f.lending.PrincipalOf(tokenAddr, f.vault); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected principal 400, got %s", got)
	}
	if got := f.token.BalanceOf(LendingPoolAddress); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected pool token balance 400, got %s", got)
	}

	// Interest must be backed by pool token balance; credit and fund it.
	f.lending.CreditInterest(tokenAddr, f.vault, big.NewInt(25))
	f.token.Mint(LendingPoolAddress, big.NewInt(25))

	claim, _ := f.lending.PackClaimInterest(tokenAddr, f.vault)
	output, err := invoke(t, f.env, f.vault, LendingPoolAddress, claim)
	if err != nil {
		t.Fatalf("claimInterest failed: %v", err)
	}
	if output == nil {
		t.Fatal("expected claimed amount output")
	}
	if got := f.lending.InterestOf(tokenAddr, f.vault); got.Sign() != 0 {
		t.Fatalf("expected interest drained, got %s", got)
	}

	withdraw, _ := f.lending.PackWithdraw(tokenAddr, big.NewInt(400), f.vault)
	if _, err := invoke(t, f.env, f.vault, LendingPoolAddress, withdraw); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := f.token.BalanceOf(f.vault); got.Cmp(big.NewInt(1025)) != 0 {
		t.Fatalf("expected vault balance 1025 after full cycle, got %s", got)
	}

	// Over-withdrawal is rejected.
	withdraw, _ = f.lending.PackWithdraw(tokenAddr, big.NewInt(1), f.vault)
	if _, err := invoke(t, f.env, f.vault, LendingPoolAddress, withdraw); !errors.Is(err, ErrInsufficientDeposit) {
		t.Fatalf("expected ErrInsufficientDeposit, got %v", err)
	}
}

func TestZeroAmountWithdrawalsOnFreshPools(t *testing.T) {
	f := newPoolFixture(t)

	// No deposit, liquidity, or entry rows exist yet; zero-amount exits
	// must succeed as no-ops on every pool.
	withdraw, _ := f.lending.PackWithdraw(tokenAddr, big.NewInt(0), f.vault)
	if _, err := invoke(t, f.env, f.vault, LendingPoolAddress, withdraw); err != nil {
		t.Fatalf("zero-amount withdraw failed: %v", err)
	}
	remove, _ := f.swap.PackRemoveLiquidity(tokenAddr, big.NewInt(0), f.vault)
	if _, err := invoke(t, f.env, f.vault, SwapRouterAddress, remove); err != nil {
		t.Fatalf("zero-amount removeLiquidity failed: %v", err)
	}
	exit, _ := f.prize.PackWithdrawEntries(tokenAddr, big.NewInt(0), f.vault)
	if _, err := invoke(t, f.env, f.vault, PrizePoolAddress, exit); err != nil {
		t.Fatalf("zero-amount withdrawEntries failed: %v", err)
	}

	if got := f.token.BalanceOf(f.vault); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected vault balance unchanged at 1000, got %s", got)
	}
}

func TestSupplyWithoutApprovalFails(t *testing.T) {
	f := newPoolFixture(t)

	supply, _ := f.lending.PackSupply(tokenAddr, big.NewInt(100))
	if _, err := invoke(t, f.env, f.vault, LendingPoolAddress, supply); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if got := f.lending.PrincipalOf(tokenAddr, f.vault); got.Sign() != 0 {
		t.Fatalf("expected no principal after failed supply, got %s", got)
	}
}

func TestSwapLiquidityAndFees(t *testing.T) {
	f := newPoolFixture(t)
	f.approve(t, SwapRouterAddress, 300)

	add, _ := f.swap.PackAddLiquidity(tokenAddr, big.NewInt(300))
	if _, err := invoke(t, f.env, f.vault, SwapRouterAddress, add); err != nil {
		t.Fatalf("addLiquidity failed: %v", err)
	}
	if got := f.swap.LiquidityOf(tokenAddr, f.vault); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected liquidity 300, got %s", got)
	}

	f.swap.CreditFees(tokenAddr, f.vault, big.NewInt(9))
	f.token.Mint(SwapRouterAddress, big.NewInt(9))

	claim, _ := f.swap.PackClaimFees(tokenAddr, f.vault)
	if _, err := invoke(t, f.env, f.vault, SwapRouterAddress, claim); err != nil {
		t.Fatalf("claimFees failed: %v", err)
	}
	if got := f.swap.FeesOf(tokenAddr, f.vault); got.Sign() != 0 {
		t.Fatalf("expected fees drained, got %s", got)
	}

	remove, _ := f.swap.PackRemoveLiquidity(tokenAddr, big.NewInt(300), f.vault)
	if _, err := invoke(t, f.env, f.vault, SwapRouterAddress, remove); err != nil {
		t.Fatalf("removeLiquidity failed: %v", err)
	}
	if got := f.token.BalanceOf(f.vault); got.Cmp(big.NewInt(1009)) != 0 {
		t.Fatalf("expected vault balance 1009, got %s", got)
	}

	remove, _ = f.swap.PackRemoveLiquidity(tokenAddr, big.NewInt(1), f.vault)
	if _, err := invoke(t, f.env, f.vault, SwapRouterAddress, remove); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestPrizePoolEntriesAndWinnings(t *testing.T) {
	f := newPoolFixture(t)
	f.approve(t, PrizePoolAddress, 200)

	buy, _ := f.prize.PackBuyEntries(tokenAddr, big.NewInt(200))
	if _, err := invoke(t, f.env, f.vault, PrizePoolAddress, buy); err != nil {
		t.Fatalf("buyEntries failed: %v", err)
	}
	if got := f.prize.EntriesOf(tokenAddr, f.vault); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected entries 200, got %s", got)
	}

	f.prize.AwardPrize(tokenAddr, f.vault, big.NewInt(1000))
	f.token.Mint(PrizePoolAddress, big.NewInt(1000))

	claim, _ := f.prize.PackClaimWinnings(tokenAddr, f.vault)
	if _, err := invoke(t, f.env, f.vault, PrizePoolAddress, claim); err != nil {
		t.Fatalf("claimWinnings failed: %v", err)
	}
	if got := f.prize.WinningsOf(tokenAddr, f.vault); got.Sign() != 0 {
		t.Fatalf("expected winnings drained, got %s", got)
	}

	withdraw, _ := f.prize.PackWithdrawEntries(tokenAddr, big.NewInt(200), f.vault)
	if _, err := invoke(t, f.env, f.vault, PrizePoolAddress, withdraw); err != nil {
		t.Fatalf("withdrawEntries failed: %v", err)
	}
	if got := f.token.BalanceOf(f.vault); got.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("expected vault balance 2000, got %s", got)
	}

	withdraw, _ = f.prize.PackWithdrawEntries(tokenAddr, big.NewInt(1), f.vault)
	if _, err := invoke(t, f.env, f.vault, PrizePoolAddress, withdraw); !errors.Is(err, ErrInsufficientEntries) {
		t.Fatalf("expected ErrInsufficientEntries, got %v", err)
	}
}
