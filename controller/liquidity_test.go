package controller

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// The canonical solvency scenario: 100 tokens supplied at a 2.0 price with a
// 0.5 collateral factor and a 1.0 exchange rate yields 100 units of borrowing
// power.
func setupCollateralAccount(t *testing.T) (*Controller, *mockOracle, *mockToken, common.Address, common.Address) {
	t.Helper()
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	account := addr(0x10)
	token := listStandardMarket(t, ctrl, oracle, market, mantissa(2, 0), mantissa(5, 1))
	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("enter: %v", err)
	}
	token.balances[account] = wei(100)
	return ctrl, oracle, token, market, account
}

func expectLiquidity(t *testing.T, liquidity, shortfall *big.Int, wantLiquidity, wantShortfall int64) {
	t.Helper()
	if liquidity.Cmp(wei(wantLiquidity)) != 0 {
		t.Fatalf("liquidity = %s, want %d", liquidity, wantLiquidity)
	}
	if shortfall.Cmp(wei(wantShortfall)) != 0 {
		t.Fatalf("shortfall = %s, want %d", shortfall, wantShortfall)
	}
}

func TestAccountLiquidityBaseline(t *testing.T) {
	ctrl, _, _, _, account := setupCollateralAccount(t)
	liquidity, shortfall, err := ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 100, 0)
}

func TestHypotheticalBorrowWithinPower(t *testing.T) {
	ctrl, _, _, market, account := setupCollateralAccount(t)

	// Borrow value = 90 * 2.0 = 180; collateral power remains 100 + nothing,
	// so borrowing 45 of the same underlying leaves 100 - 90 = 10.
	liquidity, shortfall, err := ctrl.HypotheticalAccountLiquidity(account, market, nil, wei(45))
	if err != nil {
		t.Fatalf("hypothetical: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 10, 0)

	liquidity, shortfall, err = ctrl.HypotheticalAccountLiquidity(account, market, nil, wei(55))
	if err != nil {
		t.Fatalf("hypothetical: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 0, 10)
}

func TestHypotheticalRedeemCountsAsObligation(t *testing.T) {
	ctrl, _, token, market, account := setupCollateralAccount(t)
	token.borrows[account] = wei(40) // borrow value 80

	// Redeeming 30 tokens removes 30 * tokensToDenom = 30 of power; modeled
	// on the borrow side: 100 collateral vs 80 + 30 = 110.
	liquidity, shortfall, err := ctrl.HypotheticalAccountLiquidity(account, market, wei(30), nil)
	if err != nil {
		t.Fatalf("hypothetical: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 0, 10)

	liquidity, shortfall, err = ctrl.HypotheticalAccountLiquidity(account, market, wei(20), nil)
	if err != nil {
		t.Fatalf("hypothetical: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 0, 0)
}

func TestLiquiditySpansMarkets(t *testing.T) {
	ctrl, oracle, _, _, account := setupCollateralAccount(t)
	borrowed := addr(0x02)
	borrowedToken := listStandardMarket(t, ctrl, oracle, borrowed, mantissa(1, 0), nil)
	if err := ctrl.EnterMarket(account, borrowed); err != nil {
		t.Fatalf("enter: %v", err)
	}
	borrowedToken.borrows[account] = wei(90)

	liquidity, shortfall, err := ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 10, 0)

	borrowedToken.borrows[account] = wei(110)
	liquidity, shortfall, err = ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 0, 10)
}

func TestSoftDelistedMarketStaysInAccounting(t *testing.T) {
	ctrl, oracle, _, _, account := setupCollateralAccount(t)
	borrowed := addr(0x02)
	borrowedToken := listStandardMarket(t, ctrl, oracle, borrowed, mantissa(1, 0), nil)
	if err := ctrl.EnterMarket(account, borrowed); err != nil {
		t.Fatalf("enter: %v", err)
	}
	borrowedToken.borrows[account] = wei(50)

	// Soft-delist the borrowed market. Its debt must still count.
	pauseForDelist(t, ctrl, borrowed)
	if err := ctrl.DelistMarket(testAdmin, borrowed, false); err != nil {
		t.Fatalf("soft delist: %v", err)
	}
	liquidity, shortfall, err := ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 50, 0)

	// A hard removal takes the exposure out of the loop entirely.
	if err := ctrl.DelistMarket(testAdmin, borrowed, true); err != nil {
		t.Fatalf("force delist: %v", err)
	}
	liquidity, shortfall, err = ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 100, 0)
}

func TestLiquidityRefusesOnMissingPrice(t *testing.T) {
	ctrl, oracle, _, market, account := setupCollateralAccount(t)
	oracle.prices[market] = big.NewInt(0)

	_, _, err := ctrl.AccountLiquidity(account)
	expectRefusal(t, err, CodePriceError)
}

func TestLiquiditySkipsUntouchedMarkets(t *testing.T) {
	ctrl, oracle, _, _, account := setupCollateralAccount(t)
	idle := addr(0x03)
	listStandardMarket(t, ctrl, oracle, idle, mantissa(1, 0), nil)
	if err := ctrl.EnterMarket(account, idle); err != nil {
		t.Fatalf("enter: %v", err)
	}
	// Remove the idle market's price: the zero-balance fast path must skip
	// it before the oracle lookup.
	oracle.prices[idle] = big.NewInt(0)

	liquidity, shortfall, err := ctrl.AccountLiquidity(account)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	expectLiquidity(t, liquidity, shortfall, 100, 0)
}

func TestSeizeTokens(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	borrowed := addr(0x01)
	collateral := addr(0x02)
	listStandardMarket(t, ctrl, oracle, borrowed, mantissa(1, 0), nil)
	collateralToken := listStandardMarket(t, ctrl, oracle, collateral, mantissa(2, 0), nil)
	collateralToken.exchangeRate = mantissa(1, 0)

	if err := ctrl.SetLiquidationIncentive(testAdmin, mantissa(11, 1)); err != nil {
		t.Fatalf("set incentive: %v", err)
	}

	// seize = 100 * (1.1 * 1.0) / (2.0 * 1.0) = 55 collateral tokens.
	seize, err := ctrl.SeizeTokens(borrowed, collateral, wei(100))
	if err != nil {
		t.Fatalf("seize tokens: %v", err)
	}
	if seize.Cmp(wei(55)) != 0 {
		t.Fatalf("seize = %s, want 55", seize)
	}
}

func TestSeizeTokensRefusesOnBadPrice(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	borrowed := addr(0x01)
	collateral := addr(0x02)
	listStandardMarket(t, ctrl, oracle, borrowed, big.NewInt(0), nil)
	listStandardMarket(t, ctrl, oracle, collateral, mantissa(2, 0), nil)

	_, err := ctrl.SeizeTokens(borrowed, collateral, wei(100))
	expectRefusal(t, err, CodePriceError)
}
