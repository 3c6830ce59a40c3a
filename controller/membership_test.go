package controller

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEnterMarketIdempotent(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	account := addr(0x10)
	listStandardMarket(t, ctrl, oracle, market, mantissa(1, 0), nil)

	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("re-enter must be a no-op: %v", err)
	}
	entered := ctrl.EnteredMarkets(account)
	if len(entered) != 1 || entered[0] != market {
		t.Fatalf("unexpected membership list %v", entered)
	}
	if !ctrl.CheckMembership(account, market) {
		t.Fatal("membership flag missing")
	}
}

func TestEnterMarketsIsPositional(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	listed := addr(0x01)
	unknown := addr(0x02)
	account := addr(0x10)
	listStandardMarket(t, ctrl, oracle, listed, mantissa(1, 0), nil)

	results := ctrl.EnterMarkets(account, []common.Address{listed, unknown, listed})
	if results[0] != nil {
		t.Fatalf("listed market should enter: %v", results[0])
	}
	expectRefusal(t, results[1], CodeMarketNotListed)
	if results[2] != nil {
		t.Fatalf("repeated listed market should be idempotent: %v", results[2])
	}
}

func TestEnterRejectsSoftDelisted(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	account := addr(0x10)
	listStandardMarket(t, ctrl, oracle, market, mantissa(1, 0), nil)
	pauseForDelist(t, ctrl, market)
	if err := ctrl.DelistMarket(testAdmin, market, false); err != nil {
		t.Fatalf("soft delist: %v", err)
	}

	err := ctrl.EnterMarket(account, market)
	expectRefusal(t, err, CodeMarketNotListed)
}

func TestEnterCollateralCapRegisters(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x02)
	account := addr(0x10)
	capToken := newMockCapToken(market, ctrl.Address())
	if err := ctrl.SupportMarket(testAdmin, capToken, VersionCollateralCap); err != nil {
		t.Fatalf("support market: %v", err)
	}
	oracle.prices[market] = mantissa(1, 0)

	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !capToken.registered[account] {
		t.Fatal("collateral registration missing")
	}

	if err := ctrl.ExitMarket(account, market); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if capToken.registered[account] {
		t.Fatal("collateral registration should be removed on exit")
	}
}

func TestEnterCollateralCapRegistrationErrorAborts(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x02)
	account := addr(0x10)
	capToken := newMockCapToken(market, ctrl.Address())
	if err := ctrl.SupportMarket(testAdmin, capToken, VersionCollateralCap); err != nil {
		t.Fatalf("support market: %v", err)
	}
	oracle.prices[market] = mantissa(1, 0)
	capToken.registerErr = errors.New("registration rejected")

	err := ctrl.EnterMarket(account, market)
	if err == nil {
		t.Fatal("expected error")
	}
	if ctrl.CheckMembership(account, market) {
		t.Fatal("failed registration must not record membership")
	}
}

func TestExitRefusedWithOutstandingBorrow(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	account := addr(0x10)
	token := listStandardMarket(t, ctrl, oracle, market, mantissa(1, 0), nil)
	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("enter: %v", err)
	}
	token.borrows[account] = wei(5)

	err := ctrl.ExitMarket(account, market)
	expectRefusal(t, err, CodeNonzeroBorrowBalance)

	token.borrows[account] = wei(0)
	if err := ctrl.ExitMarket(account, market); err != nil {
		t.Fatalf("exit after repay: %v", err)
	}
}

func TestExitRefusedWhenCollateralBacksOtherDebt(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	collateral := addr(0x01)
	borrowed := addr(0x02)
	account := addr(0x10)

	collateralToken := listStandardMarket(t, ctrl, oracle, collateral, mantissa(2, 0), mantissa(5, 1))
	borrowedToken := listStandardMarket(t, ctrl, oracle, borrowed, mantissa(1, 0), nil)

	if errs := ctrl.EnterMarkets(account, []common.Address{collateral, borrowed}); errs[0] != nil || errs[1] != nil {
		t.Fatalf("enter markets: %v", errs)
	}
	collateralToken.balances[account] = wei(100)
	borrowedToken.borrows[account] = wei(90)

	err := ctrl.ExitMarket(account, collateral)
	expectRefusal(t, err, CodeInsufficientLiquidity)

	borrowedToken.borrows[account] = wei(0)
	if err := ctrl.ExitMarket(account, collateral); err != nil {
		t.Fatalf("exit once debt is cleared: %v", err)
	}
}

func TestExitHardRemovedMarketAlwaysAllowed(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	account := addr(0x10)
	token := listStandardMarket(t, ctrl, oracle, market, mantissa(1, 0), nil)
	if err := ctrl.EnterMarket(account, market); err != nil {
		t.Fatalf("enter: %v", err)
	}
	token.borrows[account] = wei(5)

	pauseForDelist(t, ctrl, market)
	if err := ctrl.DelistMarket(testAdmin, market, true); err != nil {
		t.Fatalf("force delist: %v", err)
	}

	// With the registry record gone, membership is droppable even though the
	// token still reports a borrow balance.
	if err := ctrl.ExitMarket(account, market); err != nil {
		t.Fatalf("exit hard-removed market: %v", err)
	}
	if ctrl.CheckMembership(account, market) {
		t.Fatal("membership should be gone")
	}
}

func TestExitNonMemberIsNoop(t *testing.T) {
	ctrl, oracle, _ := newTestController(t)
	market := addr(0x01)
	listStandardMarket(t, ctrl, oracle, market, mantissa(1, 0), nil)
	if err := ctrl.ExitMarket(addr(0x10), market); err != nil {
		t.Fatalf("exit without membership: %v", err)
	}
}

func TestMembershipFlagAndListStayInSync(t *testing.T) {
	ix := newMembershipIndex()
	account := addr(0x10)
	markets := []common.Address{addr(0x01), addr(0x02), addr(0x03), addr(0x04)}
	for _, market := range markets {
		if !ix.add(account, market) {
			t.Fatalf("first add of %s reported duplicate", market)
		}
	}
	if ix.add(account, markets[0]) {
		t.Fatal("duplicate add must report false")
	}

	// Remove in an order that exercises the swap-and-truncate path.
	for _, market := range []common.Address{markets[1], markets[3], markets[0], markets[2]} {
		if err := ix.remove(account, market); err != nil {
			t.Fatalf("remove %s: %v", market, err)
		}
		if ix.contains(account, market) {
			t.Fatalf("flag for %s survived removal", market)
		}
		for _, left := range ix.list(account) {
			if left == market {
				t.Fatalf("list entry for %s survived removal", market)
			}
			if !ix.contains(account, left) {
				t.Fatalf("list entry %s lost its flag", left)
			}
		}
	}
	if got := ix.list(account); got != nil {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestMembershipIndexDetectsCorruption(t *testing.T) {
	ix := newMembershipIndex()
	account := addr(0x10)
	market := addr(0x01)
	ix.flags[membershipKey{account: account, market: market}] = true

	err := ix.remove(account, market)
	if err == nil {
		t.Fatal("expected invariant error")
	}
	if !IsInvariantError(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}
