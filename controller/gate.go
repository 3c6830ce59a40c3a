package controller

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/fixmath"
)

// The gate hooks below are the per-action allow/verify seams every market
// consults. An Allowed hook is a pure validation step: a nil return means the
// market may proceed with the balance change, a *Refusal carries the typed
// policy outcome, and any other error is a hard abort. Verify hooks run after
// the balance change and exist as extension points; apart from RedeemVerify's
// consistency guard they perform no checks.

// MintAllowed gates supplying underlying to a market in exchange for market
// tokens.
func (c *Controller) MintAllowed(market, minter common.Address, mintAmount *big.Int) (err error) {
	defer func() { c.observeGate(actionMint, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pauses.mint[market] {
		return refuse(actionMint, CodePaused, market.Hex())
	}
	if c.isCreditAccountLocked(minter, market) {
		return refuse(actionMint, CodeUnauthorized, "credit accounts cannot mint")
	}
	ms := c.markets[market]
	if ms == nil || !ms.listed {
		return refuse(actionMint, CodeMarketNotListed, market.Hex())
	}
	cap := c.supplyCaps[market]
	if cap != nil && cap.Sign() > 0 {
		token, err := ms.boundToken(market)
		if err != nil {
			return err
		}
		// Prospective total supply in underlying units: cash + borrows −
		// reserves + the incoming mint. Existing balances are never
		// retroactively invalidated; only the new total is checked.
		next := new(big.Int).Add(cloneBig(token.Cash()), cloneBig(token.TotalBorrows()))
		next.Sub(next, cloneBig(token.TotalReserves()))
		next.Add(next, cloneBig(mintAmount))
		if next.Cmp(cap) >= 0 {
			return refusef(actionMint, CodeSupplyCapReached, "next total %s, cap %s", next, cap)
		}
	}
	return nil
}

// MintVerify is the post-mint extension seam.
func (c *Controller) MintVerify(market, minter common.Address, actualMintAmount, mintTokens *big.Int) error {
	return nil
}

// RedeemAllowed gates redeeming market tokens for underlying.
func (c *Controller) RedeemAllowed(market, redeemer common.Address, redeemTokens *big.Int) (err error) {
	defer func() { c.observeGate(actionRedeem, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isCreditAccountLocked(redeemer, market) {
		return refuse(actionRedeem, CodeUnauthorized, "credit accounts cannot redeem")
	}
	return c.redeemChecksLocked(actionRedeem, market, redeemer, redeemTokens)
}

// redeemChecksLocked holds the checks shared by redeem, the transfer source
// side, and market exit: the market must still be known to solvency
// accounting, and when the account participates, a hypothetical redemption
// must leave no shortfall.
func (c *Controller) redeemChecksLocked(action string, market, redeemer common.Address, redeemTokens *big.Int) error {
	if c.markets[market] == nil {
		return refuse(action, CodeMarketNotListed, market.Hex())
	}
	if !c.memberships.contains(redeemer, market) {
		return nil
	}
	_, shortfall, err := c.hypotheticalLiquidityLocked(redeemer, market, redeemTokens, nil)
	if err != nil {
		return err
	}
	if shortfall.Sign() > 0 {
		return refusef(action, CodeInsufficientLiquidity, "shortfall %s", shortfall)
	}
	return nil
}

// RedeemVerify is the post-redeem seam. It asserts the market's accounting
// consistency: underlying cannot leave while zero market tokens burn.
func (c *Controller) RedeemVerify(market, redeemer common.Address, redeemAmount, redeemTokens *big.Int) error {
	if redeemTokens != nil && redeemTokens.Sign() == 0 && redeemAmount != nil && redeemAmount.Sign() > 0 {
		return &InvariantError{
			Op:  actionRedeem,
			Msg: fmt.Sprintf("market %s redeemed %s underlying for zero tokens", market, redeemAmount),
		}
	}
	return nil
}

// BorrowAllowed gates borrowing underlying from a market. Borrowing is
// credit-limit-only: ordinary accounts are refused regardless of solvency,
// and credit accounts are checked against their fixed limit instead of the
// oracle-based collateral check. When the borrower has not yet entered the
// market, only the market contract itself may trigger the implicit enter.
func (c *Controller) BorrowAllowed(caller, market, borrower common.Address, borrowAmount *big.Int) (err error) {
	defer func() { c.observeGate(actionBorrow, err) }()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pauses.borrow[market] {
		return refuse(actionBorrow, CodePaused, market.Hex())
	}
	ms := c.markets[market]
	if ms == nil || !ms.listed {
		return refuse(actionBorrow, CodeMarketNotListed, market.Hex())
	}
	member := c.memberships.contains(borrower, market)
	if !member && caller != market {
		return refuse(actionBorrow, CodeUnauthorized, "only the market may auto-enter a borrower")
	}
	price := c.oraclePriceLocked(market)
	if price == nil || price.Sign() <= 0 {
		return refuse(actionBorrow, CodePriceError, market.Hex())
	}
	token, err := ms.boundToken(market)
	if err != nil {
		return err
	}
	cap := c.borrowCaps[market]
	if cap != nil && cap.Sign() > 0 {
		next := new(big.Int).Add(cloneBig(token.TotalBorrows()), cloneBig(borrowAmount))
		if next.Cmp(cap) >= 0 {
			return refusef(actionBorrow, CodeBorrowCapReached, "next total %s, cap %s", next, cap)
		}
	}
	limit := c.creditLimitLocked(borrower, market)
	if limit == nil || limit.Sign() == 0 {
		return refuse(actionBorrow, CodeUnauthorized, "borrowing requires a credit limit")
	}
	next := new(big.Int).Add(cloneBig(token.BorrowBalanceStored(borrower)), cloneBig(borrowAmount))
	if next.Cmp(limit) > 0 {
		return refusef(actionBorrow, CodeInsufficientLiquidity, "credit balance %s exceeds limit %s", next, limit)
	}
	// The implicit enter is the only state change this hook makes, and it
	// happens last: a refusal above leaves the membership index untouched.
	if !member {
		if err := c.enterMarketLocked(borrower, market); err != nil {
			return err
		}
	}
	return nil
}

// BorrowVerify is the post-borrow extension seam.
func (c *Controller) BorrowVerify(market, borrower common.Address, borrowAmount *big.Int) error {
	return nil
}

// RepayAllowed gates repaying a borrow. Credit accounts may only be repaid by
// themselves.
func (c *Controller) RepayAllowed(market, payer, borrower common.Address, repayAmount *big.Int) (err error) {
	defer func() { c.observeGate(actionRepay, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.markets[market] == nil {
		return refuse(actionRepay, CodeMarketNotListed, market.Hex())
	}
	if c.isCreditAccountLocked(borrower, market) && payer != borrower {
		return refuse(actionRepay, CodeUnauthorized, "third parties cannot repay a credit account")
	}
	return nil
}

// RepayVerify is the post-repay extension seam.
func (c *Controller) RepayVerify(market, payer, borrower common.Address, actualRepayAmount, borrowerIndex *big.Int) error {
	return nil
}

// LiquidateAllowed gates a liquidation: the borrower must be an ordinary
// account in positive shortfall, and the repay amount must stay within the
// close factor share of the outstanding borrow.
func (c *Controller) LiquidateAllowed(marketBorrowed, marketCollateral, liquidator, borrower common.Address, repayAmount *big.Int) (err error) {
	defer func() { c.observeGate(actionLiquidate, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isCreditAccountLocked(borrower, marketBorrowed) {
		return refuse(actionLiquidate, CodeUnauthorized, "credit accounts cannot be liquidated")
	}
	borrowedState := c.markets[marketBorrowed]
	if borrowedState == nil || c.markets[marketCollateral] == nil {
		return refuse(actionLiquidate, CodeMarketNotListed, "both markets must be listed or delisted")
	}
	_, shortfall, err := c.hypotheticalLiquidityLocked(borrower, common.Address{}, nil, nil)
	if err != nil {
		return err
	}
	if shortfall.Sign() == 0 {
		return refuse(actionLiquidate, CodeInsufficientShortfall, "borrower is solvent")
	}
	token, err := borrowedState.boundToken(marketBorrowed)
	if err != nil {
		return err
	}
	borrowBalance, err := fixmath.UintFromBig(token.BorrowBalanceStored(borrower))
	if err != nil {
		return fmt.Errorf("borrow balance in %s: %w", marketBorrowed, err)
	}
	maxClose, err := fixmath.MulScalarTruncate(c.closeFactor, borrowBalance)
	if err != nil {
		return fmt.Errorf("max close: %w", err)
	}
	repay, err := fixmath.UintFromBig(repayAmount)
	if err != nil {
		return fmt.Errorf("repay amount: %w", err)
	}
	if repay.Cmp(maxClose) > 0 {
		return refusef(actionLiquidate, CodeTooMuchRepay, "repay %s exceeds max close %s", repay, maxClose)
	}
	return nil
}

// LiquidateVerify is the post-liquidation extension seam.
func (c *Controller) LiquidateVerify(marketBorrowed, marketCollateral, liquidator, borrower common.Address, actualRepayAmount, seizeTokens *big.Int) error {
	return nil
}

// SeizeAllowed gates the collateral seizure leg of a liquidation. Both
// markets must answer to the same controller instance.
func (c *Controller) SeizeAllowed(marketCollateral, marketBorrowed, liquidator, borrower common.Address, seizeTokens *big.Int) (err error) {
	defer func() { c.observeGate(actionSeize, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pauses.seize {
		return refuse(actionSeize, CodePaused, "seizing is paused")
	}
	if c.isCreditAccountLocked(borrower, marketBorrowed) {
		return refuse(actionSeize, CodeUnauthorized, "credit accounts cannot be seized")
	}
	collateralState := c.markets[marketCollateral]
	borrowedState := c.markets[marketBorrowed]
	if collateralState == nil || borrowedState == nil {
		return refuse(actionSeize, CodeMarketNotListed, "both markets must be listed or delisted")
	}
	collateralToken, err := collateralState.boundToken(marketCollateral)
	if err != nil {
		return err
	}
	borrowedToken, err := borrowedState.boundToken(marketBorrowed)
	if err != nil {
		return err
	}
	if collateralToken.Controller() != borrowedToken.Controller() || collateralToken.Controller() != c.self {
		return refuse(actionSeize, CodeControllerMismatch, "markets answer to different controllers")
	}
	return nil
}

// SeizeVerify is the post-seize extension seam.
func (c *Controller) SeizeVerify(marketCollateral, marketBorrowed, liquidator, borrower common.Address, seizeTokens *big.Int) error {
	return nil
}

// TransferAllowed gates moving market tokens between accounts. The source
// side is subject to the same solvency check as a redemption; credit accounts
// never receive transfers.
func (c *Controller) TransferAllowed(market, src, dst common.Address, transferTokens *big.Int) (err error) {
	defer func() { c.observeGate(actionTransfer, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pauses.transfer {
		return refuse(actionTransfer, CodePaused, "transfers are paused")
	}
	if c.isCreditAccountLocked(dst, market) {
		return refuse(actionTransfer, CodeUnauthorized, "credit accounts cannot receive transfers")
	}
	return c.redeemChecksLocked(actionTransfer, market, src, transferTokens)
}

// TransferVerify is the post-transfer extension seam.
func (c *Controller) TransferVerify(market, src, dst common.Address, transferTokens *big.Int) error {
	return nil
}

// FlashloanAllowed reflects the per-market flashloan pause flag.
func (c *Controller) FlashloanAllowed(market, receiver common.Address, amount *big.Int) (err error) {
	defer func() { c.observeGate(actionFlashloan, err) }()
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pauses.flashloan[market] {
		return refuse(actionFlashloan, CodePaused, market.Hex())
	}
	return nil
}

// FlashloanVerify is the post-flashloan extension seam.
func (c *Controller) FlashloanVerify(market, receiver common.Address, amount *big.Int) error {
	return nil
}
