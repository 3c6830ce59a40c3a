package controller

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"bankcore/fixmath"
)

// AccountLiquidity computes the account's current excess collateral value
// (liquidity) and deficit (shortfall), both denominated in the oracle's
// value unit. Exactly one of the two is non-zero.
func (c *Controller) AccountLiquidity(account common.Address) (liquidity, shortfall *big.Int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hypotheticalLiquidityLocked(account, common.Address{}, nil, nil)
}

// HypotheticalAccountLiquidity computes what the account's liquidity and
// shortfall would be after redeeming redeemTokens of the modified market and
// borrowing borrowAmount of its underlying. Both modifications are modeled on
// the obligation side of the ledger.
func (c *Controller) HypotheticalAccountLiquidity(account, modifiedMarket common.Address, redeemTokens, borrowAmount *big.Int) (liquidity, shortfall *big.Int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hypotheticalLiquidityLocked(account, modifiedMarket, redeemTokens, borrowAmount)
}

// hypotheticalLiquidityLocked walks the account's entered markets and
// accumulates discounted collateral value against borrow obligations. Markets
// with no registry record (hard-delisted) are skipped; soft-delisted markets
// still count so lingering exposure stays visible. Any oracle gap is a
// price-error refusal and any overflow aborts the computation.
func (c *Controller) hypotheticalLiquidityLocked(account, modifiedMarket common.Address, redeemTokens, borrowAmount *big.Int) (*big.Int, *big.Int, error) {
	redeem, err := fixmath.UintFromBig(redeemTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("hypothetical redeem tokens: %w", err)
	}
	borrow, err := fixmath.UintFromBig(borrowAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("hypothetical borrow amount: %w", err)
	}

	sumCollateral := uint256.NewInt(0)
	sumBorrow := uint256.NewInt(0)

	for _, market := range c.memberships.list(account) {
		ms := c.markets[market]
		if ms == nil {
			continue
		}
		token, err := ms.boundToken(market)
		if err != nil {
			return nil, nil, err
		}
		rawBalance, rawBorrow, rawRate, err := token.AccountSnapshot(account)
		if err != nil {
			return nil, nil, fmt.Errorf("account snapshot for %s in %s: %w", account, market, err)
		}
		tokenBalance, err := fixmath.UintFromBig(rawBalance)
		if err != nil {
			return nil, nil, fmt.Errorf("token balance in %s: %w", market, err)
		}
		borrowBalance, err := fixmath.UintFromBig(rawBorrow)
		if err != nil {
			return nil, nil, fmt.Errorf("borrow balance in %s: %w", market, err)
		}
		// Fast path: an untouched market that is not being modified cannot
		// move either total, so the oracle lookup is skipped.
		if tokenBalance.IsZero() && borrowBalance.IsZero() && market != modifiedMarket {
			continue
		}
		exchangeRate, err := fixmath.FromBig(rawRate)
		if err != nil {
			return nil, nil, fmt.Errorf("exchange rate in %s: %w", market, err)
		}

		rawPrice := c.oraclePriceLocked(market)
		if rawPrice == nil || rawPrice.Sign() <= 0 {
			return nil, nil, refuse(actionAccountLiqCheck, CodePriceError, market.Hex())
		}
		price, err := fixmath.FromBig(rawPrice)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle price in %s: %w", market, err)
		}

		// tokensToDenom folds collateral factor, exchange rate and price into
		// one per-token value multiplier.
		factorTimesRate, err := fixmath.Mul(ms.collateralFactor, exchangeRate)
		if err != nil {
			return nil, nil, fmt.Errorf("liquidity math in %s: %w", market, err)
		}
		tokensToDenom, err := fixmath.Mul(factorTimesRate, price)
		if err != nil {
			return nil, nil, fmt.Errorf("liquidity math in %s: %w", market, err)
		}

		if sumCollateral, err = fixmath.MulScalarTruncateAdd(tokensToDenom, tokenBalance, sumCollateral); err != nil {
			return nil, nil, fmt.Errorf("collateral total in %s: %w", market, err)
		}
		if sumBorrow, err = fixmath.MulScalarTruncateAdd(price, borrowBalance, sumBorrow); err != nil {
			return nil, nil, fmt.Errorf("borrow total in %s: %w", market, err)
		}

		if market == modifiedMarket {
			if sumBorrow, err = fixmath.MulScalarTruncateAdd(tokensToDenom, redeem, sumBorrow); err != nil {
				return nil, nil, fmt.Errorf("hypothetical redeem in %s: %w", market, err)
			}
			if sumBorrow, err = fixmath.MulScalarTruncateAdd(price, borrow, sumBorrow); err != nil {
				return nil, nil, fmt.Errorf("hypothetical borrow in %s: %w", market, err)
			}
		}
	}

	c.metrics.ObserveLiquidityCheck()

	collateral := fixmath.NewExp(sumCollateral)
	borrowed := fixmath.NewExp(sumBorrow)
	liquidity := fixmath.SubSaturate(collateral, borrowed)
	shortfall := fixmath.SubSaturate(borrowed, collateral)
	return liquidity.ToBig(), shortfall.ToBig(), nil
}

// SeizeTokens converts a repay amount in the borrowed market's underlying into
// the number of collateral market tokens to seize, applying the protocol-wide
// liquidation incentive.
func (c *Controller) SeizeTokens(marketBorrowed, marketCollateral common.Address, repayAmount *big.Int) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rawPriceBorrowed := c.oraclePriceLocked(marketBorrowed)
	if rawPriceBorrowed == nil || rawPriceBorrowed.Sign() <= 0 {
		return nil, refuse(actionSeize, CodePriceError, marketBorrowed.Hex())
	}
	rawPriceCollateral := c.oraclePriceLocked(marketCollateral)
	if rawPriceCollateral == nil || rawPriceCollateral.Sign() <= 0 {
		return nil, refuse(actionSeize, CodePriceError, marketCollateral.Hex())
	}
	ms := c.markets[marketCollateral]
	if ms == nil {
		return nil, refuse(actionSeize, CodeMarketNotListed, marketCollateral.Hex())
	}
	token, err := ms.boundToken(marketCollateral)
	if err != nil {
		return nil, err
	}

	priceBorrowed, err := fixmath.FromBig(rawPriceBorrowed)
	if err != nil {
		return nil, fmt.Errorf("borrowed market price: %w", err)
	}
	priceCollateral, err := fixmath.FromBig(rawPriceCollateral)
	if err != nil {
		return nil, fmt.Errorf("collateral market price: %w", err)
	}
	exchangeRate, err := fixmath.FromBig(token.ExchangeRateStored())
	if err != nil {
		return nil, fmt.Errorf("collateral exchange rate: %w", err)
	}
	repay, err := fixmath.UintFromBig(repayAmount)
	if err != nil {
		return nil, fmt.Errorf("repay amount: %w", err)
	}

	// seizeTokens = repay * (incentive * priceBorrowed) / (priceCollateral * exchangeRate)
	numerator, err := fixmath.Mul(c.liquidationIncentive, priceBorrowed)
	if err != nil {
		return nil, fmt.Errorf("seize numerator: %w", err)
	}
	denominator, err := fixmath.Mul(priceCollateral, exchangeRate)
	if err != nil {
		return nil, fmt.Errorf("seize denominator: %w", err)
	}
	ratio, err := fixmath.Div(numerator, denominator)
	if err != nil {
		return nil, fmt.Errorf("seize ratio: %w", err)
	}
	seizeTokens, err := fixmath.MulScalarTruncate(ratio, repay)
	if err != nil {
		return nil, fmt.Errorf("seize tokens: %w", err)
	}
	return seizeTokens.ToBig(), nil
}
