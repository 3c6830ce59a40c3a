package controller

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/events"
	"bankcore/fixmath"
)

// maxCollateralFactorMantissa caps the usable fraction of supplied value at
// 0.9.
var maxCollateralFactorMantissa = big.NewInt(9e17)

func (ms *marketState) boundToken(market common.Address) (MarketToken, error) {
	if ms.token == nil {
		return nil, fmt.Errorf("market %s has no bound token contract", market)
	}
	return ms.token, nil
}

// IsListed reports whether the market is actively listed.
func (c *Controller) IsListed(market common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms := c.markets[market]
	return ms != nil && ms.listed
}

// IsListedOrDelisted reports whether the market is actively listed or
// soft-delisted. Solvency accounting uses this everywhere legacy exposure
// must still be seen.
func (c *Controller) IsListedOrDelisted(market common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.markets[market] != nil
}

// Markets returns the enumerable market list (listed and soft-delisted) in
// listing order.
func (c *Controller) Markets() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]common.Address(nil), c.allMarkets...)
}

// MarketInfo returns the registry view of a market.
func (c *Controller) MarketInfo(market common.Address) (MarketInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms := c.markets[market]
	if ms == nil {
		return MarketInfo{}, false
	}
	return c.marketInfoLocked(market, ms), true
}

// ListMarkets returns registry views for every listed and soft-delisted
// market in listing order.
func (c *Controller) ListMarkets() []MarketInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]MarketInfo, 0, len(c.allMarkets))
	for _, market := range c.allMarkets {
		ms := c.markets[market]
		if ms == nil {
			continue
		}
		infos = append(infos, c.marketInfoLocked(market, ms))
	}
	return infos
}

func (c *Controller) marketInfoLocked(market common.Address, ms *marketState) MarketInfo {
	return MarketInfo{
		Address:          market,
		Listed:           ms.listed,
		Delisted:         c.delistedMarks[market],
		CollateralFactor: ms.collateralFactor.ToBig(),
		Version:          ms.version,
		SupplyCap:        cloneBig(c.supplyCaps[market]),
		BorrowCap:        cloneBig(c.borrowCaps[market]),
		MintPaused:       c.pauses.mint[market],
		BorrowPaused:     c.pauses.borrow[market],
		FlashloanPaused:  c.pauses.flashloan[market],
	}
}

// SupportMarket admits a market to the registry with a zero collateral factor
// and the given version tag. Admin only. An address that was ever delisted is
// never re-listed.
func (c *Controller) SupportMarket(caller common.Address, token MarketToken, version MarketVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionSupportMarket, CodeUnauthorized, "admin only")
	}
	if token == nil {
		return refuse(actionSupportMarket, CodeInvalidParameter, "nil market token")
	}
	if !token.IsMarketToken() {
		return fmt.Errorf("support market: %s failed the market token probe", token.Address())
	}
	market := token.Address()
	if c.markets[market] != nil {
		return refuse(actionSupportMarket, CodeMarketAlreadyListed, market.Hex())
	}
	if c.delistedMarks[market] {
		return refusef(actionSupportMarket, CodeMarketAlreadyListed, "%s was delisted and cannot return", market)
	}
	if version == VersionCollateralCap {
		if _, ok := token.(CollateralCapToken); !ok {
			return fmt.Errorf("support market: %s tagged collateralcap without registration interface", market)
		}
	}
	for _, existing := range c.allMarkets {
		if existing == market {
			return &InvariantError{Op: actionSupportMarket, Msg: fmt.Sprintf("market %s already in enumerable list", market)}
		}
	}

	c.markets[market] = &marketState{
		token:            token,
		listed:           true,
		collateralFactor: fixmath.Zero(),
		version:          version,
	}
	c.allMarkets = append(c.allMarkets, market)
	c.metrics.SetMarketsListed(len(c.allMarkets))
	c.emit(events.MarketListed{Market: market, Version: uint8(version)})
	c.logAdmin("market listed", "market", market.Hex(), "version", version.String())
	return nil
}

// DelistMarket removes a market from new-activity eligibility. Admin only,
// and only once the collateral factor is zero and mint, borrow and flashloan
// are all paused for the market. With force=false the delist is soft: the
// registry record survives so lingering positions stay in solvency
// accounting. With force=true the record is removed entirely and the market
// leaves the enumerable list.
func (c *Controller) DelistMarket(caller, market common.Address, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionDelistMarket, CodeUnauthorized, "admin only")
	}
	ms := c.markets[market]
	if ms == nil {
		return refuse(actionDelistMarket, CodeMarketNotListed, market.Hex())
	}
	if !ms.collateralFactor.IsZero() {
		return refuse(actionDelistMarket, CodeMarketNotDelistable, "collateral factor not zero")
	}
	if !c.pauses.mint[market] || !c.pauses.borrow[market] || !c.pauses.flashloan[market] {
		return refuse(actionDelistMarket, CodeMarketNotDelistable, "mint, borrow and flashloan must all be paused")
	}

	if !force {
		if !ms.listed {
			return refuse(actionDelistMarket, CodeMarketNotDelistable, "already soft-delisted")
		}
		ms.listed = false
		c.delistedMarks[market] = true
		c.emit(events.MarketDelisted{Market: market, Force: false})
		c.logAdmin("market soft-delisted", "market", market.Hex())
		return nil
	}

	delete(c.markets, market)
	c.delistedMarks[market] = true
	for i, existing := range c.allMarkets {
		if existing == market {
			last := len(c.allMarkets) - 1
			c.allMarkets[i] = c.allMarkets[last]
			c.allMarkets = c.allMarkets[:last]
			break
		}
	}
	c.metrics.SetMarketsListed(len(c.allMarkets))
	c.emit(events.MarketDelisted{Market: market, Force: true})
	c.logAdmin("market hard-delisted", "market", market.Hex())
	return nil
}

// SetCollateralFactor updates the fraction of a market's supplied value
// usable as borrowing power. Admin only; the factor is capped at 0.9 and a
// non-zero factor requires a live oracle price so positions cannot be valued
// against nothing.
func (c *Controller) SetCollateralFactor(caller, market common.Address, factorMantissa *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionSetFactor, CodeUnauthorized, "admin only")
	}
	ms := c.markets[market]
	if ms == nil || !ms.listed {
		return refuse(actionSetFactor, CodeMarketNotListed, market.Hex())
	}
	if factorMantissa == nil || factorMantissa.Sign() < 0 {
		return refuse(actionSetFactor, CodeInvalidCollateralFactor, "factor must be non-negative")
	}
	if factorMantissa.Cmp(maxCollateralFactorMantissa) > 0 {
		return refusef(actionSetFactor, CodeInvalidCollateralFactor, "%s exceeds maximum 0.9e18", factorMantissa)
	}
	factor, err := fixmath.FromBig(factorMantissa)
	if err != nil {
		return refuse(actionSetFactor, CodeInvalidCollateralFactor, err.Error())
	}
	if !factor.IsZero() {
		price := c.oraclePriceLocked(market)
		if price == nil || price.Sign() <= 0 {
			return refuse(actionSetFactor, CodePriceError, "non-zero factor requires an oracle price")
		}
	}

	old := ms.collateralFactor.ToBig()
	ms.collateralFactor = factor
	c.emit(events.CollateralFactorChanged{Market: market, OldMantissa: old, NewMantissa: factor.ToBig()})
	c.logAdmin("collateral factor changed", "market", market.Hex(), "old", old.String(), "new", factorMantissa.String())
	return nil
}

// UpdateVersion records a market's new version tag. Only the market contract
// itself may call it, and it no-ops when the market is not actively listed.
func (c *Controller) UpdateVersion(caller, market common.Address, version MarketVersion) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != market {
		return refuse(actionUpdateVersion, CodeUnauthorized, "market contract only")
	}
	ms := c.markets[market]
	if ms == nil || !ms.listed {
		return nil
	}
	if version == VersionCollateralCap {
		if _, ok := ms.token.(CollateralCapToken); !ok {
			return fmt.Errorf("update version: %s tagged collateralcap without registration interface", market)
		}
	}
	old := ms.version
	if old == version {
		return nil
	}
	ms.version = version
	c.emit(events.MarketVersionChanged{Market: market, OldVersion: uint8(old), NewVersion: uint8(version)})
	return nil
}

func (c *Controller) oraclePriceLocked(market common.Address) *big.Int {
	if c.oracle == nil {
		return nil
	}
	return c.oracle.UnderlyingPrice(market)
}

// AttachMarketToken rebinds a market contract after a snapshot restore. The
// market must already exist in the registry and the token's address and
// version capability must match the stored record.
func (c *Controller) AttachMarketToken(token MarketToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == nil {
		return fmt.Errorf("attach market token: nil token")
	}
	market := token.Address()
	ms := c.markets[market]
	if ms == nil {
		return fmt.Errorf("attach market token: %s not in registry", market)
	}
	if ms.version == VersionCollateralCap {
		if _, ok := token.(CollateralCapToken); !ok {
			return fmt.Errorf("attach market token: %s tagged collateralcap without registration interface", market)
		}
	}
	ms.token = token
	return nil
}
