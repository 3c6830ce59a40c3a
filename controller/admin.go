package controller

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/events"
	"bankcore/fixmath"
)

// Close factor and liquidation incentive bounds, 1e18-scaled.
var (
	minCloseFactorMantissa          = big.NewInt(5e16)  // 0.05
	maxCloseFactorMantissa          = big.NewInt(9e17)  // 0.9
	minLiquidationIncentiveMantissa = big.NewInt(1e18)  // 1.0
	maxLiquidationIncentiveMantissa = new(big.Int).Add(big.NewInt(1e18), big.NewInt(5e17)) // 1.5
)

// creditLimitPausedSentinel is the 1-wei limit a guardian pause leaves in
// place: small enough to block further borrowing, non-zero so the account
// keeps its credit-account restrictions until the admin resolves it.
var creditLimitPausedSentinel = big.NewInt(1)

// SetPriceOracle replaces the oracle consulted by all solvency checks.
func (c *Controller) SetPriceOracle(caller common.Address, oracle PriceOracle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set price oracle")
	}
	if oracle == nil {
		return refuse(actionAdminMutation, CodeInvalidParameter, "nil price oracle")
	}
	old := common.Address{}
	if c.oracle != nil {
		old = c.oracle.Address()
	}
	c.oracle = oracle
	c.logAdmin("price oracle changed", "old", old.Hex(), "new", oracle.Address().Hex())
	c.emit(events.PriceOracleChanged{OldOracle: old, NewOracle: oracle.Address()})
	return nil
}

// SetCloseFactor sets the maximum share of an underwater borrow one
// liquidation may repay.
func (c *Controller) SetCloseFactor(caller common.Address, factorMantissa *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set close factor")
	}
	if factorMantissa == nil || factorMantissa.Cmp(minCloseFactorMantissa) < 0 || factorMantissa.Cmp(maxCloseFactorMantissa) > 0 {
		return refusef(actionAdminMutation, CodeInvalidParameter,
			"close factor %s outside [%s, %s]", factorMantissa, minCloseFactorMantissa, maxCloseFactorMantissa)
	}
	factor, err := fixmath.FromBig(factorMantissa)
	if err != nil {
		return err
	}
	old := c.closeFactor.ToBig()
	c.closeFactor = factor
	c.logAdmin("close factor changed", "old", old, "new", factorMantissa)
	c.emit(events.CloseFactorChanged{OldMantissa: old, NewMantissa: cloneBig(factorMantissa)})
	return nil
}

// SetLiquidationIncentive sets the collateral multiplier liquidators receive.
func (c *Controller) SetLiquidationIncentive(caller common.Address, incentiveMantissa *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set liquidation incentive")
	}
	if incentiveMantissa == nil || incentiveMantissa.Cmp(minLiquidationIncentiveMantissa) < 0 || incentiveMantissa.Cmp(maxLiquidationIncentiveMantissa) > 0 {
		return refusef(actionAdminMutation, CodeInvalidParameter,
			"liquidation incentive %s outside [%s, %s]", incentiveMantissa, minLiquidationIncentiveMantissa, maxLiquidationIncentiveMantissa)
	}
	incentive, err := fixmath.FromBig(incentiveMantissa)
	if err != nil {
		return err
	}
	old := c.liquidationIncentive.ToBig()
	c.liquidationIncentive = incentive
	c.logAdmin("liquidation incentive changed", "old", old, "new", incentiveMantissa)
	c.emit(events.LiquidationIncentiveChanged{OldMantissa: old, NewMantissa: cloneBig(incentiveMantissa)})
	return nil
}

// SetGuardian designates the pause guardian. The zero address clears it.
func (c *Controller) SetGuardian(caller, guardian common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set guardian")
	}
	old := c.guardian
	c.guardian = guardian
	c.logAdmin("guardian changed", "old", old.Hex(), "new", guardian.Hex())
	c.emit(events.GuardianChanged{OldGuardian: old, NewGuardian: guardian})
	return nil
}

// SetCreditLimitManager designates the account allowed to manage credit
// limits alongside the admin.
func (c *Controller) SetCreditLimitManager(caller, manager common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set credit limit manager")
	}
	old := c.creditLimitManager
	c.creditLimitManager = manager
	c.logAdmin("credit limit manager changed", "old", old.Hex(), "new", manager.Hex())
	c.emit(events.CreditLimitManagerChanged{OldManager: old, NewManager: manager})
	return nil
}

// SetLiquidityMining installs the liquidity mining module. It must answer to
// this controller. Nil detaches it.
func (c *Controller) SetLiquidityMining(caller common.Address, lm LiquidityMining) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionAdminMutation, CodeUnauthorized, "set liquidity mining")
	}
	old := common.Address{}
	if c.liquidityMining != nil {
		old = c.liquidityMining.Address()
	}
	next := common.Address{}
	if lm != nil {
		if lm.Controller() != c.self {
			return refuse(actionAdminMutation, CodeControllerMismatch, "liquidity mining module answers to another controller")
		}
		next = lm.Address()
	}
	c.liquidityMining = lm
	c.logAdmin("liquidity mining changed", "old", old.Hex(), "new", next.Hex())
	c.emit(events.LiquidityMiningChanged{OldModule: old, NewModule: next})
	return nil
}

// SetCreditLimit grants, adjusts or revokes a protocol account's borrow
// allowance in a market. Callable by the admin or the credit limit manager.
func (c *Controller) SetCreditLimit(caller, protocol, market common.Address, limit *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin && caller != c.creditLimitManager {
		return refuse(actionSetCreditLimit, CodeUnauthorized, caller.Hex())
	}
	if c.markets[market] == nil {
		return refuse(actionSetCreditLimit, CodeMarketNotListed, market.Hex())
	}
	if limit == nil || limit.Sign() < 0 {
		return refuse(actionSetCreditLimit, CodeInvalidParameter, "credit limit must be non-negative")
	}
	old := c.creditLimitLocked(protocol, market)
	c.setCreditLimitLocked(protocol, market, limit)
	c.logAdmin("credit limit changed",
		"protocol", protocol.Hex(), "market", market.Hex(), "old", old, "new", limit)
	c.emit(events.CreditLimitChanged{
		Protocol: protocol,
		Market:   market,
		OldLimit: old,
		NewLimit: cloneBig(limit),
	})
	return nil
}

// PauseCreditLimit shrinks a protocol account's limit to a 1-wei sentinel.
// This is the only credit limit mutation the guardian may perform: it cannot
// grant new credit, only stop further borrowing.
func (c *Controller) PauseCreditLimit(caller, protocol, market common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin && caller != c.guardian {
		return refuse(actionSetCreditLimit, CodeUnauthorized, caller.Hex())
	}
	old := c.creditLimitLocked(protocol, market)
	if old == nil || old.Sign() == 0 {
		return refuse(actionSetCreditLimit, CodeInvalidParameter, "account has no credit limit")
	}
	c.setCreditLimitLocked(protocol, market, creditLimitPausedSentinel)
	c.logAdmin("credit limit paused", "protocol", protocol.Hex(), "market", market.Hex(), "old", old)
	c.emit(events.CreditLimitChanged{
		Protocol: protocol,
		Market:   market,
		OldLimit: old,
		NewLimit: cloneBig(creditLimitPausedSentinel),
	})
	return nil
}

func (c *Controller) setCreditLimitLocked(protocol, market common.Address, limit *big.Int) {
	byMarket := c.creditLimits[protocol]
	if limit.Sign() == 0 {
		if byMarket != nil {
			delete(byMarket, market)
			if len(byMarket) == 0 {
				delete(c.creditLimits, protocol)
			}
		}
		return
	}
	if byMarket == nil {
		byMarket = make(map[common.Address]*big.Int)
		c.creditLimits[protocol] = byMarket
	}
	byMarket[market] = cloneBig(limit)
}

// SetSupplyCap sets a market's supply cap in underlying units. Zero removes
// the cap. Admin only.
func (c *Controller) SetSupplyCap(caller, market common.Address, cap *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionSetCap, CodeUnauthorized, "set supply cap")
	}
	if c.markets[market] == nil {
		return refuse(actionSetCap, CodeMarketNotListed, market.Hex())
	}
	if cap == nil || cap.Sign() < 0 {
		return refuse(actionSetCap, CodeInvalidParameter, "supply cap must be non-negative")
	}
	old := cloneBig(c.supplyCaps[market])
	if cap.Sign() == 0 {
		delete(c.supplyCaps, market)
	} else {
		c.supplyCaps[market] = cloneBig(cap)
	}
	c.logAdmin("supply cap changed", "market", market.Hex(), "old", old, "new", cap)
	c.emit(events.SupplyCapChanged{Market: market, OldCap: old, NewCap: cloneBig(cap)})
	return nil
}

// SetBorrowCap sets a market's borrow cap in underlying units. Zero removes
// the cap. Admin only.
func (c *Controller) SetBorrowCap(caller, market common.Address, cap *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.admin {
		return refuse(actionSetCap, CodeUnauthorized, "set borrow cap")
	}
	if c.markets[market] == nil {
		return refuse(actionSetCap, CodeMarketNotListed, market.Hex())
	}
	if cap == nil || cap.Sign() < 0 {
		return refuse(actionSetCap, CodeInvalidParameter, "borrow cap must be non-negative")
	}
	old := cloneBig(c.borrowCaps[market])
	if cap.Sign() == 0 {
		delete(c.borrowCaps, market)
	} else {
		c.borrowCaps[market] = cloneBig(cap)
	}
	c.logAdmin("borrow cap changed", "market", market.Hex(), "old", old, "new", cap)
	c.emit(events.BorrowCapChanged{Market: market, OldCap: old, NewCap: cloneBig(cap)})
	return nil
}

// pauseAuthority checks the shared rule for pause flags: the admin may flip
// them either way, the guardian may only engage them.
func (c *Controller) pauseAuthority(caller common.Address, paused bool) error {
	if caller == c.admin {
		return nil
	}
	if caller == c.guardian && paused {
		return nil
	}
	return refuse(actionSetPause, CodeUnauthorized, caller.Hex())
}

// SetMintPaused flips the per-market mint pause flag.
func (c *Controller) SetMintPaused(caller, market common.Address, paused bool) error {
	return c.setMarketPause(caller, market, actionMint, paused)
}

// SetBorrowPaused flips the per-market borrow pause flag.
func (c *Controller) SetBorrowPaused(caller, market common.Address, paused bool) error {
	return c.setMarketPause(caller, market, actionBorrow, paused)
}

// SetFlashloanPaused flips the per-market flashloan pause flag.
func (c *Controller) SetFlashloanPaused(caller, market common.Address, paused bool) error {
	return c.setMarketPause(caller, market, actionFlashloan, paused)
}

func (c *Controller) setMarketPause(caller, market common.Address, action string, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pauseAuthority(caller, paused); err != nil {
		return err
	}
	if c.markets[market] == nil {
		return refuse(actionSetPause, CodeMarketNotListed, market.Hex())
	}
	switch action {
	case actionMint:
		c.pauses.mint[market] = paused
	case actionBorrow:
		c.pauses.borrow[market] = paused
	case actionFlashloan:
		c.pauses.flashloan[market] = paused
	}
	c.logAdmin("market action pause changed", "market", market.Hex(), "action", action, "paused", paused)
	c.emit(events.MarketActionPaused{Market: market, Action: action, Paused: paused})
	return nil
}

// SetTransferPaused flips the global transfer pause flag.
func (c *Controller) SetTransferPaused(caller common.Address, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pauseAuthority(caller, paused); err != nil {
		return err
	}
	c.pauses.transfer = paused
	c.logAdmin("transfer pause changed", "paused", paused)
	c.emit(events.ActionPaused{Action: actionTransfer, Paused: paused})
	return nil
}

// SetSeizePaused flips the global seize pause flag.
func (c *Controller) SetSeizePaused(caller common.Address, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pauseAuthority(caller, paused); err != nil {
		return err
	}
	c.pauses.seize = paused
	c.logAdmin("seize pause changed", "paused", paused)
	c.emit(events.ActionPaused{Action: actionSeize, Paused: paused})
	return nil
}
