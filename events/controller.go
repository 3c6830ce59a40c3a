package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeMarketListed is emitted when a market is admitted to the registry.
	TypeMarketListed = "controller.market.listed"
	// TypeMarketDelisted is emitted on both soft and hard delists.
	TypeMarketDelisted = "controller.market.delisted"
	// TypeMarketEntered is emitted when an account joins a market's
	// membership set.
	TypeMarketEntered = "controller.market.entered"
	// TypeMarketExited is emitted when an account leaves a market's
	// membership set.
	TypeMarketExited = "controller.market.exited"
	// TypeCollateralFactorChanged is emitted when a market's collateral
	// factor is updated.
	TypeCollateralFactorChanged = "controller.market.collateral_factor"
	// TypeMarketVersionChanged is emitted when a market reports a new
	// version tag.
	TypeMarketVersionChanged = "controller.market.version"
	// TypeCloseFactorChanged is emitted when the protocol close factor is
	// updated.
	TypeCloseFactorChanged = "controller.close_factor"
	// TypeLiquidationIncentiveChanged is emitted when the liquidation
	// incentive multiplier is updated.
	TypeLiquidationIncentiveChanged = "controller.liquidation_incentive"
	// TypePriceOracleChanged is emitted when the price oracle is replaced.
	TypePriceOracleChanged = "controller.price_oracle"
	// TypeGuardianChanged is emitted when the pause guardian is rotated.
	TypeGuardianChanged = "controller.guardian"
	// TypeCreditLimitManagerChanged is emitted when the delegated credit
	// limit manager is rotated.
	TypeCreditLimitManagerChanged = "controller.credit_limit_manager"
	// TypeLiquidityMiningChanged is emitted when the rewards module address
	// is updated.
	TypeLiquidityMiningChanged = "controller.liquidity_mining"
	// TypeActionPaused is emitted for global pause flag toggles.
	TypeActionPaused = "controller.action.paused"
	// TypeMarketActionPaused is emitted for per-market pause flag toggles.
	TypeMarketActionPaused = "controller.market.action.paused"
	// TypeCreditLimitChanged is emitted when a protocol credit limit is set.
	TypeCreditLimitChanged = "controller.credit_limit"
	// TypeSupplyCapChanged is emitted when a market supply cap is set.
	TypeSupplyCapChanged = "controller.market.supply_cap"
	// TypeBorrowCapChanged is emitted when a market borrow cap is set.
	TypeBorrowCapChanged = "controller.market.borrow_cap"
)

// MarketListed captures admission of a new market to the registry.
type MarketListed struct {
	Market  common.Address
	Version uint8
}

// EventType implements the Event interface.
func (MarketListed) EventType() string { return TypeMarketListed }

// MarketDelisted captures a market removal. Force distinguishes the hard
// delist (full removal) from the soft delist that keeps solvency accounting
// alive for lingering positions.
type MarketDelisted struct {
	Market common.Address
	Force  bool
}

// EventType implements the Event interface.
func (MarketDelisted) EventType() string { return TypeMarketDelisted }

// MarketEntered captures an account joining a market.
type MarketEntered struct {
	Market  common.Address
	Account common.Address
}

// EventType implements the Event interface.
func (MarketEntered) EventType() string { return TypeMarketEntered }

// MarketExited captures an account leaving a market.
type MarketExited struct {
	Market  common.Address
	Account common.Address
}

// EventType implements the Event interface.
func (MarketExited) EventType() string { return TypeMarketExited }

// CollateralFactorChanged carries the old and new mantissa-scaled factors.
type CollateralFactorChanged struct {
	Market      common.Address
	OldMantissa *big.Int
	NewMantissa *big.Int
}

// EventType implements the Event interface.
func (CollateralFactorChanged) EventType() string { return TypeCollateralFactorChanged }

// MarketVersionChanged carries the old and new market version tags.
type MarketVersionChanged struct {
	Market     common.Address
	OldVersion uint8
	NewVersion uint8
}

// EventType implements the Event interface.
func (MarketVersionChanged) EventType() string { return TypeMarketVersionChanged }

// CloseFactorChanged carries the old and new close factor mantissas.
type CloseFactorChanged struct {
	OldMantissa *big.Int
	NewMantissa *big.Int
}

// EventType implements the Event interface.
func (CloseFactorChanged) EventType() string { return TypeCloseFactorChanged }

// LiquidationIncentiveChanged carries the old and new incentive mantissas.
type LiquidationIncentiveChanged struct {
	OldMantissa *big.Int
	NewMantissa *big.Int
}

// EventType implements the Event interface.
func (LiquidationIncentiveChanged) EventType() string { return TypeLiquidationIncentiveChanged }

// PriceOracleChanged records an oracle replacement.
type PriceOracleChanged struct {
	OldOracle common.Address
	NewOracle common.Address
}

// EventType implements the Event interface.
func (PriceOracleChanged) EventType() string { return TypePriceOracleChanged }

// GuardianChanged records rotation of the pause guardian.
type GuardianChanged struct {
	OldGuardian common.Address
	NewGuardian common.Address
}

// EventType implements the Event interface.
func (GuardianChanged) EventType() string { return TypeGuardianChanged }

// CreditLimitManagerChanged records rotation of the credit limit manager.
type CreditLimitManagerChanged struct {
	OldManager common.Address
	NewManager common.Address
}

// EventType implements the Event interface.
func (CreditLimitManagerChanged) EventType() string { return TypeCreditLimitManagerChanged }

// LiquidityMiningChanged records replacement of the rewards module.
type LiquidityMiningChanged struct {
	OldModule common.Address
	NewModule common.Address
}

// EventType implements the Event interface.
func (LiquidityMiningChanged) EventType() string { return TypeLiquidityMiningChanged }

// ActionPaused records a global pause flag toggle (transfer, seize).
type ActionPaused struct {
	Action string
	Paused bool
}

// EventType implements the Event interface.
func (ActionPaused) EventType() string { return TypeActionPaused }

// MarketActionPaused records a per-market pause flag toggle (mint, borrow,
// flashloan).
type MarketActionPaused struct {
	Market common.Address
	Action string
	Paused bool
}

// EventType implements the Event interface.
func (MarketActionPaused) EventType() string { return TypeMarketActionPaused }

// CreditLimitChanged carries the old and new fixed borrow limits for a
// protocol account in a market.
type CreditLimitChanged struct {
	Protocol common.Address
	Market   common.Address
	OldLimit *big.Int
	NewLimit *big.Int
}

// EventType implements the Event interface.
func (CreditLimitChanged) EventType() string { return TypeCreditLimitChanged }

// SupplyCapChanged carries the old and new supply cap for a market. A zero
// cap means unlimited.
type SupplyCapChanged struct {
	Market common.Address
	OldCap *big.Int
	NewCap *big.Int
}

// EventType implements the Event interface.
func (SupplyCapChanged) EventType() string { return TypeSupplyCapChanged }

// BorrowCapChanged carries the old and new borrow cap for a market. A zero
// cap means unlimited.
type BorrowCapChanged struct {
	Market common.Address
	OldCap *big.Int
	NewCap *big.Int
}

// EventType implements the Event interface.
func (BorrowCapChanged) EventType() string { return TypeBorrowCapChanged }
