package controller

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle supplies mantissa-scaled (1e18) underlying prices for markets.
// A zero price signals "no price"; prices are never negative.
type PriceOracle interface {
	Address() common.Address
	UnderlyingPrice(market common.Address) *big.Int
}

// MarketToken is the narrow view of a per-asset market contract consumed by
// the controller. Balance storage, interest accrual and transfer mechanics
// live behind it; the controller only reads.
//
// Calls into a MarketToken must be treated as potentially reentrant: a
// malicious or buggy implementation could call back into the controller.
// The gate therefore never trusts a liquidity result computed before such a
// call without recomputing.
type MarketToken interface {
	Address() common.Address
	// Controller returns the address of the controller instance governing
	// this market, used for cross-market consistency checks during seize.
	Controller() common.Address
	// IsMarketToken is a sanity probe evaluated before listing.
	IsMarketToken() bool
	// AccountSnapshot reports the account's token balance, borrow balance and
	// the stored exchange rate (mantissa-scaled). A non-nil error aborts the
	// whole calling operation.
	AccountSnapshot(account common.Address) (tokenBalance, borrowBalance, exchangeRate *big.Int, err error)
	BorrowBalanceStored(account common.Address) *big.Int
	ExchangeRateStored() *big.Int
	Cash() *big.Int
	TotalBorrows() *big.Int
	TotalReserves() *big.Int
}

// CollateralCapToken is the capability surface of collateral-cap version
// markets. The controller dispatches on the market's recorded version tag,
// never on runtime type inspection alone: a market listed as
// VersionCollateralCap must implement this interface.
type CollateralCapToken interface {
	MarketToken
	RegisterCollateral(account common.Address) error
	UnregisterCollateral(account common.Address) error
}

// LiquidityMining is the rewards module hook. Only the back-reference is
// validated; reward accounting is out of scope.
type LiquidityMining interface {
	Address() common.Address
	Controller() common.Address
}
