package controller

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/fixmath"
)

// MarketVersion tags the capability variant of a listed market.
type MarketVersion uint8

const (
	// VersionStandard markets carry no extra registration protocol.
	VersionStandard MarketVersion = iota
	// VersionCollateralCap markets require collateral registration through
	// the CollateralCapToken interface on membership changes.
	VersionCollateralCap
)

// String renders the version tag.
func (v MarketVersion) String() string {
	switch v {
	case VersionStandard:
		return "standard"
	case VersionCollateralCap:
		return "collateralcap"
	}
	return "unknown"
}

// marketState is the registry record for a market that is listed or
// soft-delisted. Hard-delisted markets have no record; only the permanent
// delist mark survives so the address can never be re-listed.
type marketState struct {
	token            MarketToken
	listed           bool
	collateralFactor fixmath.Exp
	version          MarketVersion
}

// pauseState groups the guardian pause switches. Transfer and seize are
// global; mint, borrow and flashloan are per market.
type pauseState struct {
	transfer  bool
	seize     bool
	mint      map[common.Address]bool
	borrow    map[common.Address]bool
	flashloan map[common.Address]bool
}

func newPauseState() pauseState {
	return pauseState{
		mint:      make(map[common.Address]bool),
		borrow:    make(map[common.Address]bool),
		flashloan: make(map[common.Address]bool),
	}
}

// MarketInfo is the read-only view of a registry record exposed to callers
// outside the package (gateway, embedding node).
type MarketInfo struct {
	Address          common.Address
	Listed           bool
	Delisted         bool
	CollateralFactor *big.Int
	Version          MarketVersion
	SupplyCap        *big.Int
	BorrowCap        *big.Int
	MintPaused       bool
	BorrowPaused     bool
	FlashloanPaused  bool
}

// Action names used in refusals, events, logs and metrics labels.
const (
	actionMint            = "mint"
	actionRedeem          = "redeem"
	actionBorrow          = "borrow"
	actionRepay           = "repay"
	actionLiquidate       = "liquidate"
	actionSeize           = "seize"
	actionTransfer        = "transfer"
	actionFlashloan       = "flashloan"
	actionEnterMarket     = "enter market"
	actionExitMarket      = "exit market"
	actionSupportMarket   = "support market"
	actionDelistMarket    = "delist market"
	actionSetFactor       = "set collateral factor"
	actionUpdateVersion   = "update version"
	actionAdminMutation   = "admin mutation"
	actionSetCreditLimit  = "set credit limit"
	actionSetCap          = "set cap"
	actionSetPause        = "set pause"
	actionAccountLiqCheck = "account liquidity"
)

// cloneBig returns a defensive copy, mapping nil to zero.
func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
