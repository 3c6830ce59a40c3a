package controller

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/fixmath"
)

// Snapshot is the full serialisable controller state. All slices are sorted
// by address (membership market lists keep entry order, which is part of the
// state), so two snapshots of equal state are deep-equal and encode to equal
// bytes.
//
// Snapshots carry no MarketToken bindings: after FromSnapshot the embedding
// node must rebind every live market via AttachMarketToken before serving
// traffic.
type Snapshot struct {
	Admin              common.Address
	Guardian           common.Address
	CreditLimitManager common.Address
	LiquidityMining    common.Address

	CloseFactor          *big.Int
	LiquidationIncentive *big.Int

	Markets       []MarketSnapshot
	DelistedMarks []common.Address
	Memberships   []MembershipSnapshot
	CreditLimits  []CreditLimitSnapshot
	SupplyCaps    []CapSnapshot
	BorrowCaps    []CapSnapshot
	Pauses        PauseSnapshot
}

// MarketSnapshot is one registry record. Listed=false means soft-delisted;
// hard-delisted markets appear only in DelistedMarks.
type MarketSnapshot struct {
	Market           common.Address
	Listed           bool
	CollateralFactor *big.Int
	Version          uint8
}

// MembershipSnapshot lists one account's entered markets in entry order.
type MembershipSnapshot struct {
	Account common.Address
	Markets []common.Address
}

// CreditLimitSnapshot is one protocol account's fixed borrow allowance in one
// market.
type CreditLimitSnapshot struct {
	Protocol common.Address
	Market   common.Address
	Limit    *big.Int
}

// CapSnapshot is one market's supply or borrow cap.
type CapSnapshot struct {
	Market common.Address
	Cap    *big.Int
}

// PauseSnapshot carries the global flags and the per-market pause sets.
type PauseSnapshot struct {
	Transfer        bool
	Seize           bool
	MintPaused      []common.Address
	BorrowPaused    []common.Address
	FlashloanPaused []common.Address
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}

func sortedKeys[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for addr := range m {
		keys = append(keys, addr)
	}
	sortAddresses(keys)
	return keys
}

func pausedMarkets(flags map[common.Address]bool) []common.Address {
	var paused []common.Address
	for market, on := range flags {
		if on {
			paused = append(paused, market)
		}
	}
	sortAddresses(paused)
	return paused
}

// Snapshot captures the full controller state.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		Admin:                c.admin,
		Guardian:             c.guardian,
		CreditLimitManager:   c.creditLimitManager,
		CloseFactor:          c.closeFactor.ToBig(),
		LiquidationIncentive: c.liquidationIncentive.ToBig(),
	}
	if c.liquidityMining != nil {
		snap.LiquidityMining = c.liquidityMining.Address()
	}

	for _, market := range sortedKeys(c.markets) {
		ms := c.markets[market]
		snap.Markets = append(snap.Markets, MarketSnapshot{
			Market:           market,
			Listed:           ms.listed,
			CollateralFactor: ms.collateralFactor.ToBig(),
			Version:          uint8(ms.version),
		})
	}
	snap.DelistedMarks = sortedKeys(c.delistedMarks)

	for _, account := range sortedKeys(c.memberships.lists) {
		snap.Memberships = append(snap.Memberships, MembershipSnapshot{
			Account: account,
			Markets: c.memberships.list(account),
		})
	}

	for _, protocol := range sortedKeys(c.creditLimits) {
		byMarket := c.creditLimits[protocol]
		for _, market := range sortedKeys(byMarket) {
			snap.CreditLimits = append(snap.CreditLimits, CreditLimitSnapshot{
				Protocol: protocol,
				Market:   market,
				Limit:    cloneBig(byMarket[market]),
			})
		}
	}

	for _, market := range sortedKeys(c.supplyCaps) {
		snap.SupplyCaps = append(snap.SupplyCaps, CapSnapshot{Market: market, Cap: cloneBig(c.supplyCaps[market])})
	}
	for _, market := range sortedKeys(c.borrowCaps) {
		snap.BorrowCaps = append(snap.BorrowCaps, CapSnapshot{Market: market, Cap: cloneBig(c.borrowCaps[market])})
	}

	snap.Pauses = PauseSnapshot{
		Transfer:        c.pauses.transfer,
		Seize:           c.pauses.seize,
		MintPaused:      pausedMarkets(c.pauses.mint),
		BorrowPaused:    pausedMarkets(c.pauses.borrow),
		FlashloanPaused: pausedMarkets(c.pauses.flashloan),
	}
	return snap
}

// FromSnapshot rebuilds a controller from captured state. Market token
// bindings are not part of the snapshot; callers rebind them through
// AttachMarketToken, and the oracle, emitter, logger and metrics through
// their setters.
func FromSnapshot(self common.Address, snap *Snapshot) (*Controller, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	c := New(self, snap.Admin)
	c.guardian = snap.Guardian
	c.creditLimitManager = snap.CreditLimitManager

	// Snapshots go through the same parameter bounds the admin setters
	// enforce. Zero close factor and incentive mean "never configured" and
	// are allowed; markets must always satisfy their collateral invariant.
	if snap.CloseFactor != nil && snap.CloseFactor.Sign() != 0 {
		if snap.CloseFactor.Cmp(minCloseFactorMantissa) < 0 || snap.CloseFactor.Cmp(maxCloseFactorMantissa) > 0 {
			return nil, fmt.Errorf("close factor %s outside [%s, %s]", snap.CloseFactor, minCloseFactorMantissa, maxCloseFactorMantissa)
		}
	}
	if snap.LiquidationIncentive != nil && snap.LiquidationIncentive.Sign() != 0 {
		if snap.LiquidationIncentive.Cmp(minLiquidationIncentiveMantissa) < 0 || snap.LiquidationIncentive.Cmp(maxLiquidationIncentiveMantissa) > 0 {
			return nil, fmt.Errorf("liquidation incentive %s outside [%s, %s]", snap.LiquidationIncentive, minLiquidationIncentiveMantissa, maxLiquidationIncentiveMantissa)
		}
	}

	var err error
	if c.closeFactor, err = fixmath.FromBig(cloneBig(snap.CloseFactor)); err != nil {
		return nil, fmt.Errorf("close factor: %w", err)
	}
	if c.liquidationIncentive, err = fixmath.FromBig(cloneBig(snap.LiquidationIncentive)); err != nil {
		return nil, fmt.Errorf("liquidation incentive: %w", err)
	}

	for _, m := range snap.Markets {
		if _, exists := c.markets[m.Market]; exists {
			return nil, fmt.Errorf("duplicate market %s in snapshot", m.Market)
		}
		if m.CollateralFactor != nil && m.CollateralFactor.Cmp(maxCollateralFactorMantissa) > 0 {
			return nil, fmt.Errorf("collateral factor %s for %s exceeds maximum %s", m.CollateralFactor, m.Market, maxCollateralFactorMantissa)
		}
		factor, err := fixmath.FromBig(cloneBig(m.CollateralFactor))
		if err != nil {
			return nil, fmt.Errorf("collateral factor for %s: %w", m.Market, err)
		}
		c.markets[m.Market] = &marketState{
			listed:           m.Listed,
			collateralFactor: factor,
			version:          MarketVersion(m.Version),
		}
		c.allMarkets = append(c.allMarkets, m.Market)
		if !m.Listed {
			c.delistedMarks[m.Market] = true
		}
	}
	for _, market := range snap.DelistedMarks {
		c.delistedMarks[market] = true
	}

	for _, membership := range snap.Memberships {
		for _, market := range membership.Markets {
			if !c.memberships.add(membership.Account, market) {
				return nil, fmt.Errorf("duplicate membership %s/%s in snapshot", membership.Account, market)
			}
		}
	}

	for _, cl := range snap.CreditLimits {
		if cl.Limit == nil || cl.Limit.Sign() <= 0 {
			return nil, fmt.Errorf("credit limit for %s/%s must be positive", cl.Protocol, cl.Market)
		}
		c.setCreditLimitLocked(cl.Protocol, cl.Market, cl.Limit)
	}

	for _, cap := range snap.SupplyCaps {
		if cap.Cap == nil || cap.Cap.Sign() <= 0 {
			return nil, fmt.Errorf("supply cap for %s must be positive", cap.Market)
		}
		c.supplyCaps[cap.Market] = cloneBig(cap.Cap)
	}
	for _, cap := range snap.BorrowCaps {
		if cap.Cap == nil || cap.Cap.Sign() <= 0 {
			return nil, fmt.Errorf("borrow cap for %s must be positive", cap.Market)
		}
		c.borrowCaps[cap.Market] = cloneBig(cap.Cap)
	}

	c.pauses.transfer = snap.Pauses.Transfer
	c.pauses.seize = snap.Pauses.Seize
	for _, market := range snap.Pauses.MintPaused {
		c.pauses.mint[market] = true
	}
	for _, market := range snap.Pauses.BorrowPaused {
		c.pauses.borrow[market] = true
	}
	for _, market := range snap.Pauses.FlashloanPaused {
		c.pauses.flashloan[market] = true
	}
	return c, nil
}
