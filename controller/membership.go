package controller

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/events"
)

// membershipIndex tracks which markets each account has entered. It owns two
// redundant views: a flag map for O(1) membership tests and an ordered
// per-account list for liquidity iteration. The two views are only ever
// mutated together through add and remove; divergence between them is a
// programming error, not a recoverable condition.
type membershipIndex struct {
	flags map[membershipKey]bool
	lists map[common.Address][]common.Address
}

type membershipKey struct {
	account common.Address
	market  common.Address
}

func newMembershipIndex() *membershipIndex {
	return &membershipIndex{
		flags: make(map[membershipKey]bool),
		lists: make(map[common.Address][]common.Address),
	}
}

func (ix *membershipIndex) contains(account, market common.Address) bool {
	return ix.flags[membershipKey{account: account, market: market}]
}

// list returns a read-only snapshot of the account's entered markets in entry
// order.
func (ix *membershipIndex) list(account common.Address) []common.Address {
	entered := ix.lists[account]
	if len(entered) == 0 {
		return nil
	}
	return append([]common.Address(nil), entered...)
}

// add records membership in both views. It reports false when the account was
// already a member (the operation is idempotent for callers).
func (ix *membershipIndex) add(account, market common.Address) bool {
	key := membershipKey{account: account, market: market}
	if ix.flags[key] {
		return false
	}
	ix.flags[key] = true
	ix.lists[account] = append(ix.lists[account], market)
	return true
}

// remove deletes membership from both views using swap-and-truncate on the
// ordered list. A flag without a matching list entry means the index is
// corrupt and removal fails with an InvariantError.
func (ix *membershipIndex) remove(account, market common.Address) error {
	key := membershipKey{account: account, market: market}
	if !ix.flags[key] {
		return nil
	}
	entered := ix.lists[account]
	found := -1
	for i, m := range entered {
		if m == market {
			found = i
			break
		}
	}
	if found < 0 {
		return &InvariantError{
			Op:  "membership remove",
			Msg: fmt.Sprintf("flag set for account %s market %s but list entry missing", account, market),
		}
	}
	last := len(entered) - 1
	entered[found] = entered[last]
	ix.lists[account] = entered[:last]
	if last == 0 {
		delete(ix.lists, account)
	}
	delete(ix.flags, key)
	return nil
}

// EnteredMarkets returns the ordered list of markets the account has entered.
func (c *Controller) EnteredMarkets(account common.Address) []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memberships.list(account)
}

// CheckMembership reports whether the account has entered the market.
func (c *Controller) CheckMembership(account, market common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memberships.contains(account, market)
}

// EnterMarkets enters the account into each listed market. The result slice
// is positional: a nil entry means the corresponding market was entered (or
// already held).
func (c *Controller) EnterMarkets(account common.Address, markets []common.Address) []error {
	results := make([]error, len(markets))
	for i, market := range markets {
		results[i] = c.EnterMarket(account, market)
	}
	return results
}

// EnterMarket makes the account a participant of the market. Entering is
// idempotent and requires an actively listed market; soft-delisted markets
// accept no new entrants.
func (c *Controller) EnterMarket(account, market common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enterMarketLocked(account, market)
}

func (c *Controller) enterMarketLocked(account, market common.Address) error {
	ms := c.markets[market]
	if ms == nil || !ms.listed {
		return refuse(actionEnterMarket, CodeMarketNotListed, market.Hex())
	}
	if c.memberships.contains(account, market) {
		return nil
	}
	if ms.version == VersionCollateralCap {
		token, err := ms.boundToken(market)
		if err != nil {
			return err
		}
		capToken, ok := token.(CollateralCapToken)
		if !ok {
			return &InvariantError{
				Op:  actionEnterMarket,
				Msg: fmt.Sprintf("market %s tagged collateralcap without registration interface", market),
			}
		}
		if err := capToken.RegisterCollateral(account); err != nil {
			return fmt.Errorf("register collateral for %s in %s: %w", account, market, err)
		}
	}
	c.memberships.add(account, market)
	c.emit(events.MarketEntered{Market: market, Account: account})
	return nil
}

// ExitMarket removes the account from the market's membership set. It is
// refused while the account still owes a borrow balance there, or when a
// hypothetical redemption of the full token balance would leave the account
// short.
func (c *Controller) ExitMarket(account, market common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.markets[market]
	if ms != nil {
		token, err := ms.boundToken(market)
		if err != nil {
			return err
		}
		tokensHeld, borrowBalance, _, err := token.AccountSnapshot(account)
		if err != nil {
			return fmt.Errorf("account snapshot for %s in %s: %w", account, market, err)
		}
		if borrowBalance != nil && borrowBalance.Sign() != 0 {
			return refuse(actionExitMarket, CodeNonzeroBorrowBalance, market.Hex())
		}
		if err := c.redeemChecksLocked(actionExitMarket, market, account, tokensHeld); err != nil {
			return err
		}
	}
	// A hard-removed market no longer contributes to solvency, so membership
	// can always be dropped.

	if !c.memberships.contains(account, market) {
		return nil
	}
	if ms != nil && ms.version == VersionCollateralCap {
		token, err := ms.boundToken(market)
		if err != nil {
			return err
		}
		capToken, ok := token.(CollateralCapToken)
		if !ok {
			return &InvariantError{
				Op:  actionExitMarket,
				Msg: fmt.Sprintf("market %s tagged collateralcap without registration interface", market),
			}
		}
		if err := capToken.UnregisterCollateral(account); err != nil {
			return fmt.Errorf("unregister collateral for %s in %s: %w", account, market, err)
		}
	}
	if err := c.memberships.remove(account, market); err != nil {
		return err
	}
	c.emit(events.MarketExited{Market: market, Account: account})
	return nil
}
