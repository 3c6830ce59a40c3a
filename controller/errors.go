package controller

import (
	"errors"
	"fmt"
)

// Code classifies a policy refusal. Codes are stable and intended for
// programmatic handling by the calling market; the Detail string is for
// humans.
type Code uint8

const (
	// CodeNoError is the zero value and never appears inside a Refusal.
	CodeNoError Code = iota
	// CodeUnauthorized covers role violations and credit-account policy
	// (credit accounts cannot be liquidated, repaid by third parties, or
	// receive transfers; non-credit accounts cannot borrow).
	CodeUnauthorized
	// CodePaused signals a guardian or admin pause flag blocking the action.
	CodePaused
	// CodeMarketNotListed signals the market is unknown to the registry, or
	// not in the listing state the action requires.
	CodeMarketNotListed
	// CodeMarketAlreadyListed signals an attempt to support a market that is
	// listed or was delisted before; delisted markets are never re-listed.
	CodeMarketAlreadyListed
	// CodeMarketNotDelistable signals a delist attempt while the market still
	// has a non-zero collateral factor or unpaused actions.
	CodeMarketNotDelistable
	// CodeInsufficientLiquidity signals the hypothetical solvency check found
	// a shortfall, or a credit borrow exceeded its fixed limit.
	CodeInsufficientLiquidity
	// CodeInsufficientShortfall signals a liquidation attempt against a
	// solvent borrower.
	CodeInsufficientShortfall
	// CodeTooMuchRepay signals a liquidation repay amount above the close
	// factor bound.
	CodeTooMuchRepay
	// CodeInvalidCollateralFactor signals a collateral factor outside the
	// permitted range.
	CodeInvalidCollateralFactor
	// CodeInvalidParameter signals an out-of-range admin parameter.
	CodeInvalidParameter
	// CodePriceError signals the oracle reported no price (or a non-positive
	// one) for an asset the check depends on.
	CodePriceError
	// CodeSupplyCapReached signals the prospective total supply would not
	// stay strictly under the market supply cap.
	CodeSupplyCapReached
	// CodeBorrowCapReached signals the prospective total borrows would not
	// stay strictly under the market borrow cap.
	CodeBorrowCapReached
	// CodeControllerMismatch signals a seize across markets governed by
	// different controller instances.
	CodeControllerMismatch
	// CodeNonzeroBorrowBalance signals a market exit while the account still
	// owes a borrow balance there.
	CodeNonzeroBorrowBalance
)

var codeNames = map[Code]string{
	CodeNoError:                 "no error",
	CodeUnauthorized:            "unauthorized",
	CodePaused:                  "paused",
	CodeMarketNotListed:         "market not listed",
	CodeMarketAlreadyListed:     "market already listed",
	CodeMarketNotDelistable:     "market not delistable",
	CodeInsufficientLiquidity:   "insufficient liquidity",
	CodeInsufficientShortfall:   "insufficient shortfall",
	CodeTooMuchRepay:            "too much repay",
	CodeInvalidCollateralFactor: "invalid collateral factor",
	CodeInvalidParameter:        "invalid parameter",
	CodePriceError:              "price error",
	CodeSupplyCapReached:        "supply cap reached",
	CodeBorrowCapReached:        "borrow cap reached",
	CodeControllerMismatch:      "controller mismatch",
	CodeNonzeroBorrowBalance:    "nonzero borrow balance",
}

// String renders the canonical code name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Refusal is the soft error channel: a typed, recoverable policy refusal
// returned by the gate hooks and admin operations. The caller may retry with
// different parameters; no state was changed.
type Refusal struct {
	Code   Code
	Action string
	Detail string
}

// Error implements the error interface.
func (r *Refusal) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s refused: %s", r.Action, r.Code)
	}
	return fmt.Sprintf("%s refused: %s (%s)", r.Action, r.Code, r.Detail)
}

func refuse(action string, code Code, detail string) *Refusal {
	return &Refusal{Code: code, Action: action, Detail: detail}
}

func refusef(action string, code Code, format string, args ...interface{}) *Refusal {
	return &Refusal{Code: code, Action: action, Detail: fmt.Sprintf(format, args...)}
}

// RefusalCode extracts the refusal code from an error returned by the
// controller. The second return is false for hard failures (oracle or snapshot
// read errors, invariant violations), which the caller must treat as aborts
// rather than policy outcomes.
func RefusalCode(err error) (Code, bool) {
	var refusal *Refusal
	if errors.As(err, &refusal) {
		return refusal.Code, true
	}
	return CodeNoError, false
}

// InvariantError reports a broken internal invariant, e.g. a divergence
// between the membership flag map and the ordered asset list. It is never
// recoverable by retrying: the process state is corrupt.
type InvariantError struct {
	Op  string
	Msg string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Msg)
}

// IsInvariantError reports whether err wraps an InvariantError.
func IsInvariantError(err error) bool {
	var inv *InvariantError
	return errors.As(err, &inv)
}
