package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/controller"
)

// ControllerParameters is the runtime-ready interpretation of the controller
// section.
type ControllerParameters struct {
	Address              common.Address
	Admin                common.Address
	Guardian             common.Address
	CreditLimitManager   common.Address
	CloseFactor          *big.Int
	LiquidationIncentive *big.Int
}

// MarketParameters is the runtime-ready interpretation of one market seed.
type MarketParameters struct {
	Address          common.Address
	CollateralFactor *big.Int
	Version          controller.MarketVersion
	SupplyCap        *big.Int
	BorrowCap        *big.Int
}

// Parameters converts the controller section into runtime values. The
// controller and admin addresses are mandatory; the rest default to zero.
func (cc ControllerConfig) Parameters() (ControllerParameters, error) {
	normalized := cc.normalise()
	params := ControllerParameters{}
	var err error
	if params.Address, err = parseAddress("Controller.Address", normalized.Address, true); err != nil {
		return params, err
	}
	if params.Admin, err = parseAddress("Controller.Admin", normalized.Admin, true); err != nil {
		return params, err
	}
	if params.Guardian, err = parseAddress("Controller.Guardian", normalized.Guardian, false); err != nil {
		return params, err
	}
	if params.CreditLimitManager, err = parseAddress("Controller.CreditLimitManager", normalized.CreditLimitManager, false); err != nil {
		return params, err
	}
	if params.CloseFactor, err = parseWeiAmount(normalized.CloseFactor); err != nil {
		return params, fmt.Errorf("config: invalid CloseFactor: %w", err)
	}
	if params.LiquidationIncentive, err = parseWeiAmount(normalized.LiquidationIncentive); err != nil {
		return params, fmt.Errorf("config: invalid LiquidationIncentive: %w", err)
	}
	return params, nil
}

// Parameters converts one market seed into runtime values.
func (mc MarketConfig) Parameters() (MarketParameters, error) {
	params := MarketParameters{}
	var err error
	if params.Address, err = parseAddress("Markets.Address", strings.TrimSpace(mc.Address), true); err != nil {
		return params, err
	}
	if params.CollateralFactor, err = parseWeiAmount(mc.CollateralFactor); err != nil {
		return params, fmt.Errorf("config: invalid CollateralFactor for %s: %w", mc.Address, err)
	}
	if params.SupplyCap, err = parseWeiAmount(mc.SupplyCap); err != nil {
		return params, fmt.Errorf("config: invalid SupplyCap for %s: %w", mc.Address, err)
	}
	if params.BorrowCap, err = parseWeiAmount(mc.BorrowCap); err != nil {
		return params, fmt.Errorf("config: invalid BorrowCap for %s: %w", mc.Address, err)
	}
	switch strings.ToLower(strings.TrimSpace(mc.Version)) {
	case "", "standard":
		params.Version = controller.VersionStandard
	case "collateralcap":
		params.Version = controller.VersionCollateralCap
	default:
		return params, fmt.Errorf("config: unknown market version %q for %s", mc.Version, mc.Address)
	}
	return params, nil
}

// parseWeiAmount parses a non-negative decimal wei amount. Underscore digit
// separators and scientific notation ("0.75e18") are accepted as long as the
// result is an integer.
func parseWeiAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	normalized := trimmed
	var exponent int64
	if idx := strings.IndexAny(normalized, "eE"); idx != -1 {
		expPart := strings.TrimSpace(normalized[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		expValue, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		exponent = expValue
		normalized = strings.TrimSpace(normalized[:idx])
	}
	normalized = strings.TrimPrefix(normalized, "+")
	if strings.HasPrefix(normalized, "-") {
		return nil, fmt.Errorf("amount cannot be negative")
	}
	intPart := normalized
	fracPart := ""
	if idx := strings.Index(normalized, "."); idx != -1 {
		intPart = normalized[:idx]
		fracPart = normalized[idx+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("empty amount")
	}
	digits := intPart + fracPart
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("invalid digit %q", r)
		}
	}
	shift := exponent - int64(len(fracPart))
	if shift < 0 {
		// A fractional wei amount is never valid; the trailing digits must
		// all be zero once the exponent is applied.
		cut := len(digits) + int(shift)
		if cut < 0 {
			cut = 0
		}
		for _, r := range digits[cut:] {
			if r != '0' {
				return nil, fmt.Errorf("amount is not an integer number of wei")
			}
		}
		digits = digits[:cut]
		shift = 0
	}
	if digits == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if shift > 0 {
		if shift > 80 {
			return nil, fmt.Errorf("exponent too large")
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil)
		amount.Mul(amount, scale)
	}
	return amount, nil
}
