// Package controller implements the risk-control and solvency-accounting core
// of a multi-asset lending protocol: the shared registry of markets and their
// risk parameters, the per-account membership index, the per-action policy
// gate every market consults before a balance-changing action, and the
// fixed-point liquidity engine behind it.
//
// The execution model is atomic-per-call: every exported operation either
// fully applies its state change or returns an error having applied nothing.
// A single mutex serialises calls; market callbacks (collateral registration,
// snapshot reads) happen while it is held, so market implementations must not
// re-enter the controller except through the two authorised paths
// (UpdateVersion between calls, and the implicit auto-enter inside
// BorrowAllowed).
package controller

import (
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/events"
	"bankcore/fixmath"
	"bankcore/observability/metrics"
)

// Controller owns the shared risk state. It holds no user funds; markets call
// its gate hooks before every balance change and its registry and membership
// state may only be mutated through the operations defined here.
type Controller struct {
	mu sync.RWMutex

	// self identifies this controller instance for cross-market consistency
	// checks (markets record it as their back-reference).
	self  common.Address
	admin common.Address

	guardian           common.Address
	creditLimitManager common.Address
	liquidityMining    LiquidityMining

	oracle               PriceOracle
	closeFactor          fixmath.Exp
	liquidationIncentive fixmath.Exp

	markets    map[common.Address]*marketState
	allMarkets []common.Address
	// delistedMarks survive hard delists forever: a delisted address is never
	// re-listed.
	delistedMarks map[common.Address]bool

	memberships *membershipIndex

	creditLimits map[common.Address]map[common.Address]*big.Int
	supplyCaps   map[common.Address]*big.Int
	borrowCaps   map[common.Address]*big.Int

	pauses pauseState

	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.ControllerMetrics
}

// New constructs a controller. The admin identity is fixed at construction;
// transfers happen through an external migration handshake outside this core.
func New(self, admin common.Address) *Controller {
	return &Controller{
		self:          self,
		admin:         admin,
		markets:       make(map[common.Address]*marketState),
		delistedMarks: make(map[common.Address]bool),
		memberships:   newMembershipIndex(),
		creditLimits:  make(map[common.Address]map[common.Address]*big.Int),
		supplyCaps:    make(map[common.Address]*big.Int),
		borrowCaps:    make(map[common.Address]*big.Int),
		pauses:        newPauseState(),
		emitter:       events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used to broadcast state mutations.
// Passing nil resets the emitter to a no-op implementation.
func (c *Controller) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetLogger wires a structured logger. Nil disables logging.
func (c *Controller) SetLogger(logger *slog.Logger) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// gateActions enumerates the hooks observed per decision, used to
// pre-register the metric label sets so dashboards see every action from the
// first scrape.
var gateActions = []string{
	actionMint, actionRedeem, actionBorrow, actionRepay,
	actionLiquidate, actionSeize, actionTransfer, actionFlashloan,
}

// SetMetrics wires the prometheus collectors. Nil disables observation.
func (c *Controller) SetMetrics(m *metrics.ControllerMetrics) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	for _, action := range gateActions {
		m.InitGateAction(action)
	}
}

// Address returns the identity of this controller instance.
func (c *Controller) Address() common.Address {
	return c.self
}

// Admin returns the fixed admin principal.
func (c *Controller) Admin() common.Address {
	return c.admin
}

// Guardian returns the current pause guardian.
func (c *Controller) Guardian() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guardian
}

// CloseFactor returns the close factor mantissa.
func (c *Controller) CloseFactor() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeFactor.ToBig()
}

// LiquidationIncentive returns the liquidation incentive mantissa.
func (c *Controller) LiquidationIncentive() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liquidationIncentive.ToBig()
}

// CreditLimit returns the fixed borrow limit granted to a protocol account in
// a market. Zero means the account is an ordinary, liquidatable account.
func (c *Controller) CreditLimit(protocol, market common.Address) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneBig(c.creditLimitLocked(protocol, market))
}

// IsCreditAccount reports whether the account holds a non-zero credit limit
// for the market.
func (c *Controller) IsCreditAccount(account, market common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCreditAccountLocked(account, market)
}

func (c *Controller) creditLimitLocked(protocol, market common.Address) *big.Int {
	byMarket, ok := c.creditLimits[protocol]
	if !ok {
		return nil
	}
	return byMarket[market]
}

func (c *Controller) isCreditAccountLocked(account, market common.Address) bool {
	limit := c.creditLimitLocked(account, market)
	return limit != nil && limit.Sign() > 0
}

func (c *Controller) emit(event events.Event) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(event)
}

// observeGate records the outcome of a gate hook on the metrics collectors and
// logs refusals. Hard failures are logged at error level.
func (c *Controller) observeGate(action string, err error) {
	code := "ok"
	if err != nil {
		if refusalCode, ok := RefusalCode(err); ok {
			code = refusalCode.String()
		} else {
			code = "abort"
		}
	}
	c.metrics.ObserveGateDecision(action, code)
	if err == nil || c.logger == nil {
		return
	}
	if _, ok := RefusalCode(err); ok {
		c.logger.Debug("gate refusal", "action", action, "error", err)
		return
	}
	c.logger.Error("gate abort", "action", action, "error", err)
}

func (c *Controller) logAdmin(msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Info(msg, args...)
}
