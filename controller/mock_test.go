package controller

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/events"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func wei(v int64) *big.Int {
	return big.NewInt(v)
}

// mantissa scales a small decimal into 1e18 fixed point, e.g. mantissa(5, 1)
// is 0.5e18 and mantissa(2, 0) is 2e18.
func mantissa(value int64, decimals int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18-decimals), nil)
	return new(big.Int).Mul(big.NewInt(value), scale)
}

type mockToken struct {
	addr           common.Address
	controllerAddr common.Address
	notMarketToken bool

	balances     map[common.Address]*big.Int
	borrows      map[common.Address]*big.Int
	exchangeRate *big.Int

	cash          *big.Int
	totalBorrows  *big.Int
	totalReserves *big.Int

	snapshotErr error
}

func newMockToken(tokenAddr, controllerAddr common.Address) *mockToken {
	return &mockToken{
		addr:           tokenAddr,
		controllerAddr: controllerAddr,
		balances:       make(map[common.Address]*big.Int),
		borrows:        make(map[common.Address]*big.Int),
		exchangeRate:   mantissa(1, 0),
		cash:           big.NewInt(0),
		totalBorrows:   big.NewInt(0),
		totalReserves:  big.NewInt(0),
	}
}

func (m *mockToken) Address() common.Address    { return m.addr }
func (m *mockToken) Controller() common.Address { return m.controllerAddr }
func (m *mockToken) IsMarketToken() bool        { return !m.notMarketToken }

func (m *mockToken) AccountSnapshot(account common.Address) (*big.Int, *big.Int, *big.Int, error) {
	if m.snapshotErr != nil {
		return nil, nil, nil, m.snapshotErr
	}
	return m.balance(account), m.borrowBalance(account), new(big.Int).Set(m.exchangeRate), nil
}

func (m *mockToken) balance(account common.Address) *big.Int {
	if v, ok := m.balances[account]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockToken) borrowBalance(account common.Address) *big.Int {
	if v, ok := m.borrows[account]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (m *mockToken) BorrowBalanceStored(account common.Address) *big.Int {
	return m.borrowBalance(account)
}

func (m *mockToken) ExchangeRateStored() *big.Int { return new(big.Int).Set(m.exchangeRate) }
func (m *mockToken) Cash() *big.Int               { return new(big.Int).Set(m.cash) }
func (m *mockToken) TotalBorrows() *big.Int       { return new(big.Int).Set(m.totalBorrows) }
func (m *mockToken) TotalReserves() *big.Int      { return new(big.Int).Set(m.totalReserves) }

type mockCapToken struct {
	*mockToken
	registered    map[common.Address]bool
	registerErr   error
	unregisterErr error
}

func newMockCapToken(tokenAddr, controllerAddr common.Address) *mockCapToken {
	return &mockCapToken{
		mockToken:  newMockToken(tokenAddr, controllerAddr),
		registered: make(map[common.Address]bool),
	}
}

func (m *mockCapToken) RegisterCollateral(account common.Address) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered[account] = true
	return nil
}

func (m *mockCapToken) UnregisterCollateral(account common.Address) error {
	if m.unregisterErr != nil {
		return m.unregisterErr
	}
	delete(m.registered, account)
	return nil
}

type mockOracle struct {
	addr   common.Address
	prices map[common.Address]*big.Int
}

func newMockOracle() *mockOracle {
	return &mockOracle{addr: addr(0xFE), prices: make(map[common.Address]*big.Int)}
}

func (o *mockOracle) Address() common.Address { return o.addr }

func (o *mockOracle) UnderlyingPrice(market common.Address) *big.Int {
	if v, ok := o.prices[market]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

type mockMining struct {
	addr           common.Address
	controllerAddr common.Address
}

func (m *mockMining) Address() common.Address    { return m.addr }
func (m *mockMining) Controller() common.Address { return m.controllerAddr }

type capturingEmitter struct {
	events []events.Event
}

func (e *capturingEmitter) Emit(event events.Event) {
	e.events = append(e.events, event)
}

func (e *capturingEmitter) last() events.Event {
	if len(e.events) == 0 {
		return nil
	}
	return e.events[len(e.events)-1]
}

var (
	testControllerAddr = addr(0xCC)
	testAdmin          = addr(0xAA)
	testGuardian       = addr(0xAB)
)

// newTestController builds a controller with an oracle wired through the
// admin path and a capturing emitter attached.
func newTestController(t *testing.T) (*Controller, *mockOracle, *capturingEmitter) {
	t.Helper()
	ctrl := New(testControllerAddr, testAdmin)
	oracle := newMockOracle()
	if err := ctrl.SetPriceOracle(testAdmin, oracle); err != nil {
		t.Fatalf("set oracle: %v", err)
	}
	emitter := &capturingEmitter{}
	ctrl.SetEmitter(emitter)
	return ctrl, oracle, emitter
}

// listStandardMarket lists a plain market with a 1.0 exchange rate and the
// given price and collateral factor mantissas.
func listStandardMarket(t *testing.T, ctrl *Controller, oracle *mockOracle, market common.Address, price, factor *big.Int) *mockToken {
	t.Helper()
	token := newMockToken(market, ctrl.Address())
	if err := ctrl.SupportMarket(testAdmin, token, VersionStandard); err != nil {
		t.Fatalf("support market %s: %v", market, err)
	}
	oracle.prices[market] = price
	if factor != nil && factor.Sign() > 0 {
		if err := ctrl.SetCollateralFactor(testAdmin, market, factor); err != nil {
			t.Fatalf("set collateral factor for %s: %v", market, err)
		}
	}
	return token
}

func expectRefusal(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected refusal %s, got nil", want)
	}
	code, ok := RefusalCode(err)
	if !ok {
		t.Fatalf("expected refusal %s, got hard error: %v", want, err)
	}
	if code != want {
		t.Fatalf("expected refusal %s, got %s: %v", want, code, err)
	}
}
