package gateway

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"bankcore/controller"
)

var (
	ctrlAddr  = common.BytesToAddress([]byte{0xCC})
	adminAddr = common.BytesToAddress([]byte{0xAA})
)

type stubToken struct {
	address      common.Address
	balance      *big.Int
	borrow       *big.Int
	exchangeRate *big.Int
}

func (t *stubToken) Address() common.Address    { return t.address }
func (t *stubToken) Controller() common.Address { return ctrlAddr }
func (t *stubToken) IsMarketToken() bool        { return true }

func (t *stubToken) AccountSnapshot(common.Address) (*big.Int, *big.Int, *big.Int, error) {
	return new(big.Int).Set(t.balance), new(big.Int).Set(t.borrow), new(big.Int).Set(t.exchangeRate), nil
}

func (t *stubToken) BorrowBalanceStored(common.Address) *big.Int { return new(big.Int).Set(t.borrow) }
func (t *stubToken) ExchangeRateStored() *big.Int                { return new(big.Int).Set(t.exchangeRate) }
func (t *stubToken) Cash() *big.Int                              { return big.NewInt(0) }
func (t *stubToken) TotalBorrows() *big.Int                      { return big.NewInt(0) }
func (t *stubToken) TotalReserves() *big.Int                     { return big.NewInt(0) }

type stubOracle struct {
	prices map[common.Address]*big.Int
}

func (o *stubOracle) Address() common.Address { return common.BytesToAddress([]byte{0x0E}) }

func (o *stubOracle) UnderlyingPrice(market common.Address) *big.Int {
	if price, ok := o.prices[market]; ok {
		return new(big.Int).Set(price)
	}
	return big.NewInt(0)
}

// newTestServer wires a controller with one entered market worth 100 wei of
// borrowing power and a second market the oracle cannot price.
func newTestServer(t *testing.T) (http.Handler, common.Address, common.Address, common.Address) {
	t.Helper()
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	ctrl := controller.New(ctrlAddr, adminAddr)
	priced := &stubToken{
		address:      common.BytesToAddress([]byte{0x01}),
		balance:      big.NewInt(100),
		borrow:       big.NewInt(0),
		exchangeRate: new(big.Int).Set(one),
	}
	unpriced := &stubToken{
		address:      common.BytesToAddress([]byte{0x02}),
		balance:      big.NewInt(10),
		borrow:       big.NewInt(0),
		exchangeRate: new(big.Int).Set(one),
	}
	oracle := &stubOracle{prices: map[common.Address]*big.Int{
		priced.address: new(big.Int).Mul(big.NewInt(2), one),
	}}
	if err := ctrl.SetPriceOracle(adminAddr, oracle); err != nil {
		t.Fatalf("set oracle: %v", err)
	}
	for _, token := range []*stubToken{priced, unpriced} {
		if err := ctrl.SupportMarket(adminAddr, token, controller.VersionStandard); err != nil {
			t.Fatalf("support %s: %v", token.address.Hex(), err)
		}
	}
	half := new(big.Int).Div(one, big.NewInt(2))
	if err := ctrl.SetCollateralFactor(adminAddr, priced.address, half); err != nil {
		t.Fatalf("collateral factor: %v", err)
	}
	if err := ctrl.SetSupplyCap(adminAddr, priced.address, big.NewInt(5000)); err != nil {
		t.Fatalf("supply cap: %v", err)
	}

	solvent := common.BytesToAddress([]byte{0x10})
	if err := ctrl.EnterMarket(solvent, priced.address); err != nil {
		t.Fatalf("enter: %v", err)
	}
	stuck := common.BytesToAddress([]byte{0x11})
	if err := ctrl.EnterMarket(stuck, unpriced.address); err != nil {
		t.Fatalf("enter unpriced: %v", err)
	}
	return New(ctrl, nil), priced.address, solvent, stuck
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	handler, _, _, _ := newTestServer(t)
	rec := doGet(t, handler, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestListMarkets(t *testing.T) {
	handler, market, _, _ := newTestServer(t)
	rec := doGet(t, handler, "/v1/markets")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []marketView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("markets = %d", len(views))
	}
	var found *marketView
	for i := range views {
		if views[i].Address == market.Hex() {
			found = &views[i]
		}
	}
	if found == nil {
		t.Fatalf("market %s missing from %v", market.Hex(), views)
	}
	if !found.Listed || found.Delisted {
		t.Fatalf("market flags = %+v", found)
	}
	if found.CollateralFactor != "500000000000000000" {
		t.Fatalf("collateral factor = %s", found.CollateralFactor)
	}
	if found.SupplyCap != "5000" {
		t.Fatalf("supply cap = %s", found.SupplyCap)
	}
	if found.Version != "standard" {
		t.Fatalf("version = %s", found.Version)
	}
}

func TestGetMarket(t *testing.T) {
	handler, market, _, _ := newTestServer(t)

	rec := doGet(t, handler, "/v1/markets/"+market.Hex())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var view marketView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Address != market.Hex() {
		t.Fatalf("address = %s", view.Address)
	}

	rec = doGet(t, handler, "/v1/markets/"+common.BytesToAddress([]byte{0x99}).Hex())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown market status = %d", rec.Code)
	}

	rec = doGet(t, handler, "/v1/markets/not-hex")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d", rec.Code)
	}
}

func TestAccountMarkets(t *testing.T) {
	handler, market, account, _ := newTestServer(t)
	rec := doGet(t, handler, "/v1/accounts/"+account.Hex()+"/markets")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entered []string
	if err := json.Unmarshal(rec.Body.Bytes(), &entered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entered) != 1 || entered[0] != market.Hex() {
		t.Fatalf("entered = %v", entered)
	}

	rec = doGet(t, handler, "/v1/accounts/"+common.BytesToAddress([]byte{0x77}).Hex()+"/markets")
	var none []string
	if err := json.Unmarshal(rec.Body.Bytes(), &none); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("stranger entered = %v", none)
	}
}

func TestAccountLiquidity(t *testing.T) {
	handler, _, account, _ := newTestServer(t)
	rec := doGet(t, handler, "/v1/accounts/"+account.Hex()+"/liquidity")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var view liquidityView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 100 tokens at exchange rate 1.0, price 2.0, collateral factor 0.5.
	if view.Liquidity != "100" || view.Shortfall != "0" {
		t.Fatalf("liquidity = %+v", view)
	}
}

func TestAccountLiquidityRefusalMapsToConflict(t *testing.T) {
	handler, _, _, stuck := newTestServer(t)
	rec := doGet(t, handler, "/v1/accounts/"+stuck.Hex()+"/liquidity")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var view errorView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Code != controller.CodePriceError.String() {
		t.Fatalf("code = %q", view.Code)
	}
}
