// Package gateway exposes the controller's read surface over HTTP. All
// mutating operations stay on the embedding node's internal call path; the
// gateway only serves registry views, membership lists, account liquidity and
// prometheus metrics.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bankcore/controller"
)

// Server holds the handlers behind the read-only API.
type Server struct {
	controller *controller.Controller
	logger     *slog.Logger
}

// New builds the HTTP handler tree.
func New(ctrl *controller.Controller, logger *slog.Logger) http.Handler {
	s := &Server{controller: ctrl, logger: logger}
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(sr chi.Router) {
		sr.Get("/markets", s.listMarkets)
		sr.Get("/markets/{address}", s.getMarket)
		sr.Get("/accounts/{address}/markets", s.accountMarkets)
		sr.Get("/accounts/{address}/liquidity", s.accountLiquidity)
	})
	return r
}

type marketView struct {
	Address          string `json:"address"`
	Listed           bool   `json:"listed"`
	Delisted         bool   `json:"delisted"`
	CollateralFactor string `json:"collateralFactor"`
	Version          string `json:"version"`
	SupplyCap        string `json:"supplyCap"`
	BorrowCap        string `json:"borrowCap"`
	MintPaused       bool   `json:"mintPaused"`
	BorrowPaused     bool   `json:"borrowPaused"`
	FlashloanPaused  bool   `json:"flashloanPaused"`
}

type liquidityView struct {
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

type errorView struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func marketToView(info controller.MarketInfo) marketView {
	return marketView{
		Address:          info.Address.Hex(),
		Listed:           info.Listed,
		Delisted:         info.Delisted,
		CollateralFactor: decimal(info.CollateralFactor),
		Version:          info.Version.String(),
		SupplyCap:        decimal(info.SupplyCap),
		BorrowCap:        decimal(info.BorrowCap),
		MintPaused:       info.MintPaused,
		BorrowPaused:     info.BorrowPaused,
		FlashloanPaused:  info.FlashloanPaused,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.logger != nil {
		s.logger.Error("gateway response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	view := errorView{Error: err.Error()}
	if code, ok := controller.RefusalCode(err); ok {
		view.Code = code.String()
	}
	s.writeJSON(w, status, view)
}

func parseAddressParam(r *http.Request) (common.Address, error) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid hex address")
	}
	return common.HexToAddress(raw), nil
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	infos := s.controller.ListMarkets()
	views := make([]marketView, 0, len(infos))
	for _, info := range infos {
		views = append(views, marketToView(info))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	market, err := parseAddressParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	info, ok := s.controller.MarketInfo(market)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("market not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, marketToView(info))
}

func (s *Server) accountMarkets(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddressParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	entered := s.controller.EnteredMarkets(account)
	views := make([]string, 0, len(entered))
	for _, market := range entered {
		views = append(views, market.Hex())
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) accountLiquidity(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddressParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	liquidity, shortfall, err := s.controller.AccountLiquidity(account)
	if err != nil {
		if _, ok := controller.RefusalCode(err); ok {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		if s.logger != nil {
			s.logger.Error("liquidity query failed", "account", account.Hex(), "error", err)
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, liquidityView{
		Liquidity: decimal(liquidity),
		Shortfall: decimal(shortfall),
	})
}
