// Package state persists controller snapshots in a key-value store. Each
// snapshot section is RLP-encoded under its own prefixed key so partial reads
// (for inspection tooling) stay cheap and the sections remain independently
// upgradable.
package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"bankcore/controller"
	"bankcore/storage"
)

var (
	keyConfig      = []byte("controller/config")
	keyMarkets     = []byte("controller/markets")
	keyMemberships = []byte("controller/memberships")
	keyCredit      = []byte("controller/credit")
	keySupplyCaps  = []byte("controller/caps/supply")
	keyBorrowCaps  = []byte("controller/caps/borrow")
	keyPauses      = []byte("controller/pauses")
)

// Stored forms mirror the snapshot types with RLP-friendly field layouts.
// They are versioned by key, not by struct tag: a layout change gets a new
// key and a migration, never an in-place reinterpretation.

type storedConfig struct {
	Admin                common.Address
	Guardian             common.Address
	CreditLimitManager   common.Address
	LiquidityMining      common.Address
	CloseFactor          *big.Int
	LiquidationIncentive *big.Int
}

type storedMarket struct {
	Market           common.Address
	Listed           bool
	CollateralFactor *big.Int
	Version          uint8
}

type storedMarkets struct {
	Records       []storedMarket
	DelistedMarks []common.Address
}

type storedMembership struct {
	Account common.Address
	Markets []common.Address
}

type storedCreditLimit struct {
	Protocol common.Address
	Market   common.Address
	Limit    *big.Int
}

type storedCap struct {
	Market common.Address
	Cap    *big.Int
}

type storedPauses struct {
	Transfer        bool
	Seize           bool
	MintPaused      []common.Address
	BorrowPaused    []common.Address
	FlashloanPaused []common.Address
}

// Manager reads and writes controller snapshots against a Database.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) putSection(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	if err := m.db.Put(key, encoded); err != nil {
		return fmt.Errorf("state: put %s: %w", key, err)
	}
	return nil
}

func (m *Manager) getSection(key []byte, out interface{}) error {
	raw, err := m.db.Get(key)
	if err != nil {
		return fmt.Errorf("state: get %s: %w", key, err)
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return fmt.Errorf("state: decode %s: %w", key, err)
	}
	return nil
}

// Save writes the full snapshot. Sections are written individually; the
// config section goes last so a crash mid-save leaves no config key and the
// partial state reads as absent.
func (m *Manager) Save(snap *controller.Snapshot) error {
	if snap == nil {
		return errors.New("state: nil snapshot")
	}

	markets := storedMarkets{DelistedMarks: snap.DelistedMarks}
	for _, ms := range snap.Markets {
		markets.Records = append(markets.Records, storedMarket{
			Market:           ms.Market,
			Listed:           ms.Listed,
			CollateralFactor: ms.CollateralFactor,
			Version:          ms.Version,
		})
	}
	if err := m.putSection(keyMarkets, &markets); err != nil {
		return err
	}

	memberships := make([]storedMembership, 0, len(snap.Memberships))
	for _, ms := range snap.Memberships {
		memberships = append(memberships, storedMembership{Account: ms.Account, Markets: ms.Markets})
	}
	if err := m.putSection(keyMemberships, memberships); err != nil {
		return err
	}

	credits := make([]storedCreditLimit, 0, len(snap.CreditLimits))
	for _, cl := range snap.CreditLimits {
		credits = append(credits, storedCreditLimit{Protocol: cl.Protocol, Market: cl.Market, Limit: cl.Limit})
	}
	if err := m.putSection(keyCredit, credits); err != nil {
		return err
	}

	if err := m.putSection(keySupplyCaps, capsToStored(snap.SupplyCaps)); err != nil {
		return err
	}
	if err := m.putSection(keyBorrowCaps, capsToStored(snap.BorrowCaps)); err != nil {
		return err
	}

	pauses := storedPauses{
		Transfer:        snap.Pauses.Transfer,
		Seize:           snap.Pauses.Seize,
		MintPaused:      snap.Pauses.MintPaused,
		BorrowPaused:    snap.Pauses.BorrowPaused,
		FlashloanPaused: snap.Pauses.FlashloanPaused,
	}
	if err := m.putSection(keyPauses, &pauses); err != nil {
		return err
	}

	config := storedConfig{
		Admin:                snap.Admin,
		Guardian:             snap.Guardian,
		CreditLimitManager:   snap.CreditLimitManager,
		LiquidityMining:      snap.LiquidityMining,
		CloseFactor:          snap.CloseFactor,
		LiquidationIncentive: snap.LiquidationIncentive,
	}
	return m.putSection(keyConfig, &config)
}

// Load reads the persisted snapshot. The boolean reports whether one exists.
func (m *Manager) Load() (*controller.Snapshot, bool, error) {
	exists, err := m.db.Has(keyConfig)
	if err != nil {
		return nil, false, fmt.Errorf("state: probe config: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	var config storedConfig
	if err := m.getSection(keyConfig, &config); err != nil {
		return nil, false, err
	}
	snap := &controller.Snapshot{
		Admin:                config.Admin,
		Guardian:             config.Guardian,
		CreditLimitManager:   config.CreditLimitManager,
		LiquidityMining:      config.LiquidityMining,
		CloseFactor:          config.CloseFactor,
		LiquidationIncentive: config.LiquidationIncentive,
	}

	var markets storedMarkets
	if err := m.getSection(keyMarkets, &markets); err != nil {
		return nil, false, err
	}
	for _, ms := range markets.Records {
		snap.Markets = append(snap.Markets, controller.MarketSnapshot{
			Market:           ms.Market,
			Listed:           ms.Listed,
			CollateralFactor: ms.CollateralFactor,
			Version:          ms.Version,
		})
	}
	snap.DelistedMarks = markets.DelistedMarks

	var memberships []storedMembership
	if err := m.getSection(keyMemberships, &memberships); err != nil {
		return nil, false, err
	}
	for _, ms := range memberships {
		snap.Memberships = append(snap.Memberships, controller.MembershipSnapshot{Account: ms.Account, Markets: ms.Markets})
	}

	var credits []storedCreditLimit
	if err := m.getSection(keyCredit, &credits); err != nil {
		return nil, false, err
	}
	for _, cl := range credits {
		snap.CreditLimits = append(snap.CreditLimits, controller.CreditLimitSnapshot{Protocol: cl.Protocol, Market: cl.Market, Limit: cl.Limit})
	}

	var supplyCaps, borrowCaps []storedCap
	if err := m.getSection(keySupplyCaps, &supplyCaps); err != nil {
		return nil, false, err
	}
	if err := m.getSection(keyBorrowCaps, &borrowCaps); err != nil {
		return nil, false, err
	}
	snap.SupplyCaps = capsFromStored(supplyCaps)
	snap.BorrowCaps = capsFromStored(borrowCaps)

	var pauses storedPauses
	if err := m.getSection(keyPauses, &pauses); err != nil {
		return nil, false, err
	}
	snap.Pauses = controller.PauseSnapshot{
		Transfer:        pauses.Transfer,
		Seize:           pauses.Seize,
		MintPaused:      pauses.MintPaused,
		BorrowPaused:    pauses.BorrowPaused,
		FlashloanPaused: pauses.FlashloanPaused,
	}
	return snap, true, nil
}

func capsToStored(caps []controller.CapSnapshot) []storedCap {
	stored := make([]storedCap, 0, len(caps))
	for _, c := range caps {
		stored = append(stored, storedCap{Market: c.Market, Cap: c.Cap})
	}
	return stored
}

func capsFromStored(stored []storedCap) []controller.CapSnapshot {
	caps := make([]controller.CapSnapshot, 0, len(stored))
	for _, c := range stored {
		caps = append(caps, controller.CapSnapshot{Market: c.Market, Cap: c.Cap})
	}
	return caps
}
