// Package devdb models the tuning hardware inventory — frontends, LNBs, the
// dish each LNB points through, and the RF cables that couple them — and
// implements the frontend and LNB arbitration that decides which hardware
// satisfies a tuning request (spec §4.D-F).
package devdb

import "github.com/neumodvb/devcore/internal/chdb"

// Sentinel values shared with chdb's SatPos space; NONE marks "no specific
// value requested", used for pol/band/usals_pos to request exclusivity
// (spec §4.E, §4.F).
const (
	PolNone  = chdb.PolNone
	BandNone Band = -1
)

// Band is the LNB's low/high sub-band selection (spec glossary: Band/Pol).
type Band int

const (
	BandLow Band = iota
	BandHigh
)

// DeliverySystem is a tuning standard a frontend may support.
type DeliverySystem int

const (
	DeliveryDVBS DeliverySystem = iota
	DeliveryDVBC
	DeliveryDVBT
)

// RotorControl selects how (or whether) an LNB's positioner is commanded.
type RotorControl int

const (
	RotorNone RotorControl = iota
	RotorUSALS
	RotorDiseqc12
)

// Capabilities is a bitmask of optional frontend hardware features.
type Capabilities uint32

const (
	CapBlindscan Capabilities = 1 << iota
	CapMultistream
	CapSpectrumFFT
	CapSpectrumSweep
)

// Network is one entry in an LNB's reachable-satellite list: the positions
// it can be pointed to and the priority/move data needed to arbitrate
// between competing requests for that position (spec §3, §4.E step 2).
type Network struct {
	SatPos          chdb.SatPos
	Priority        int32 // negative means "fall back to lnb.Priority"
	UsalsPos        chdb.SatPos
	UsalsMoveAmount int32 // |new - current|, 0.01 degree units
}

// LNBKey identifies an LNB: the card it is wired to, the RF input on that
// card, which dish it sits on, and its own id on that dish (spec §3).
type LNBKey struct {
	CardMAC int64
	RFInput int32
	DishID  int32
	LNBID   int32
}

// LNB is a low-noise block downconverter (spec §3, glossary).
type LNB struct {
	Key          LNBKey
	RotorControl RotorControl
	LOFrequency  [2]uint32 // [low, high] band local-oscillator frequency, kHz
	SwitchFreq   uint32    // band-selection threshold, kHz
	Pols         []chdb.Polarisation
	Priority     int32
	Enabled      bool
	CanBeUsed    bool
	Networks     []Network
	UsalsPos     chdb.SatPos // mirrors the dish's current position
	AdapterName  string      // cached from the FE for display; refreshed on hot-plug
	RFCouplerID  int32
}

// FEKey identifies a frontend: the card's MAC and the frontend's ordinal on
// that card (spec §3).
type FEKey struct {
	AdapterMAC int64
	FrontendNo int32
}

// Subscription is the live reservation an FE record carries while in use
// (spec §3). UseCount == 0 iff the subscription is cleared.
type Subscription struct {
	Owner      int32 // pid; -1 means unreserved
	UseCount   int32
	LNBKey     LNBKey
	Pol        chdb.Polarisation
	Band       Band
	UsalsPos   chdb.SatPos
	Frequency  uint32
	StreamID   int16
}

// Zero reports whether sub is the cleared (unreserved) value.
func (s Subscription) Zero() bool {
	return s.UseCount == 0 && s.Owner == -1
}

// FE is a tuner frontend (spec §3).
type FE struct {
	Key             FEKey
	CardNo          int32
	AdapterNo       int32
	Present         bool
	CanBeUse        bool
	EnableDVBS      bool
	EnableDVBC      bool
	EnableDVBT      bool
	Delsys          []DeliverySystem
	Caps            Capabilities
	Priority        int32
	RFInputs        []int32
	AdapterName     string
	Sub             Subscription
}

// Supports reports whether fe can tune the given delivery system.
func (fe FE) Supports(ds DeliverySystem) bool {
	for _, d := range fe.Delsys {
		if d == ds {
			return true
		}
	}
	return false
}

// ReachesRFInput reports whether fe is wired to rfInput.
func (fe FE) ReachesRFInput(rfInput int32) bool {
	for _, r := range fe.RFInputs {
		if r == rfInput {
			return true
		}
	}
	return false
}

// Usable reports the present/can-be-used gate shared by every selector
// (spec §4.D step 1).
func (fe FE) Usable() bool {
	return fe.Present && fe.CanBeUse
}
