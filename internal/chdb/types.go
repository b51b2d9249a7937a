// Package chdb models DVB transport-stream ("mux") identity and provides the
// fuzzy matching, store lookups and provenance-aware merge used to reconcile
// an incoming mux descriptor with whatever the store already holds for the
// same physical transponder.
package chdb

import "fmt"

// Polarisation selects the LNB feed voltage (H/V) or, for circular systems,
// handedness (L/R). NONE marks an exclusive/non-satellite subscription.
type Polarisation int

const (
	PolNone Polarisation = iota
	PolH
	PolV
	PolL
	PolR
)

// polGroup collapses L<->H and R<->V so matches_physical_fuzzy can treat a
// mux described in linear or circular terms as the same carrier (spec §4.A).
func polGroup(p Polarisation) int {
	return int(p-PolH) &^ 0x2
}

// Modulation is the DVB modulation scheme carried by a mux; its value does
// not participate in physical-carrier matching, only in exact tuning_is_same
// comparisons.
type Modulation int

// SatPos sentinels. Real satellite positions are encoded in units of 0.01
// degrees (e.g. 192 == 1.92°E); the sentinels below share the same integer
// space so a mux_key_t.sat_pos field can carry either.
const (
	SatPosNone SatPos = -00001
	SatPosDVBC SatPos = -00002
	SatPosDVBT SatPos = -00003
)

// SatPos is either a satellite position in units of 0.01 degrees, or one of
// the SatPosNone/SatPosDVBC/SatPosDVBT sentinels.
type SatPos int32

// TuneSrc labels how authoritative a mux's tuning parameters are. The
// provenance lattice used by UpdateMux orders these from least to most
// authoritative (TEMPLATE < AUTO < DRIVER < NIT_OTHER_NON_TUNED <
// NIT_ACTUAL_NON_TUNED < NIT_ACTUAL_TUNED < USER).
type TuneSrc int

const (
	TuneSrcUnknown TuneSrc = iota
	TuneSrcTemplate
	TuneSrcAuto
	TuneSrcDriver
	TuneSrcNITOtherNonTuned
	TuneSrcNITActualNonTuned
	TuneSrcNITActualTuned
	TuneSrcUser
)

func (t TuneSrc) String() string {
	switch t {
	case TuneSrcTemplate:
		return "TEMPLATE"
	case TuneSrcAuto:
		return "AUTO"
	case TuneSrcDriver:
		return "DRIVER"
	case TuneSrcNITOtherNonTuned:
		return "NIT_OTHER_NON_TUNED"
	case TuneSrcNITActualNonTuned:
		return "NIT_ACTUAL_NON_TUNED"
	case TuneSrcNITActualTuned:
		return "NIT_ACTUAL_TUNED"
	case TuneSrcUser:
		return "USER"
	default:
		return "UNKNOWN"
	}
}

// ScanStatus tracks whether a mux is currently being scanned by some
// subscription.
type ScanStatus int

const (
	ScanStatusIdle ScanStatus = iota
	ScanStatusPending
	ScanStatusActive
	ScanStatusDone
)

// EPGType is a bitmask of which EPG table types (e.g. Freesat, ViaSat) this
// mux is known to carry; kept opaque here since EPG processing is out of
// scope (spec §1).
type EPGType uint32

// MuxKey is the composite identity of a mux: (sat_pos, network_id, ts_id,
// t2mi_pid, extra_id). extra_id disambiguates templates and genuine
// duplicates sharing the other four fields.
type MuxKey struct {
	SatPos    SatPos
	NetworkID uint16
	TSID      uint16
	T2MIPID   int16
	ExtraID   uint16
}

func (k MuxKey) String() string {
	return fmt.Sprintf("sat=%d nid=%d tsid=%d t2mi=%d extra=%d", k.SatPos, k.NetworkID, k.TSID, k.T2MIPID, k.ExtraID)
}

// MuxCommon is the part of a mux record shared across all three delivery
// systems: scan bookkeeping and provenance.
type MuxCommon struct {
	ScanStatus   ScanStatus
	ScanID       uint64 // non-zero iff ScanStatus is PENDING or ACTIVE (spec §3 invariant)
	ScanResult   int
	ScanDuration int32 // seconds
	ScanTime     int64 // unix seconds
	EPGScan      bool
	NumServices  int
	EPGTypes     EPGType
	TuneSrc      TuneSrc
	MTime        int64 // unix seconds
}

// DVBSMux is a satellite transponder.
type DVBSMux struct {
	K            MuxKey
	Frequency    uint32 // kHz
	Pol          Polarisation
	SymbolRate   uint32 // symbols/sec
	StreamID     int16  // -1 if not multistream
	Modulation   Modulation
	C            MuxCommon
}

// DVBCMux is a cable transponder.
type DVBCMux struct {
	K          MuxKey
	Frequency  uint32 // kHz
	SymbolRate uint32
	StreamID   int16
	Modulation Modulation
	C          MuxCommon
}

// DVBTMux is a terrestrial transponder.
type DVBTMux struct {
	K          MuxKey
	Frequency  uint32 // kHz
	StreamID   int16
	Modulation Modulation
	C          MuxCommon
}

// Kind discriminates the tagged variant carried by AnyMux.
type Kind int

const (
	KindDVBS Kind = iota
	KindDVBC
	KindDVBT
)

// AnyMux is the tagged-variant mux: exactly one of S/C/T is meaningful,
// selected by Kind. This models the source's std::variant<dvbs_mux_t,
// dvbc_mux_t, dvbt_mux_t> (spec §9 design notes).
type AnyMux struct {
	Kind Kind
	S    DVBSMux
	C    DVBCMux
	T    DVBTMux
}

// Key returns the mux key regardless of variant.
func (m AnyMux) Key() MuxKey {
	switch m.Kind {
	case KindDVBC:
		return m.C.K
	case KindDVBT:
		return m.T.K
	default:
		return m.S.K
	}
}

// SetKey writes back the mux key regardless of variant.
func (m *AnyMux) SetKey(k MuxKey) {
	switch m.Kind {
	case KindDVBC:
		m.C.K = k
	case KindDVBT:
		m.T.K = k
	default:
		m.S.K = k
	}
}

// Common returns the shared scan/provenance block regardless of variant.
func (m AnyMux) Common() MuxCommon {
	switch m.Kind {
	case KindDVBC:
		return m.C.C
	case KindDVBT:
		return m.T.C
	default:
		return m.S.C
	}
}

// SetCommon writes back the shared scan/provenance block regardless of variant.
func (m *AnyMux) SetCommon(c MuxCommon) {
	switch m.Kind {
	case KindDVBC:
		m.C.C = c
	case KindDVBT:
		m.T.C = c
	default:
		m.S.C = c
	}
}

// Frequency returns the tuning frequency (kHz) regardless of variant.
func (m AnyMux) Frequency() uint32 {
	switch m.Kind {
	case KindDVBC:
		return m.C.Frequency
	case KindDVBT:
		return m.T.Frequency
	default:
		return m.S.Frequency
	}
}

// StreamID returns the multistream id regardless of variant (-1 if none).
func (m AnyMux) StreamID() int16 {
	switch m.Kind {
	case KindDVBC:
		return m.C.StreamID
	case KindDVBT:
		return m.T.StreamID
	default:
		return m.S.StreamID
	}
}

// IsTemplate reports whether mux was entered by a user without nid/tsid and
// so carries TuneSrcTemplate. A template mux must never reach the store
// (spec §3 invariant) — update_mux always demotes it to AUTO first.
func IsTemplate(c MuxCommon) bool {
	return c.TuneSrc == TuneSrcTemplate
}
