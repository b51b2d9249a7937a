package chdb

import (
	"fmt"

	"github.com/neumodvb/devcore/internal/store"
)

// UniqueResult classifies the outcome of GetByNidTidUnique (spec §4.B).
type UniqueResult int

const (
	NotFound UniqueResult = iota
	Unique
	UniqueOnSat
	NotUnique
)

func (r UniqueResult) String() string {
	switch r {
	case Unique:
		return "UNIQUE"
	case UniqueOnSat:
		return "UNIQUE_ON_SAT"
	case NotUnique:
		return "NOT_UNIQUE"
	default:
		return "NOT_FOUND"
	}
}

// FindByMux looks up mux by its exact (sat_pos, network_id, ts_id, t2mi_pid)
// key prefix, scanning the extra_id variants stored under it and confirming
// matches_physical_fuzzy against each candidate. Duplicates under one key
// are not prevented but should not occur in a healthy store; the first
// physical match is returned (spec §4.B).
func FindByMux(txn store.Txn, kind Kind, mux AnyMux) (AnyMux, bool, error) {
	k := mux.Key()
	prefix := store.MuxPrimaryPrefix(kindByte(kind), int32(k.SatPos), k.NetworkID, k.TSID, k.T2MIPID)
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	for cur.Valid() {
		_, v := cur.Item()
		cand, err := decodeMux(kind, v)
		if err != nil {
			return AnyMux{}, false, err
		}
		if MatchesPhysicalFuzzy(mux, cand, true) {
			return cand, true, nil
		}
		cur.Next()
	}
	return AnyMux{}, false, nil
}

// walkSatPolFreq implements the backward-then-forward frequency walk of
// find_by_mux_fuzzy within one (sat_pos, pol) prefix (spec §4.B steps 1-2).
func walkSatPolFreq(txn store.Txn, satPos SatPos, mux DVBSMux) (AnyMux, bool, error) {
	prefix := store.MuxSatPolFreqPrefix(int32(satPos), polByte(mux.Pol))
	seek := store.MuxSatPolFreqSeek(int32(satPos), polByte(mux.Pol), mux.Frequency)

	cur := txn.Seek(prefix, seek, store.SeekLEQ)
	if !cur.Valid() {
		// find_leq failed outright: retry with find_geq and accept the
		// first match, per spec.
		cur = txn.Seek(prefix, seek, store.SeekGEQ)
		if !cur.Valid() {
			return AnyMux{}, false, nil
		}
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, KindDVBS, v)
		return cand, err == nil, err
	}

	overlaps := func() (bool, error) {
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, KindDVBS, v)
		if err != nil {
			return false, err
		}
		tol := symbolRateTolerance(cand.S.SymbolRate, mux.SymbolRate)
		return abs32(int32(cand.S.Frequency)-int32(mux.Frequency)) <= int32(tol), nil
	}

	// Walk backward to the bottom of the possibly-overlapping range.
	for {
		cur.Prev()
		if !cur.Valid() {
			cur.Next() // back onto the first (lowest) valid record
			break
		}
		ok, err := overlaps()
		if err != nil {
			return AnyMux{}, false, err
		}
		if !ok {
			cur.Next() // stepped one past the bottom of the range; undo
			break
		}
	}

	// Walk forward from the bottom, tracking the frequency delta.
	var best AnyMux
	haveBest := false
	var lastDelta int32 = -1
	for cur.Valid() {
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, KindDVBS, v)
		if err != nil {
			return AnyMux{}, false, err
		}
		tol := symbolRateTolerance(cand.S.SymbolRate, mux.SymbolRate)
		if cand.S.Frequency == mux.Frequency {
			return cand, true, nil
		}
		if int32(cand.S.Frequency) > int32(mux.Frequency)+int32(tol) {
			break
		}
		delta := abs32(int32(cand.S.Frequency) - int32(mux.Frequency))
		if haveBest && delta > lastDelta {
			return best, true, nil
		}
		best, haveBest, lastDelta = cand, true, delta
		cur.Next()
	}
	return best, haveBest, nil
}

func decodeSatPosKey(k []byte) (SatPos, error) {
	if len(k) < 6 {
		return 0, fmt.Errorf("chdb: short sat key")
	}
	return SatPos(store.Int32FromSortable(k[2:6])), nil
}

// FindByMuxFuzzy approximates find_by_mux_fuzzy: scans (sat_pos, pol,
// frequency) ignoring nid/tsid and stream id, then retries on neighbouring
// satellite positions (|Δsat_pos| ≤ 30) if nothing matched the exact
// sat_pos (spec §4.B step 3).
func FindByMuxFuzzy(txn store.Txn, mux DVBSMux) (AnyMux, bool, error) {
	if cand, ok, err := walkSatPolFreq(txn, mux.K.SatPos, mux); err != nil || ok {
		return cand, ok, err
	}

	low := int32(mux.K.SatPos) - satTolerance
	cur := txn.Seek(store.SatPrefix(), store.SatKey(low), store.SeekGEQ)
	for cur.Valid() {
		k, _ := cur.Item()
		sp, err := decodeSatPosKey(k)
		if err != nil {
			return AnyMux{}, false, err
		}
		if int32(sp) > int32(mux.K.SatPos)+satTolerance {
			break
		}
		if sp != mux.K.SatPos {
			if cand, ok, err := walkSatPolFreq(txn, sp, mux); err != nil {
				return AnyMux{}, false, err
			} else if ok {
				return cand, true, nil
			}
		}
		cur.Next()
	}
	return AnyMux{}, false, nil
}

// FindByFreqFuzzy is the cable/terrestrial analogue of find_by_mux_fuzzy: the
// same backward-then-forward walk on a single frequency axis with a caller
// supplied tolerance (spec §4.B).
func FindByFreqFuzzy(txn store.Txn, kind Kind, frequency, tolerance uint32) (AnyMux, bool, error) {
	prefix := store.MuxFrequencyPrefix(kindByte(kind))
	seek := store.MuxFrequencySeek(kindByte(kind), frequency)

	cur := txn.Seek(prefix, seek, store.SeekLEQ)
	if !cur.Valid() {
		cur = txn.Seek(prefix, seek, store.SeekGEQ)
		if !cur.Valid() {
			return AnyMux{}, false, nil
		}
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, kind, v)
		return cand, err == nil, err
	}

	overlaps := func() (bool, error) {
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, kind, v)
		if err != nil {
			return false, err
		}
		return abs32(int32(cand.Frequency())-int32(frequency)) <= int32(tolerance), nil
	}
	for {
		cur.Prev()
		if !cur.Valid() {
			cur.Next()
			break
		}
		ok, err := overlaps()
		if err != nil {
			return AnyMux{}, false, err
		}
		if !ok {
			cur.Next()
			break
		}
	}

	var best AnyMux
	haveBest := false
	var lastDelta int32 = -1
	for cur.Valid() {
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, kind, v)
		if err != nil {
			return AnyMux{}, false, err
		}
		if cand.Frequency() == frequency {
			return cand, true, nil
		}
		if int32(cand.Frequency()) > int32(frequency)+int32(tolerance) {
			break
		}
		delta := abs32(int32(cand.Frequency()) - int32(frequency))
		if haveBest && delta > lastDelta {
			return best, true, nil
		}
		best, haveBest, lastDelta = cand, true, delta
		cur.Next()
	}
	return best, haveBest, nil
}

// FindByMuxPhysical chains FindByMux and the appropriate fuzzy finder: try
// the keyed+fuzzy-frequency lookup first, and only fall back to matching
// that ignores nid/tsid when no exact-keyed record exists. This is the
// original's always-chained combinator used by SI (service information)
// processing (supplement to spec.md's separately-specified finders; see
// SPEC_FULL.md).
func FindByMuxPhysical(txn store.Txn, kind Kind, mux AnyMux) (AnyMux, bool, error) {
	if cand, ok, err := FindByMux(txn, kind, mux); err != nil || ok {
		return cand, ok, err
	}
	if kind == KindDVBS {
		return FindByMuxFuzzy(txn, mux.S)
	}
	return FindByFreqFuzzy(txn, kind, mux.Frequency(), freqTolerance)
}

// GetByNidTidUnique scans every satellite mux sharing (network_id, ts_id) and
// classifies the result for the SDT-only identification path used when a
// NIT has not yet arrived (spec §4.B).
func GetByNidTidUnique(txn store.Txn, networkID, tsID uint16, tunedSatPos SatPos) (UniqueResult, AnyMux, error) {
	prefix := store.MuxNidTidPrefix(store.KindMuxDVBS, networkID, tsID)
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)

	var matches []AnyMux
	for cur.Valid() {
		_, v := cur.Item()
		cand, err := resolveIndexed(txn, KindDVBS, v)
		if err != nil {
			return NotFound, AnyMux{}, err
		}
		matches = append(matches, cand)
		cur.Next()
	}

	switch len(matches) {
	case 0:
		return NotFound, AnyMux{}, nil
	case 1:
		return Unique, matches[0], nil
	}

	if tunedSatPos == SatPosNone {
		return NotUnique, AnyMux{}, nil
	}

	var onSat []AnyMux
	for _, m := range matches {
		if abs32(int32(m.S.K.SatPos)-int32(tunedSatPos)) <= satTolerance {
			onSat = append(onSat, m)
		}
	}
	if len(onSat) == 1 {
		return UniqueOnSat, onSat[0], nil
	}
	return NotUnique, AnyMux{}, nil
}

// GetByNetworkIdTsId dispatches get_by_nid_tid_unique across delivery
// systems. The original contains unreachable code after an unconditional
// return for its cable/terrestrial branches (spec §9 open questions); per
// the spec's resolution this lookup is treated as satellite-only.
func GetByNetworkIdTsId(txn store.Txn, networkID, tsID uint16, tunedSatPos SatPos) (UniqueResult, AnyMux, error) {
	return GetByNidTidUnique(txn, networkID, tsID, tunedSatPos)
}
