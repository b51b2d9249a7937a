package chdb

// satTolerance is the positioner-disambiguation window (0.3 degrees, in the
// same 0.01-degree units as SatPos) used when check_sat_pos is requested.
const satTolerance = 30

// freqTolerance is the fixed frequency window (kHz) used for cable and
// terrestrial fuzzy matching, which have no symbol-rate-derived tolerance.
const freqTolerance = 1000

func abs32(a int32) int32 {
	if a < 0 {
		return -a
	}
	return a
}

// symbolRateTolerance mirrors the source's (min(sr_a, sr_b) * 1.35) / 2000
// kHz window: wider for high-symbol-rate muxes, narrower for narrowband ones.
func symbolRateTolerance(srA, srB uint32) uint32 {
	sr := srA
	if srB < sr {
		sr = srB
	}
	return uint32((uint64(sr) * 135) / 200000)
}

// MatchesPhysicalFuzzyDVBS reports whether a and b name the same physical
// satellite carrier: polarisation equal ignoring the L<->H / R<->V swap,
// stream id equal, sat_pos within 0.3 degrees (if checkSatPos), and
// frequency within a symbol-rate-scaled tolerance (spec §4.A).
func MatchesPhysicalFuzzyDVBS(a, b DVBSMux, checkSatPos bool) bool {
	if polGroup(a.Pol) != polGroup(b.Pol) {
		return false
	}
	if checkSatPos && abs32(int32(a.K.SatPos)-int32(b.K.SatPos)) > satTolerance {
		return false
	}
	if a.StreamID != b.StreamID {
		return false
	}
	tol := symbolRateTolerance(a.SymbolRate, b.SymbolRate)
	return abs32(int32(a.Frequency)-int32(b.Frequency)) <= int32(tol)
}

// MatchesPhysicalFuzzyDVBC reports whether a and b are the same cable
// transponder: frequency within ±1000 kHz (spec §4.A).
func MatchesPhysicalFuzzyDVBC(a, b DVBCMux, _ bool) bool {
	return abs32(int32(a.Frequency)-int32(b.Frequency)) <= freqTolerance
}

// MatchesPhysicalFuzzyDVBT reports whether a and b are the same terrestrial
// transponder: frequency within ±1000 kHz (spec §4.A).
func MatchesPhysicalFuzzyDVBT(a, b DVBTMux, _ bool) bool {
	return abs32(int32(a.Frequency)-int32(b.Frequency)) <= freqTolerance
}

// MatchesPhysicalFuzzy dispatches on the tagged variant. Mismatched kinds
// never match. matches_physical_fuzzy(a, a) is always true and the relation
// is symmetric (spec §8 invariant 4).
func MatchesPhysicalFuzzy(a, b AnyMux, checkSatPos bool) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindDVBC:
		return MatchesPhysicalFuzzyDVBC(a.C, b.C, checkSatPos)
	case KindDVBT:
		return MatchesPhysicalFuzzyDVBT(a.T, b.T, checkSatPos)
	default:
		return MatchesPhysicalFuzzyDVBS(a.S, b.S, checkSatPos)
	}
}

// TuningIsSameDVBS is exact equality of all tuning parameters, used by merge
// to decide whether a less-authoritative provenance label may still be
// upgraded in place (spec §4.C).
func TuningIsSameDVBS(a, b DVBSMux) bool {
	return a.Frequency == b.Frequency && a.Pol == b.Pol && a.SymbolRate == b.SymbolRate &&
		a.StreamID == b.StreamID && a.Modulation == b.Modulation && a.K.T2MIPID == b.K.T2MIPID
}

// TuningIsSameDVBC is exact equality of all cable tuning parameters.
func TuningIsSameDVBC(a, b DVBCMux) bool {
	return a.Frequency == b.Frequency && a.SymbolRate == b.SymbolRate &&
		a.StreamID == b.StreamID && a.Modulation == b.Modulation
}

// TuningIsSameDVBT is exact equality of all terrestrial tuning parameters.
func TuningIsSameDVBT(a, b DVBTMux) bool {
	return a.Frequency == b.Frequency && a.StreamID == b.StreamID && a.Modulation == b.Modulation
}

// TuningIsSame dispatches on the tagged variant.
func TuningIsSame(a, b AnyMux) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindDVBC:
		return TuningIsSameDVBC(a.C, b.C)
	case KindDVBT:
		return TuningIsSameDVBT(a.T, b.T)
	default:
		return TuningIsSameDVBS(a.S, b.S)
	}
}
