package devdb

import (
	"github.com/neumodvb/devcore/internal/chdb"
	"github.com/neumodvb/devcore/internal/store"
)

// checkConflict examines one live subscription (held by feHolder) against a
// candidate reservation of (pol, band, usalsPos) on lnb, implementing the
// four-case conflict analysis of find_best_fe_for_lnb (spec §4.E,
// "Occupied by another subscription").
func checkConflict(txn store.Txn, lnb LNB, feHolder FE, pol chdb.Polarisation, band Band, usalsPos chdb.SatPos, wantExclusive bool) (bool, error) {
	sub := feHolder.Sub

	// Case 1: the frontend already holds our same LNB.
	if sub.LNBKey == lnb.Key {
		if wantExclusive {
			return true, nil
		}
		return sub.Pol != pol || sub.Band != band || sub.UsalsPos != usalsPos, nil
	}

	heldLNB, ok, err := GetLNB(txn, sub.LNBKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	// Case 2: a different LNB on the same card and RF input — the cable is
	// busy with another LNB entirely.
	if heldLNB.Key.CardMAC == lnb.Key.CardMAC && heldLNB.Key.RFInput == lnb.Key.RFInput {
		return true, nil
	}

	// Case 3: cable-sharing conflict — a priority/T splitter carries only
	// one band/pol/sat at a time.
	if heldLNB.RFCouplerID != 0 && heldLNB.RFCouplerID == lnb.RFCouplerID {
		return sub.Pol != pol || sub.Band != band || sub.UsalsPos != usalsPos, nil
	}

	// Case 4: positioner conflict — the dish cannot be pointed to two
	// places at once.
	if heldLNB.Key.DishID == lnb.Key.DishID {
		move := int32(usalsPos) - int32(sub.UsalsPos)
		if move < 0 {
			move = -move
		}
		heldExclusive := sub.Pol == chdb.PolNone
		if wantExclusive || heldExclusive || move >= positionerTolerance {
			return true, nil
		}
	}
	return false, nil
}

func betterForLNB(a, b FE, needSpectrum bool, feToRelease *FEKey) bool {
	ra, rb := spectrumRank(a.Caps), spectrumRank(b.Caps)
	if ra != rb {
		if needSpectrum {
			return ra > rb
		}
		return ra < rb
	}
	aRelease := feToRelease != nil && sameFEKey(a.Key, *feToRelease)
	bRelease := feToRelease != nil && sameFEKey(b.Key, *feToRelease)
	if aRelease != bRelease {
		return aRelease
	}
	return a.Priority > b.Priority
}

// FindBestFEForLNB selects the best frontend on lnb's card able to carry
// the requested (pol, band, usalsPos) reservation, examining every
// frontend on lnb's card in a single pass: an occupied frontend is checked
// for conflict against the request, a free one is scored as a candidate
// (spec §4.E, "Iterate frontends on the same card"; find_best_fe_for_lnb).
// Exclusivity is requested when any of pol/band/usalsPos is its NONE
// sentinel.
func FindBestFEForLNB(txn store.Txn, lnb LNB, feToRelease *FEKey, needBlindscan, needSpectrum, needMultistream bool, pol chdb.Polarisation, band Band, usalsPos chdb.SatPos) (FE, bool, error) {
	wantExclusive := pol == chdb.PolNone || band == BandNone || usalsPos == chdb.SatPosNone

	candidates, err := FEsOnCard(txn, lnb.Key.CardMAC)
	if err != nil {
		return FE{}, false, err
	}

	var best FE
	haveBest := false
	for _, fe := range candidates {
		isRelease := feToRelease != nil && sameFEKey(fe.Key, *feToRelease)
		if isSubLive(fe.Sub) && !isRelease {
			conflict, err := checkConflict(txn, lnb, fe, pol, band, usalsPos, wantExclusive)
			if err != nil {
				return FE{}, false, err
			}
			if conflict {
				return FE{}, false, nil
			}
			continue
		}
		if !fe.Usable() || !fe.EnableDVBS || !fe.Supports(DeliveryDVBS) {
			continue
		}
		if !fe.ReachesRFInput(lnb.Key.RFInput) {
			continue
		}
		busy, err := adapterInUse(txn, fe, feToRelease)
		if err != nil {
			return FE{}, false, err
		}
		if busy {
			continue
		}
		if needBlindscan && fe.Caps&CapBlindscan == 0 {
			continue
		}
		if needMultistream && fe.Caps&CapMultistream == 0 {
			continue
		}
		if needSpectrum && fe.Caps&(CapSpectrumFFT|CapSpectrumSweep) == 0 {
			continue
		}

		if !haveBest || betterForLNB(fe, best, needSpectrum, feToRelease) {
			best, haveBest = fe, true
		}
	}
	return best, haveBest, nil
}

// FindFEAndLNBForMux is the top-level LNB arbitrator: given a target mux and
// policy, it picks the best LNB+frontend pair, preferring the LNB/frontend
// combination with the highest (lnb_priority, fe_priority) (spec §4.E).
// requiredLNB, if non-nil, restricts the search to one LNB.
func FindFEAndLNBForMux(txn store.Txn, mux chdb.DVBSMux, requiredLNB *LNBKey, feToRelease *FEKey, mayMoveDish, useBlindTune bool, dishMovePenalty, resourceReuseBonus int32) (FE, LNB, bool, error) {
	var candidates []LNB
	if requiredLNB != nil {
		lnb, ok, err := GetLNB(txn, *requiredLNB)
		if err != nil {
			return FE{}, LNB{}, false, err
		}
		if ok {
			candidates = []LNB{lnb}
		}
	} else {
		var err error
		candidates, err = AllLNBs(txn)
		if err != nil {
			return FE{}, LNB{}, false, err
		}
	}

	needMultistream := mux.StreamID >= 0

	var bestFE FE
	var bestLNB LNB
	haveBest := false
	var bestLNBPriority, bestFEPriority int32

	for _, lnb := range candidates {
		if !lnb.Enabled || !lnb.CanBeUsed {
			continue
		}
		hasNetwork, networkPriority, moveAmount, usalsPos := HasNetwork(lnb, mux.K.SatPos)
		if !hasNetwork {
			continue
		}
		needsMove := DishNeedsToMove(lnb, moveAmount)
		if needsMove && (!mayMoveDish || !CanMoveDish(lnb)) {
			continue
		}

		lnbPriority := lnb.Priority
		if networkPriority >= 0 {
			lnbPriority = networkPriority
		}
		if needsMove {
			lnbPriority -= dishMovePenalty
		}
		if haveBest && lnbPriority < bestLNBPriority {
			continue
		}

		if !LNBCanTuneToMux(lnb, mux) {
			continue
		}

		pol := mux.Pol
		band := BandForMux(lnb, mux)

		fe, ok, err := FindBestFEForLNB(txn, lnb, feToRelease, useBlindTune, false, needMultistream, pol, band, usalsPos)
		if err != nil {
			return FE{}, LNB{}, false, err
		}
		if !ok {
			continue
		}

		counts, err := CountSubscriptions(txn, lnb.Key, feToRelease)
		if err != nil {
			return FE{}, LNB{}, false, err
		}
		fePriority := fe.Priority
		if counts.Any() {
			fePriority += resourceReuseBonus
		}

		if !haveBest || lnbPriority > bestLNBPriority ||
			(lnbPriority == bestLNBPriority && fePriority > bestFEPriority) {
			bestFE, bestLNB, haveBest = fe, lnb, true
			bestLNBPriority, bestFEPriority = lnbPriority, fePriority
		}
	}
	return bestFE, bestLNB, haveBest, nil
}
