package devdb

import (
	"github.com/neumodvb/devcore/internal/chdb"
	"github.com/neumodvb/devcore/internal/store"
)

// positionerTolerance is the boundary (0.3°, same units as chdb.SatPos)
// below which a dish is considered already pointed where needed (spec §4.E
// step 3, §8 invariant 2/3's "unless... ≥ 30" tolerance).
const positionerTolerance = 30

// HasNetwork reports whether lnb carries an entry for satPos and, if so,
// that network's configured priority, the amount the dish would have to
// move to reach it from lnb's currently mirrored position, and the usals
// position to command (spec §4.E step 2).
func HasNetwork(lnb LNB, satPos chdb.SatPos) (hasNetwork bool, priority int32, usalsMoveAmount int32, usalsPos chdb.SatPos) {
	for _, n := range lnb.Networks {
		if n.SatPos == satPos {
			move := int32(n.UsalsPos) - int32(lnb.UsalsPos)
			if move < 0 {
				move = -move
			}
			return true, n.Priority, move, n.UsalsPos
		}
	}
	return false, 0, 0, chdb.SatPosNone
}

func lnbSupportsPol(lnb LNB, pol chdb.Polarisation) bool {
	for _, p := range lnb.Pols {
		if p == pol {
			return true
		}
	}
	return false
}

// BandForMux selects the low/high sub-band mux requires from lnb, by
// comparing the tuning frequency against the LNB's configured switch
// frequency (spec glossary: Band/Pol).
func BandForMux(lnb LNB, mux chdb.DVBSMux) Band {
	if lnb.SwitchFreq > 0 && mux.Frequency >= lnb.SwitchFreq {
		return BandHigh
	}
	return BandLow
}

// LNBCanTuneToMux reports whether lnb supports mux's polarisation and can
// downconvert its frequency in the selected band (spec §4.E step 5).
func LNBCanTuneToMux(lnb LNB, mux chdb.DVBSMux) bool {
	if !lnbSupportsPol(lnb, mux.Pol) {
		return false
	}
	return mux.Frequency > lnb.LOFrequency[BandForMux(lnb, mux)]
}

// RFCouplerID returns the cable-sharing tag discovered for lnb (spec
// glossary: RF coupler / tuner group).
func RFCouplerID(lnb LNB) int32 { return lnb.RFCouplerID }

// OnPositioner reports whether lnb sits on a motorised dish.
func OnPositioner(lnb LNB) bool { return lnb.RotorControl != RotorNone }

// CanMoveDish reports whether lnb can itself command a dish move (as
// opposed to sitting on a positioner driven by another LNB's diseqc chain).
func CanMoveDish(lnb LNB) bool {
	return lnb.RotorControl == RotorUSALS || lnb.RotorControl == RotorDiseqc12
}

// DishNeedsToMove reports whether a dish move of moveAmount (0.01° units)
// is required. For any LNB not on a positioner this is always false (spec
// §8 invariant 7).
func DishNeedsToMove(lnb LNB, moveAmount int32) bool {
	if !OnPositioner(lnb) {
		return false
	}
	return moveAmount >= positionerTolerance
}

// CountSubscriptions reports, for the given LNB, how many other live
// subscriptions currently contend for each resource it shares: the LNB
// itself, the tuner card it is wired to, the dish it sits on, and its RF
// coupler group — excluding feToRelease, which the caller is about to
// release (spec §3 Subscription counts, §5 Ordering guarantee 3).
func CountSubscriptions(txn store.Txn, lnbKey LNBKey, feToRelease *FEKey) (SubscriptionCounts, error) {
	target, found, err := GetLNB(txn, lnbKey)
	if err != nil {
		return SubscriptionCounts{}, err
	}
	if !found {
		return SubscriptionCounts{}, nil
	}
	all, err := AllFEs(txn)
	if err != nil {
		return SubscriptionCounts{}, err
	}

	var counts SubscriptionCounts
	lnbCache := map[LNBKey]LNB{lnbKey: target}
	for _, fe := range all {
		if feToRelease != nil && sameFEKey(fe.Key, *feToRelease) {
			continue
		}
		if !isSubLive(fe.Sub) {
			continue
		}
		if fe.Sub.LNBKey == lnbKey {
			counts.LNB++
		}
		if fe.Key.AdapterMAC == lnbKey.CardMAC {
			counts.Tuner++
		}
		held, ok := lnbCache[fe.Sub.LNBKey]
		if !ok {
			held, ok, err = GetLNB(txn, fe.Sub.LNBKey)
			if err != nil {
				return SubscriptionCounts{}, err
			}
			if ok {
				lnbCache[fe.Sub.LNBKey] = held
			}
		}
		if !ok {
			continue
		}
		if held.Key.DishID == target.Key.DishID {
			counts.Dish++
		}
		if target.RFCouplerID != 0 && held.RFCouplerID == target.RFCouplerID {
			counts.RFCoupler++
		}
	}
	return counts, nil
}

// SubscriptionCounts is the derived per-resource contention count (spec §3).
type SubscriptionCounts struct {
	LNB       int
	Tuner     int
	Dish      int
	RFCoupler int
}

// Any reports whether at least one shared resource already has a live
// subscriber (spec §4.E step 8: "if any count ≥ 1 add resource_reuse_bonus").
func (c SubscriptionCounts) Any() bool {
	return c.LNB >= 1 || c.Tuner >= 1 || c.Dish >= 1 || c.RFCoupler >= 1
}
