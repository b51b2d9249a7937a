package devdb

import (
	"fmt"

	"github.com/neumodvb/devcore/internal/chdb"
	"github.com/neumodvb/devcore/internal/liveness"
	"github.com/neumodvb/devcore/internal/store"
)

// TuneOptions carries the policy knobs the arbitrator needs (spec §4.E,
// §4.F): whether the dish may be moved, whether blind-tune capability is
// required, and the scoring constants used to break ties between LNBs and
// frontends.
type TuneOptions struct {
	MayMoveDish        bool
	UseBlindTune       bool
	DishMovePenalty    int32
	ResourceReuseBonus int32
}

func releaseFE(txn store.Txn, feKey FEKey) (int32, error) {
	fe, found, err := GetFE(txn, feKey)
	if err != nil || !found {
		return 0, err
	}
	if fe.Sub.UseCount > 1 {
		fe.Sub.UseCount--
	} else {
		fe.Sub = Subscription{Owner: -1}
	}
	if err := PutFE(txn, fe); err != nil {
		return 0, err
	}
	return fe.Sub.UseCount, nil
}

func reserveFE(txn store.Txn, feKey FEKey, sub Subscription) (FE, error) {
	fe, found, err := GetFE(txn, feKey)
	if err != nil {
		return FE{}, err
	}
	if !found {
		return FE{}, fmt.Errorf("devdb: reserve: frontend %+v not found", feKey)
	}
	fe.Sub = sub
	if err := PutFE(txn, fe); err != nil {
		return FE{}, err
	}
	return fe, nil
}

// SubscribeLNBBandPolSat arbitrates and reserves a frontend+LNB pair for
// mux, optionally releasing a previously held frontend in the same write
// transaction. Returns the reserved frontend, the LNB used, the resource
// contention counts observed after any release, and the released
// frontend's resulting use_count (spec §4.F).
func SubscribeLNBBandPolSat(txn store.Txn, mux chdb.DVBSMux, requiredLNB *LNBKey, feToRelease *FEKey, opts TuneOptions) (FE, LNB, SubscriptionCounts, int32, error) {
	fe, lnb, ok, err := FindFEAndLNBForMux(txn, mux, requiredLNB, feToRelease, opts.MayMoveDish, opts.UseBlindTune, opts.DishMovePenalty, opts.ResourceReuseBonus)
	if err != nil {
		return FE{}, LNB{}, SubscriptionCounts{}, 0, err
	}
	if !ok {
		return FE{}, LNB{}, SubscriptionCounts{}, 0, ErrNoFrontendAvailable
	}

	band := BandForMux(lnb, mux)
	_, _, _, usalsPos := HasNetwork(lnb, mux.K.SatPos)

	sub := Subscription{
		Owner:     liveness.CurrentPID(),
		UseCount:  1,
		LNBKey:    lnb.Key,
		Pol:       mux.Pol,
		Band:      band,
		UsalsPos:  usalsPos,
		Frequency: mux.Frequency,
		StreamID:  mux.StreamID,
	}
	reserved, err := reserveFE(txn, fe.Key, sub)
	if err != nil {
		return FE{}, LNB{}, SubscriptionCounts{}, 0, err
	}

	if lnb.UsalsPos != usalsPos {
		lnb.UsalsPos = usalsPos
		if err := PutLNB(txn, lnb); err != nil {
			return FE{}, LNB{}, SubscriptionCounts{}, 0, err
		}
	}

	var releasedUseCount int32
	if feToRelease != nil && !sameFEKey(*feToRelease, fe.Key) {
		releasedUseCount, err = releaseFE(txn, *feToRelease)
		if err != nil {
			return FE{}, LNB{}, SubscriptionCounts{}, 0, err
		}
	}

	counts, err := CountSubscriptions(txn, lnb.Key, nil)
	if err != nil {
		return FE{}, LNB{}, SubscriptionCounts{}, 0, err
	}
	return reserved, lnb, counts, releasedUseCount, nil
}

// SubscribeLNBExclusive reserves lnb with no tuning parameters committed
// (pol=band=usals_pos=NONE), so the caller may freely rotate the dish or
// flip diseqc switches without another subscription assuming a fixed
// reservation (spec §4.F). needSpectrum requests a frontend capable of a
// blind spectrum sweep, for the spectrum-scan verb.
func SubscribeLNBExclusive(txn store.Txn, lnb LNB, feToRelease *FEKey, needSpectrum bool) (FE, error) {
	fe, ok, err := FindBestFEForLNB(txn, lnb, feToRelease, false, needSpectrum, false, chdb.PolNone, BandNone, chdb.SatPosNone)
	if err != nil {
		return FE{}, err
	}
	if !ok {
		return FE{}, ErrNoFrontendAvailable
	}
	sub := Subscription{
		Owner:    liveness.CurrentPID(),
		UseCount: 1,
		LNBKey:   lnb.Key,
		Pol:      chdb.PolNone,
		Band:     BandNone,
		UsalsPos: chdb.SatPosNone,
	}
	reserved, err := reserveFE(txn, fe.Key, sub)
	if err != nil {
		return FE{}, err
	}
	if feToRelease != nil && !sameFEKey(*feToRelease, fe.Key) {
		if _, err := releaseFE(txn, *feToRelease); err != nil {
			return FE{}, err
		}
	}
	return reserved, nil
}

// SubscribeDVBCOrDVBTMux reserves a cable/terrestrial frontend for the given
// tuning parameters (spec §4.F). Cable/terrestrial subscriptions carry no
// LNB; usals_pos is stamped with the DVBC/DVBT sentinel instead.
func SubscribeDVBCOrDVBTMux(txn store.Txn, frequency uint32, streamID int16, delsys DeliverySystem, needBlindscan, needMultistream bool, feToRelease *FEKey) (FE, error) {
	fe, ok, err := FindBestFEForDVBCOrDVBT(txn, feToRelease, needBlindscan, false, needMultistream, delsys)
	if err != nil {
		return FE{}, err
	}
	if !ok {
		return FE{}, ErrNoFrontendAvailable
	}
	usalsSentinel := chdb.SatPosDVBC
	if delsys == DeliveryDVBT {
		usalsSentinel = chdb.SatPosDVBT
	}
	sub := Subscription{
		Owner:     liveness.CurrentPID(),
		UseCount:  1,
		UsalsPos:  usalsSentinel,
		Frequency: frequency,
		StreamID:  streamID,
	}
	reserved, err := reserveFE(txn, fe.Key, sub)
	if err != nil {
		return FE{}, err
	}
	if feToRelease != nil && !sameFEKey(*feToRelease, fe.Key) {
		if _, err := releaseFE(txn, *feToRelease); err != nil {
			return FE{}, err
		}
	}
	return reserved, nil
}

// SubscribeFEInUse increments use_count on a frontend already holding a
// live, compatible reservation — used when several subscribers share an
// LNB on the same band/pol (spec §4.F).
func SubscribeFEInUse(txn store.Txn, feKey FEKey) (FE, error) {
	fe, found, err := GetFE(txn, feKey)
	if err != nil {
		return FE{}, err
	}
	if !found || !isSubLive(fe.Sub) {
		return FE{}, ErrNoFrontendAvailable
	}
	fe.Sub.UseCount++
	if err := PutFE(txn, fe); err != nil {
		return FE{}, err
	}
	return fe, nil
}

// Unsubscribe decrements feKey's use_count, clearing sub entirely once it
// reaches zero. Idempotent with respect to dead owners: a defunct
// subscription is treated as already at use_count=0 (spec §4.F, §8
// invariant 1).
func Unsubscribe(txn store.Txn, feKey FEKey) (int32, error) {
	fe, found, err := GetFE(txn, feKey)
	if err != nil {
		return 0, err
	}
	if !found || !isSubLive(fe.Sub) {
		return 0, nil
	}
	if fe.Sub.UseCount > 1 {
		fe.Sub.UseCount--
	} else {
		fe.Sub = Subscription{Owner: -1}
	}
	if err := PutFE(txn, fe); err != nil {
		return 0, err
	}
	return fe.Sub.UseCount, nil
}
