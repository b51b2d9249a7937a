package devdb

import (
	"path/filepath"
	"testing"

	"github.com/neumodvb/devcore/internal/chdb"
	"github.com/neumodvb/devcore/internal/liveness"
	"github.com/neumodvb/devcore/internal/store"
)

func openTestDB(t *testing.T) store.DB {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "badger")
	db, err := store.OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// deadPID is a pid unlikely to be held by any running process, used to
// construct a "stale owner" subscription without depending on liveness.Alive
// ever returning false for our own pid.
const deadPID int32 = 999999

func basicFE(cardMAC int64, frontendNo, adapterNo, rfInput int32) FE {
	return FE{
		Key:         FEKey{AdapterMAC: cardMAC, FrontendNo: frontendNo},
		CardNo:      0,
		AdapterNo:   adapterNo,
		Present:     true,
		CanBeUse:    true,
		EnableDVBS:  true,
		Delsys:      []DeliverySystem{DeliveryDVBS},
		Priority:    0,
		RFInputs:    []int32{rfInput},
		AdapterName: "adapter0",
		Sub:         Subscription{Owner: -1},
	}
}

func basicLNB(cardMAC int64, rfInput, dishID, lnbID int32) LNB {
	return LNB{
		Key:          LNBKey{CardMAC: cardMAC, RFInput: rfInput, DishID: dishID, LNBID: lnbID},
		RotorControl: RotorNone,
		LOFrequency:  [2]uint32{9750000, 10600000},
		SwitchFreq:   11700000,
		Pols:         []chdb.Polarisation{chdb.PolH, chdb.PolV},
		Priority:     0,
		Enabled:      true,
		CanBeUsed:    true,
		Networks:     []Network{{SatPos: 192, Priority: -1, UsalsPos: 192}},
	}
}

// ── codec roundtrip ──────────────────────────────────────────────────────

func TestPutGetFE_roundtrip(t *testing.T) {
	db := openTestDB(t)
	fe := basicFE(1, 0, 0, 0)
	if err := db.Update(func(txn store.Txn) error { return PutFE(txn, fe) }); err != nil {
		t.Fatalf("PutFE: %v", err)
	}
	if err := db.View(func(txn store.Txn) error {
		got, found, err := GetFE(txn, fe.Key)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("expected to find the frontend")
		}
		if got.AdapterNo != fe.AdapterNo {
			t.Errorf("AdapterNo = %d want %d", got.AdapterNo, fe.AdapterNo)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFEsOnCardAndAdapter(t *testing.T) {
	db := openTestDB(t)
	fe0 := basicFE(1, 0, 0, 0)
	fe1 := basicFE(1, 1, 0, 1)
	fe2 := basicFE(2, 0, 1, 0)
	if err := db.Update(func(txn store.Txn) error {
		for _, fe := range []FE{fe0, fe1, fe2} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		onCard, err := FEsOnCard(txn, 1)
		if err != nil {
			return err
		}
		if len(onCard) != 2 {
			t.Errorf("FEsOnCard(1): got %d want 2", len(onCard))
		}
		onAdapter, err := FEsOnAdapter(txn, 0)
		if err != nil {
			return err
		}
		if len(onAdapter) != 2 {
			t.Errorf("FEsOnAdapter(0): got %d want 2", len(onAdapter))
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

// ── LNB helpers ──────────────────────────────────────────────────────────

func TestHasNetwork(t *testing.T) {
	lnb := basicLNB(1, 0, 0, 0)
	lnb.UsalsPos = 180
	ok, pri, move, usalsPos := HasNetwork(lnb, 192)
	if !ok {
		t.Fatal("expected a configured network for sat_pos 192")
	}
	if pri != -1 {
		t.Errorf("priority = %d want -1", pri)
	}
	if move != 12 {
		t.Errorf("move amount = %d want 12", move)
	}
	if usalsPos != 192 {
		t.Errorf("usals_pos = %d want 192", usalsPos)
	}

	if ok, _, _, _ := HasNetwork(lnb, 450); ok {
		t.Error("unconfigured sat_pos should report hasNetwork=false")
	}
}

func TestBandForMux(t *testing.T) {
	lnb := basicLNB(1, 0, 0, 0)
	low := chdb.DVBSMux{Frequency: 11000000}
	high := chdb.DVBSMux{Frequency: 12000000}
	if BandForMux(lnb, low) != BandLow {
		t.Error("frequency below switch_freq should select BandLow")
	}
	if BandForMux(lnb, high) != BandHigh {
		t.Error("frequency at/above switch_freq should select BandHigh")
	}
}

func TestLNBCanTuneToMux(t *testing.T) {
	lnb := basicLNB(1, 0, 0, 0)
	ok := chdb.DVBSMux{Frequency: 11000000, Pol: chdb.PolH}
	if !LNBCanTuneToMux(lnb, ok) {
		t.Error("expected lnb to tune a supported pol within its LO range")
	}
	wrongPol := chdb.DVBSMux{Frequency: 11000000, Pol: chdb.PolL}
	if LNBCanTuneToMux(lnb, wrongPol) {
		t.Error("an unsupported polarisation must not be tunable")
	}
	tooLow := chdb.DVBSMux{Frequency: 1000, Pol: chdb.PolH}
	if LNBCanTuneToMux(lnb, tooLow) {
		t.Error("a frequency at/below the LO must not be tunable")
	}
}

func TestDishNeedsToMove(t *testing.T) {
	fixed := basicLNB(1, 0, 0, 0)
	if DishNeedsToMove(fixed, 1000) {
		t.Error("an LNB with no positioner never needs the dish to move")
	}
	motorised := fixed
	motorised.RotorControl = RotorUSALS
	if DishNeedsToMove(motorised, positionerTolerance-1) {
		t.Error("a move below tolerance should not be needed")
	}
	if !DishNeedsToMove(motorised, positionerTolerance) {
		t.Error("a move at/above tolerance should be needed")
	}
}

// ── subscription counts ──────────────────────────────────────────────────

func TestCountSubscriptions(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	other := basicLNB(1, 1, 0, 1) // same dish, different LNB
	fe0 := basicFE(1, 0, 0, 0)
	fe1 := basicFE(1, 1, 0, 1)

	fe0.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnb.Key}
	fe1.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: other.Key}

	if err := db.Update(func(txn store.Txn) error {
		for _, l := range []LNB{lnb, other} {
			if err := PutLNB(txn, l); err != nil {
				return err
			}
		}
		for _, fe := range []FE{fe0, fe1} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		counts, err := CountSubscriptions(txn, lnb.Key, nil)
		if err != nil {
			return err
		}
		if counts.LNB != 1 {
			t.Errorf("LNB count = %d want 1", counts.LNB)
		}
		if counts.Tuner != 2 {
			t.Errorf("Tuner count = %d want 2 (both fe on card 1)", counts.Tuner)
		}
		if counts.Dish != 2 {
			t.Errorf("Dish count = %d want 2 (both LNBs share dish 0)", counts.Dish)
		}
		if !counts.Any() {
			t.Error("Any() should be true")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestCountSubscriptions_excludesFeToRelease(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	fe0 := basicFE(1, 0, 0, 0)
	fe0.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnb.Key}

	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		return PutFE(txn, fe0)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		counts, err := CountSubscriptions(txn, lnb.Key, &fe0.Key)
		if err != nil {
			return err
		}
		if counts.Any() {
			t.Errorf("excluding the releasing frontend should leave no contenders: got %+v", counts)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestIsSubscribed_deadOwnerTreatedAsFree(t *testing.T) {
	fe := basicFE(1, 0, 0, 0)
	fe.Sub = Subscription{Owner: deadPID, UseCount: 1}
	if IsSubscribed(fe) {
		t.Error("a subscription owned by a dead pid must be treated as free")
	}
	fe.Sub.Owner = liveness.CurrentPID()
	if !IsSubscribed(fe) {
		t.Error("a subscription owned by this (live) process must be treated as live")
	}
}

// ── FindBestFEForLNB / conflict cases ────────────────────────────────────

func TestFindBestFEForLNB_picksFreeFrontend(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	fe := basicFE(1, 0, 0, 0)
	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		return PutFE(txn, fe)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		got, ok, err := FindBestFEForLNB(txn, lnb, nil, false, false, false, chdb.PolH, BandLow, 192)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected a free frontend to be found")
		}
		if got.Key != fe.Key {
			t.Errorf("got %+v want %+v", got.Key, fe.Key)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFindBestFEForLNB_conflictCase1SameLNBDifferentPol(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	holder := basicFE(1, 0, 0, 0)
	holder.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnb.Key, Pol: chdb.PolH, Band: BandLow, UsalsPos: 192}

	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		return PutFE(txn, holder)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		// A second subscriber asks for pol V on the same LNB while the
		// holder keeps it at pol H / low band / 192: that is a conflict.
		_, ok, err := FindBestFEForLNB(txn, lnb, nil, false, false, false, chdb.PolV, BandLow, 192)
		if err != nil {
			return err
		}
		if ok {
			t.Error("a conflicting pol request on an already-subscribed LNB must fail outright")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFindBestFEForLNB_noConflictSamePolBandSat(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	fe0 := basicFE(1, 0, 0, 0)
	fe1 := basicFE(1, 1, 1, 0)
	fe0.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnb.Key, Pol: chdb.PolH, Band: BandLow, UsalsPos: 192}

	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		if err := PutFE(txn, fe0); err != nil {
			return err
		}
		return PutFE(txn, fe1)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		got, ok, err := FindBestFEForLNB(txn, lnb, nil, false, false, false, chdb.PolH, BandLow, 192)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("matching pol/band/sat on the same LNB should not conflict")
		}
		if got.Key != fe1.Key {
			t.Errorf("expected the free frontend fe1, got %+v", got.Key)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFindBestFEForLNB_conflictCase4PositionerBusy(t *testing.T) {
	db := openTestDB(t)
	lnbA := basicLNB(1, 0, 0, 0)
	lnbB := basicLNB(1, 1, 0, 1) // same dish, different LNB and RF input
	lnbA.RotorControl = RotorUSALS
	lnbB.RotorControl = RotorUSALS

	holder := basicFE(1, 0, 0, 0)
	holder.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnbB.Key, Pol: chdb.PolH, Band: BandLow, UsalsPos: 100}
	other := basicFE(1, 1, 0, 1)

	if err := db.Update(func(txn store.Txn) error {
		for _, l := range []LNB{lnbA, lnbB} {
			if err := PutLNB(txn, l); err != nil {
				return err
			}
		}
		for _, fe := range []FE{holder, other} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		// lnbA wants usals_pos 192, far enough from lnbB's held 100 to
		// require a dish move: the shared positioner is busy.
		_, ok, err := FindBestFEForLNB(txn, lnbA, nil, false, false, false, chdb.PolH, BandLow, 192)
		if err != nil {
			return err
		}
		if ok {
			t.Error("a positioner already pointed elsewhere should conflict")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFindBestFEForLNB_ignoresConflictOnUnrelatedCard(t *testing.T) {
	db := openTestDB(t)
	// lnbOther lives on a different card and happens to share an
	// rf_coupler_id with lnb, but a conflict there must never block
	// arbitration for lnb's own card (spec §4.E scopes the whole
	// algorithm, free-candidate scan and occupied-conflict check alike,
	// to "frontends on the same card" as the LNB being arbitrated for).
	lnb := basicLNB(1, 0, 0, 0)
	lnb.RFCouplerID = 7
	lnbOther := basicLNB(2, 0, 1, 0)
	lnbOther.RFCouplerID = 7

	holderOnOtherCard := basicFE(2, 0, 1, 0)
	holderOnOtherCard.Sub = Subscription{Owner: liveness.CurrentPID(), UseCount: 1, LNBKey: lnbOther.Key, Pol: chdb.PolV, Band: BandHigh, UsalsPos: 100}
	freeOnLNBCard := basicFE(1, 0, 0, 0)

	if err := db.Update(func(txn store.Txn) error {
		for _, l := range []LNB{lnb, lnbOther} {
			if err := PutLNB(txn, l); err != nil {
				return err
			}
		}
		for _, fe := range []FE{holderOnOtherCard, freeOnLNBCard} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		got, ok, err := FindBestFEForLNB(txn, lnb, nil, false, false, false, chdb.PolH, BandLow, 192)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("a conflicting subscription on a different card must not block this card's arbitration")
		}
		if got.Key != freeOnLNBCard.Key {
			t.Errorf("got %+v want %+v", got.Key, freeOnLNBCard.Key)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

// ── FindFEAndLNBForMux ────────────────────────────────────────────────────

func TestFindFEAndLNBForMux_prefersHigherPriorityLNB(t *testing.T) {
	db := openTestDB(t)
	low := basicLNB(1, 0, 0, 0)
	low.Priority = 0
	high := basicLNB(2, 0, 1, 0)
	high.Priority = 10

	feLow := basicFE(1, 0, 0, 0)
	feHigh := basicFE(2, 0, 0, 0)

	if err := db.Update(func(txn store.Txn) error {
		for _, l := range []LNB{low, high} {
			if err := PutLNB(txn, l); err != nil {
				return err
			}
		}
		for _, fe := range []FE{feLow, feHigh} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mux := chdb.DVBSMux{K: chdb.MuxKey{SatPos: 192}, Frequency: 11000000, Pol: chdb.PolH, StreamID: -1}
	if err := db.View(func(txn store.Txn) error {
		fe, lnb, ok, err := FindFEAndLNBForMux(txn, mux, nil, nil, false, false, 10, 5)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("expected a usable LNB+FE pair")
		}
		if lnb.Key != high.Key {
			t.Errorf("expected the higher-priority LNB, got %+v", lnb.Key)
		}
		if fe.Key != feHigh.Key {
			t.Errorf("expected the matching frontend, got %+v", fe.Key)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestFindFEAndLNBForMux_skipsDisabledLNB(t *testing.T) {
	db := openTestDB(t)
	disabled := basicLNB(1, 0, 0, 0)
	disabled.Enabled = false
	fe := basicFE(1, 0, 0, 0)

	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, disabled); err != nil {
			return err
		}
		return PutFE(txn, fe)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mux := chdb.DVBSMux{K: chdb.MuxKey{SatPos: 192}, Frequency: 11000000, Pol: chdb.PolH, StreamID: -1}
	if err := db.View(func(txn store.Txn) error {
		_, _, ok, err := FindFEAndLNBForMux(txn, mux, nil, nil, false, false, 10, 5)
		if err != nil {
			return err
		}
		if ok {
			t.Error("a disabled LNB must never be selected")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

// ── Subscribe / Unsubscribe ───────────────────────────────────────────────

func TestSubscribeLNBBandPolSatAndUnsubscribe(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	fe := basicFE(1, 0, 0, 0)
	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		return PutFE(txn, fe)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mux := chdb.DVBSMux{K: chdb.MuxKey{SatPos: 192}, Frequency: 11000000, Pol: chdb.PolH, StreamID: -1}
	opts := TuneOptions{MayMoveDish: false, UseBlindTune: false, DishMovePenalty: 10, ResourceReuseBonus: 5}

	var reservedKey FEKey
	if err := db.Update(func(txn store.Txn) error {
		reserved, _, _, _, err := SubscribeLNBBandPolSat(txn, mux, nil, nil, opts)
		if err != nil {
			return err
		}
		reservedKey = reserved.Key
		if reserved.Sub.UseCount != 1 {
			t.Errorf("use_count = %d want 1", reserved.Sub.UseCount)
		}
		return nil
	}); err != nil {
		t.Fatalf("subscribe Update: %v", err)
	}

	if err := db.Update(func(txn store.Txn) error {
		remaining, err := Unsubscribe(txn, reservedKey)
		if err != nil {
			return err
		}
		if remaining != 0 {
			t.Errorf("remaining use_count = %d want 0", remaining)
		}
		return nil
	}); err != nil {
		t.Fatalf("unsubscribe Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		got, _, err := GetFE(txn, reservedKey)
		if err != nil {
			return err
		}
		if IsSubscribed(got) {
			t.Error("frontend should be free after Unsubscribe")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestSubscribeLNBExclusive_stampsNoneSentinelsAndSpectrum(t *testing.T) {
	db := openTestDB(t)
	lnb := basicLNB(1, 0, 0, 0)
	fe := basicFE(1, 0, 0, 0)
	fe.Caps = CapSpectrumSweep
	if err := db.Update(func(txn store.Txn) error {
		if err := PutLNB(txn, lnb); err != nil {
			return err
		}
		return PutFE(txn, fe)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.Update(func(txn store.Txn) error {
		reserved, err := SubscribeLNBExclusive(txn, lnb, nil, true)
		if err != nil {
			return err
		}
		if reserved.Sub.Pol != chdb.PolNone || reserved.Sub.Band != BandNone || reserved.Sub.UsalsPos != chdb.SatPosNone {
			t.Errorf("exclusive subscription should stamp NONE sentinels, got %+v", reserved.Sub)
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

// ── hot-plug ───────────────────────────────────────────────────────────

func TestApplyDeviceEvent_addThenRemove(t *testing.T) {
	db := openTestDB(t)
	ev := DeviceEvent{Kind: DeviceAdd, AdapterMAC: 1, AdapterNo: 0, FrontendNo: 0, AdapterName: "adapter0"}
	key := FEKey{AdapterMAC: 1, FrontendNo: 0}

	if err := db.Update(func(txn store.Txn) error { return ApplyDeviceEvent(txn, ev) }); err != nil {
		t.Fatalf("add Update: %v", err)
	}
	if err := db.View(func(txn store.Txn) error {
		fe, found, err := GetFE(txn, key)
		if err != nil {
			return err
		}
		if !found || !fe.Present || !fe.CanBeUse {
			t.Errorf("expected a present, usable frontend: %+v found=%v", fe, found)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}

	if err := db.Update(func(txn store.Txn) error {
		return ApplyDeviceEvent(txn, DeviceEvent{Kind: DeviceRemove, AdapterMAC: 1, AdapterNo: 0, FrontendNo: 0})
	}); err != nil {
		t.Fatalf("remove Update: %v", err)
	}
	if err := db.View(func(txn store.Txn) error {
		fe, found, err := GetFE(txn, key)
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("remove must not delete the record")
		}
		if fe.Present || fe.CanBeUse {
			t.Error("removed frontend should be marked absent/unusable")
		}
		if len(fe.AdapterName) < 4 || fe.AdapterName[:4] != "A-- " {
			t.Errorf("removed frontend's adapter name should be prefixed: %q", fe.AdapterName)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRenumberCards_denseAndOrdered(t *testing.T) {
	db := openTestDB(t)
	if err := db.Update(func(txn store.Txn) error {
		for _, fe := range []FE{basicFE(30, 0, 0, 0), basicFE(10, 0, 1, 0), basicFE(20, 0, 2, 0)} {
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
		return RenumberCards(txn)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		fe10, _, err := GetFE(txn, FEKey{AdapterMAC: 10, FrontendNo: 0})
		if err != nil {
			return err
		}
		fe20, _, err := GetFE(txn, FEKey{AdapterMAC: 20, FrontendNo: 0})
		if err != nil {
			return err
		}
		fe30, _, err := GetFE(txn, FEKey{AdapterMAC: 30, FrontendNo: 0})
		if err != nil {
			return err
		}
		if fe10.CardNo != 0 || fe20.CardNo != 1 || fe30.CardNo != 2 {
			t.Errorf("card numbers not dense/ordered by mac: %d %d %d", fe10.CardNo, fe20.CardNo, fe30.CardNo)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestClearStaleLiveSignal(t *testing.T) {
	db := openTestDB(t)
	if err := db.Update(func(txn store.Txn) error {
		return txn.Put(store.LiveSignalKey(1, 0), []byte("stale"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Update(func(txn store.Txn) error { return ClearStaleLiveSignal(txn) }); err != nil {
		t.Fatalf("ClearStaleLiveSignal: %v", err)
	}
	if err := db.View(func(txn store.Txn) error {
		cur := txn.Seek(store.LivePrefix(), store.LivePrefix(), store.SeekGEQ)
		if cur.Valid() {
			t.Error("expected no live-signal rows after clearing")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}
