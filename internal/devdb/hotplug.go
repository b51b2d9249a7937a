package devdb

import (
	"sort"

	"github.com/neumodvb/devcore/internal/store"
)

// DeviceEventKind distinguishes a hot-plug add from a remove (spec §6).
type DeviceEventKind int

const (
	DeviceAdd DeviceEventKind = iota
	DeviceRemove
)

// DeviceEvent is what an external device monitor emits into a write
// transaction on frontend hot-plug (spec §6, §9 "Global device monitor").
type DeviceEvent struct {
	Kind        DeviceEventKind
	AdapterMAC  int64
	AdapterNo   int32
	FrontendNo  int32
	AdapterName string
}

// ApplyDeviceEvent implements the add/remove semantics a hot-plug event
// drives: on add, create or update the FE record, mark it present and
// usable, and re-number cards; on remove, mark it absent without deleting
// it and prefix its cached adapter name "A-- " (spec §6).
func ApplyDeviceEvent(txn store.Txn, ev DeviceEvent) error {
	key := FEKey{AdapterMAC: ev.AdapterMAC, FrontendNo: ev.FrontendNo}
	fe, found, err := GetFE(txn, key)
	if err != nil {
		return err
	}
	if !found {
		fe = FE{Key: key, Sub: Subscription{Owner: -1}}
	}

	switch ev.Kind {
	case DeviceAdd:
		fe.Present = true
		fe.CanBeUse = true
		fe.AdapterNo = ev.AdapterNo
		fe.AdapterName = ev.AdapterName
	case DeviceRemove:
		fe.Present = false
		fe.CanBeUse = false
		fe.AdapterNo = -1
		if len(fe.AdapterName) < 4 || fe.AdapterName[:4] != "A-- " {
			fe.AdapterName = "A-- " + fe.AdapterName
		}
	}

	if err := PutFE(txn, fe); err != nil {
		return err
	}
	if err := RenumberCards(txn); err != nil {
		return err
	}
	return refreshLNBAdapterFields(txn)
}

// RenumberCards assigns a dense, unique card_no to every distinct
// adapter_mac_address present in the store, ordered by that address (spec
// §6: "re-number cards so each card has a dense unique card_no").
func RenumberCards(txn store.Txn) error {
	all, err := AllFEs(txn)
	if err != nil {
		return err
	}
	numbering := map[int64]int32{}
	var macs []int64
	for _, fe := range all {
		if _, ok := numbering[fe.Key.AdapterMAC]; !ok {
			numbering[fe.Key.AdapterMAC] = 0
			macs = append(macs, fe.Key.AdapterMAC)
		}
	}
	sort.Slice(macs, func(i, j int) bool { return macs[i] < macs[j] })
	for i, mac := range macs {
		numbering[mac] = int32(i)
	}
	for _, fe := range all {
		want := numbering[fe.Key.AdapterMAC]
		if fe.CardNo != want {
			fe.CardNo = want
			if err := PutFE(txn, fe); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshLNBAdapterFields mirrors each LNB's cached adapter_name from the
// frontend wired to its card (spec §6 "refresh any LNB's cached adapter
// fields").
func refreshLNBAdapterFields(txn store.Txn) error {
	lnbs, err := AllLNBs(txn)
	if err != nil {
		return err
	}
	for _, lnb := range lnbs {
		fes, err := FEsOnCard(txn, lnb.Key.CardMAC)
		if err != nil {
			return err
		}
		if len(fes) == 0 {
			continue
		}
		if lnb.AdapterName != fes[0].AdapterName {
			lnb.AdapterName = fes[0].AdapterName
			if err := PutLNB(txn, lnb); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearStaleLiveSignal clears per-adapter live-signal scratch rows left
// over from an earlier crash, run once at startup before the device
// monitor starts emitting events (spec §6).
func ClearStaleLiveSignal(txn store.Txn) error {
	prefix := store.LivePrefix()
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	var keys [][]byte
	for cur.Valid() {
		k, _ := cur.Item()
		keys = append(keys, append([]byte(nil), k...))
		cur.Next()
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
