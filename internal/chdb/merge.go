package chdb

import (
	"errors"
	"fmt"

	"github.com/neumodvb/devcore/internal/store"
)

// UpdateResult classifies how update_mux resolved its lookup (spec §4.C).
type UpdateResult int

const (
	UpdateUnknown UpdateResult = iota
	UpdateMatchingSIAndFreq
	UpdateMatchingFreq
	UpdateNoMatchingKey
	UpdateNew
	UpdateEqual
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateMatchingSIAndFreq:
		return "MATCHING_SI_AND_FREQ"
	case UpdateMatchingFreq:
		return "MATCHING_FREQ"
	case UpdateNoMatchingKey:
		return "NO_MATCHING_KEY"
	case UpdateNew:
		return "NEW"
	case UpdateEqual:
		return "EQUAL"
	default:
		return "UNKNOWN"
	}
}

// PreserveFlags selects which fields of the store's existing record survive
// a merge regardless of what the incoming descriptor carries (spec §4.C
// step 3's per-flag copy list).
type PreserveFlags uint32

const (
	PreserveNone        PreserveFlags = 0
	PreserveScanData    PreserveFlags = 1 << 0
	PreserveScanStatus  PreserveFlags = 1 << 1
	PreserveNumServices PreserveFlags = 1 << 2
	PreserveEPGTypes    PreserveFlags = 1 << 3
	PreserveMTime       PreserveFlags = 1 << 4
	PreserveMuxKey      PreserveFlags = 1 << 5
	PreserveAll         = PreserveScanData | PreserveScanStatus | PreserveNumServices |
		PreserveEPGTypes | PreserveMTime | PreserveMuxKey
)

// ErrRejected is returned when the caller's accept callback rejects the
// matched (or absent) candidate record.
var ErrRejected = errors.New("chdb: update rejected by accept callback")

// AcceptFunc previews the record update_mux is about to merge against
// (nil if none was found) and may veto the merge.
type AcceptFunc func(dbMux *AnyMux) bool

// KeyChangeFunc is the on_mux_key_change hook: invoked when a merge changes
// a mux's composite key, so referencing records (services, scan history)
// can be rekeyed inside the same transaction (spec §4.C step 4).
type KeyChangeFunc func(old, new MuxKey) error

func rank(ts TuneSrc) int {
	switch ts {
	case TuneSrcTemplate, TuneSrcAuto:
		return 0
	case TuneSrcDriver:
		return 1
	case TuneSrcNITOtherNonTuned:
		return 2
	case TuneSrcNITActualNonTuned:
		return 3
	case TuneSrcNITActualTuned:
		return 4
	case TuneSrcUser:
		return 5
	default:
		return -1 // UNKNOWN
	}
}

func assignExtraID(txn store.Txn, kind Kind, mux *AnyMux) error {
	k := mux.Key()
	if k.ExtraID != 0 {
		return nil
	}
	prefix := store.MuxPrimaryPrefix(kindByte(kind), int32(k.SatPos), k.NetworkID, k.TSID, k.T2MIPID)
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	used := map[uint16]bool{}
	for cur.Valid() {
		key, _ := cur.Item()
		if len(key) >= 2 {
			used[store.Uint16FromSortable(key[len(key)-2:])] = true
		}
		cur.Next()
	}
	var id uint16 = 1
	for used[id] {
		id++
	}
	k.ExtraID = id
	mux.SetKey(k)
	return nil
}

// applyProvenance resolves the provenance lattice between the incoming
// descriptor (already merged's current state) and the stored record,
// returning whichever of the two tuning+label pairs wins (spec §4.C step 3,
// the "otherwise apply the provenance lattice" bullet). A TEMPLATE label is
// always demoted to AUTO first. A strictly more authoritative incoming
// source overwrites tuning and label; a strictly less authoritative one
// never does — whether or not tuning_is_same, since if it is the same the
// outcome is identical either way, and if it is not the lower-rank source
// must not be allowed to corrupt already-more-authoritative tuning data
// (this keeps the stored tune_src monotonic per spec §8 invariant 6). Equal
// rank (including USER against USER) refreshes tuning but keeps the label.
func applyProvenance(dbMux, merged AnyMux) (AnyMux, error) {
	inC := merged.Common()
	if inC.TuneSrc == TuneSrcTemplate {
		inC.TuneSrc = TuneSrcAuto
		merged.SetCommon(inC)
	}
	dbC := dbMux.Common()

	if dbC.TuneSrc == TuneSrcUnknown || inC.TuneSrc == TuneSrcUnknown {
		return AnyMux{}, fmt.Errorf("chdb: tune_src UNKNOWN: %w", errUnknownProvenance)
	}

	rIn, rDb := rank(inC.TuneSrc), rank(dbC.TuneSrc)
	switch {
	case rIn > rDb:
		return merged, nil
	case rIn < rDb:
		out := dbMux
		c := inC
		c.TuneSrc = dbC.TuneSrc
		out.SetCommon(c)
		return out, nil
	default:
		out := merged
		c := out.Common()
		c.TuneSrc = dbC.TuneSrc
		out.SetCommon(c)
		return out, nil
	}
}

var errUnknownProvenance = errors.New("unreachable provenance state")

// preserveFields copies the fields preserve names from db into merged,
// leaving everything else (tuning, label already resolved by
// applyProvenance) untouched (spec §4.C step 3's per-flag copy list).
func preserveFields(merged, dbMux AnyMux, preserve PreserveFlags) AnyMux {
	mc := merged.Common()
	dc := dbMux.Common()
	if preserve&PreserveScanData != 0 {
		mc.ScanResult = dc.ScanResult
		mc.ScanDuration = dc.ScanDuration
		mc.ScanTime = dc.ScanTime
		mc.EPGScan = dc.EPGScan
	}
	if preserve&PreserveScanStatus != 0 {
		mc.ScanStatus = dc.ScanStatus
		mc.ScanID = dc.ScanID
	}
	if preserve&PreserveNumServices != 0 {
		mc.NumServices = dc.NumServices
	}
	if preserve&PreserveEPGTypes != 0 {
		mc.EPGTypes = dc.EPGTypes
	}
	if preserve&PreserveMTime != 0 {
		mc.MTime = dc.MTime
	}
	merged.SetCommon(mc)
	if preserve&PreserveMuxKey != 0 {
		merged.SetKey(dbMux.Key())
	}
	return merged
}

// UpdateMux reconciles mux with its store counterpart under txn and writes
// the merged record, returning a classification of how the lookup resolved
// (spec §4.C). now is a unix-seconds timestamp stamped into the written
// record's mtime unless PreserveMTime keeps the stored one; onKeyChange (may be nil) is invoked when a merge changes
// the mux's composite key.
func UpdateMux(txn store.Txn, kind Kind, mux AnyMux, now int64, preserve PreserveFlags, accept AcceptFunc, onKeyChange KeyChangeFunc) (UpdateResult, AnyMux, error) {
	// Step 1: templates need a unique extra_id before anything else keys
	// off their composite mux key.
	if IsTemplate(mux.Common()) {
		if err := assignExtraID(txn, kind, &mux); err != nil {
			return UpdateUnknown, AnyMux{}, err
		}
	}
	// Step 2: locate an existing record, key+fuzzy-frequency first, then
	// fully fuzzy ignoring nid/tsid.
	dbMux, matchedByKey, err := FindByMux(txn, kind, mux)
	if err != nil {
		return UpdateUnknown, AnyMux{}, err
	}
	found := matchedByKey
	if !found {
		if kind == KindDVBS {
			dbMux, found, err = FindByMuxFuzzy(txn, mux.S)
		} else {
			dbMux, found, err = FindByFreqFuzzy(txn, kind, mux.Frequency(), freqTolerance)
		}
		if err != nil {
			return UpdateUnknown, AnyMux{}, err
		}
	}

	if accept != nil {
		var dbPtr *AnyMux
		if found {
			dbPtr = &dbMux
		}
		if !accept(dbPtr) {
			return UpdateUnknown, AnyMux{}, ErrRejected
		}
	}

	if !found {
		c := mux.Common()
		if c.TuneSrc == TuneSrcTemplate {
			c.TuneSrc = TuneSrcAuto
		}
		c.MTime = now
		mux.SetCommon(c)
		if err := PutMux(txn, mux); err != nil {
			return UpdateUnknown, AnyMux{}, err
		}
		return UpdateNew, mux, nil
	}

	oldKey := dbMux.Key()
	merged := mux

	// Step 3: merge. MUX_KEY preservation or a template's missing identity
	// takes the stored key outright.
	if preserve&PreserveMuxKey != 0 || IsTemplate(mux.Common()) {
		merged.SetKey(dbMux.Key())
	}

	dbC := dbMux.Common()
	mergedBefore := merged
	if dbC.TuneSrc == TuneSrcUser && merged.Common().TuneSrc != TuneSrcAuto {
		// The stored record is USER-pinned and the incoming descriptor is
		// not a mere AUTO refresh: keep the store's tuning, relabel USER.
		k, c := merged.Key(), merged.Common()
		merged = dbMux
		merged.SetKey(k)
		c.TuneSrc = TuneSrcUser
		merged.SetCommon(c)
	} else {
		merged, err = applyProvenance(dbMux, merged)
		if err != nil {
			return UpdateUnknown, AnyMux{}, err
		}
	}
	merged = preserveFields(merged, dbMux, preserve)

	equal := matchedByKey && TuningIsSame(mergedBefore, dbMux) && merged.Key() == oldKey

	if preserve&PreserveMTime == 0 {
		c := merged.Common()
		c.MTime = now
		merged.SetCommon(c)
	}

	// Step 4: rekey referencing records if the key changed.
	newKey := merged.Key()
	if newKey != oldKey {
		if err := DeleteMux(txn, dbMux); err != nil {
			return UpdateUnknown, AnyMux{}, err
		}
		if onKeyChange != nil {
			if err := onKeyChange(oldKey, newKey); err != nil {
				return UpdateUnknown, AnyMux{}, err
			}
		}
	}

	// Step 5: write the merged record.
	if err := PutMux(txn, merged); err != nil {
		return UpdateUnknown, AnyMux{}, err
	}

	if equal {
		return UpdateEqual, merged, nil
	}
	if matchedByKey {
		return UpdateMatchingSIAndFreq, merged, nil
	}
	if newKey == oldKey {
		return UpdateMatchingFreq, merged, nil
	}
	return UpdateNoMatchingKey, merged, nil
}
