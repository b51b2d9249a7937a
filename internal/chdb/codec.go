package chdb

import (
	"encoding/json"
	"fmt"

	"github.com/neumodvb/devcore/internal/store"
)

// kindByte maps a mux Kind to its store record-kind prefix byte.
func kindByte(k Kind) byte {
	switch k {
	case KindDVBC:
		return store.KindMuxDVBC
	case KindDVBT:
		return store.KindMuxDVBT
	default:
		return store.KindMuxDVBS
	}
}

func polByte(p Polarisation) byte { return byte(p) }

// primaryKey builds the store primary key for mux, dispatching on variant.
func primaryKey(mux AnyMux) []byte {
	k := mux.Key()
	return store.MuxPrimaryKey(kindByte(mux.Kind), int32(k.SatPos), k.NetworkID, k.TSID, k.T2MIPID, k.ExtraID)
}

func primaryKeyForKey(kind Kind, k MuxKey) []byte {
	return store.MuxPrimaryKey(kindByte(kind), int32(k.SatPos), k.NetworkID, k.TSID, k.T2MIPID, k.ExtraID)
}

func encodeMux(mux AnyMux) ([]byte, error) {
	b, err := json.Marshal(mux)
	if err != nil {
		return nil, fmt.Errorf("chdb: marshal mux: %w", err)
	}
	return b, nil
}

func decodeMux(kind Kind, data []byte) (AnyMux, error) {
	var mux AnyMux
	if err := json.Unmarshal(data, &mux); err != nil {
		return AnyMux{}, fmt.Errorf("chdb: unmarshal mux: %w", err)
	}
	mux.Kind = kind
	return mux, nil
}

// PutMux writes mux and all of its secondary index entries within txn.
func PutMux(txn store.Txn, mux AnyMux) error {
	data, err := encodeMux(mux)
	if err != nil {
		return err
	}
	pk := primaryKey(mux)
	if err := txn.Put(pk, data); err != nil {
		return fmt.Errorf("chdb: put mux %s: %w", mux.Key(), err)
	}
	k := mux.Key()
	if err := txn.Put(store.MuxNidTidKey(kindByte(mux.Kind), k.NetworkID, k.TSID, pk), pk); err != nil {
		return fmt.Errorf("chdb: put mux nid/tid index: %w", err)
	}
	if mux.Kind == KindDVBS {
		if err := txn.Put(store.MuxSatPolFreqKey(int32(k.SatPos), polByte(mux.S.Pol), mux.S.Frequency, pk), pk); err != nil {
			return fmt.Errorf("chdb: put mux sat/pol/freq index: %w", err)
		}
		if err := txn.Put(store.SatKey(int32(k.SatPos)), []byte{}); err != nil {
			return fmt.Errorf("chdb: put sat key: %w", err)
		}
	} else {
		if err := txn.Put(store.MuxFrequencyKey(kindByte(mux.Kind), mux.Frequency(), pk), pk); err != nil {
			return fmt.Errorf("chdb: put mux frequency index: %w", err)
		}
	}
	return nil
}

// DeleteMux removes mux and its secondary index entries within txn.
func DeleteMux(txn store.Txn, mux AnyMux) error {
	pk := primaryKey(mux)
	k := mux.Key()
	if err := txn.Delete(pk); err != nil {
		return err
	}
	if err := txn.Delete(store.MuxNidTidKey(kindByte(mux.Kind), k.NetworkID, k.TSID, pk)); err != nil {
		return err
	}
	if mux.Kind == KindDVBS {
		return txn.Delete(store.MuxSatPolFreqKey(int32(k.SatPos), polByte(mux.S.Pol), mux.S.Frequency, pk))
	}
	return txn.Delete(store.MuxFrequencyKey(kindByte(mux.Kind), mux.Frequency(), pk))
}

// getMuxAt fetches and decodes the mux stored under the exact primary key.
func getMuxAt(txn store.Txn, kind Kind, k MuxKey) (AnyMux, bool, error) {
	pk := primaryKeyForKey(kind, k)
	data, err := txn.Get(pk)
	if err == store.ErrNotFound {
		return AnyMux{}, false, nil
	}
	if err != nil {
		return AnyMux{}, false, err
	}
	mux, err := decodeMux(kind, data)
	return mux, true, err
}

// resolveIndexed dereferences a secondary-index value (the primary key) back
// to the full mux record.
func resolveIndexed(txn store.Txn, kind Kind, primary []byte) (AnyMux, error) {
	data, err := txn.Get(primary)
	if err != nil {
		return AnyMux{}, err
	}
	return decodeMux(kind, data)
}
