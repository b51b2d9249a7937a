package store

import "encoding/binary"

// Record kind prefixes. Every key begins with one of these so distinct
// record kinds never collide in the same ordered keyspace and so a prefix
// scan over one kind never wanders into another.
const (
	KindMuxDVBS byte = 0x01
	KindMuxDVBC byte = 0x02
	KindMuxDVBT byte = 0x03
	KindSat     byte = 0x04
	KindLNB     byte = 0x05
	KindFE      byte = 0x06
	KindLive    byte = 0x07
)

// indexTag distinguishes the primary key encoding of a record kind from its
// secondary index encodings (e.g. a mux indexed by (sat_pos, pol, frequency)
// in addition to its (sat_pos, network_id, ts_id, t2mi_pid) primary key).
const (
	IndexPrimary         byte = 0x00
	IndexNidTid          byte = 0x01
	IndexSatPolFreq      byte = 0x02
	IndexFrequency       byte = 0x03
	IndexCardMAC         byte = 0x04
	IndexAdapterNo       byte = 0x05
)

// PutUint16Sortable encodes v so unsigned byte-wise comparison matches
// numeric order (uint16 is already sortable big-endian).
func PutUint16Sortable(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// PutUint32Sortable encodes v so unsigned byte-wise comparison matches
// numeric order.
func PutUint32Sortable(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PutInt32Sortable flips the sign bit so two's-complement negative values
// sort before positive ones under plain byte comparison. Used for sat_pos,
// whose sentinel values (SatPosNone etc.) are negative.
func PutInt32Sortable(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v)^0x80000000)
	return b
}

// PutInt16Sortable is the 16-bit analogue of PutInt32Sortable.
func PutInt16Sortable(v int16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v)^0x8000)
	return b
}

// Int32FromSortable reverses PutInt32Sortable.
func Int32FromSortable(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b) ^ 0x80000000)
}

// Uint16FromSortable reverses PutUint16Sortable.
func Uint16FromSortable(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// MuxPrimaryKey builds the primary-key encoding (sat_pos, network_id, ts_id,
// t2mi_pid, extra_id) for the given mux kind (spec §3: composite mux key).
func MuxPrimaryKey(kind byte, satPos int32, networkID, tsID uint16, t2miPID int16, extraID uint16) []byte {
	return concat([]byte{kind, IndexPrimary}, PutInt32Sortable(satPos), PutUint16Sortable(networkID),
		PutUint16Sortable(tsID), PutInt16Sortable(t2miPID), PutUint16Sortable(extraID))
}

// MuxPrimaryPrefix builds a prefix over all extra_id variants sharing
// (sat_pos, network_id, ts_id, t2mi_pid) — used by find_by_mux's key+fuzzy
// scan (spec §4.B).
func MuxPrimaryPrefix(kind byte, satPos int32, networkID, tsID uint16, t2miPID int16) []byte {
	return concat([]byte{kind, IndexPrimary}, PutInt32Sortable(satPos), PutUint16Sortable(networkID),
		PutUint16Sortable(tsID), PutInt16Sortable(t2miPID))
}

// MuxNidTidKey builds the (network_id, ts_id) secondary index key used by
// get_by_nid_tid_unique (spec §4.B), followed by the mux's own primary key
// so the index can hold many records per (nid, tsid) without collision.
func MuxNidTidKey(kind byte, networkID, tsID uint16, primary []byte) []byte {
	return concat([]byte{kind, IndexNidTid}, PutUint16Sortable(networkID), PutUint16Sortable(tsID), primary)
}

// MuxNidTidPrefix builds the (network_id, ts_id) scan prefix.
func MuxNidTidPrefix(kind byte, networkID, tsID uint16) []byte {
	return concat([]byte{kind, IndexNidTid}, PutUint16Sortable(networkID), PutUint16Sortable(tsID))
}

// MuxSatPolFreqKey builds the (sat_pos, pol, frequency) secondary index key
// used by find_by_mux_fuzzy's frequency walk (spec §4.B).
func MuxSatPolFreqKey(satPos int32, pol byte, frequency uint32, primary []byte) []byte {
	return concat([]byte{KindMuxDVBS, IndexSatPolFreq}, PutInt32Sortable(satPos), []byte{pol},
		PutUint32Sortable(frequency), primary)
}

// MuxSatPolFreqPrefix builds the (sat_pos, pol) scan prefix.
func MuxSatPolFreqPrefix(satPos int32, pol byte) []byte {
	return concat([]byte{KindMuxDVBS, IndexSatPolFreq}, PutInt32Sortable(satPos), []byte{pol})
}

// MuxSatPolFreqSeek builds a seek position within the (sat_pos, pol) prefix
// at the given frequency (with no primary-key suffix, so it sorts before
// any record at that exact frequency for find_geq and after none for
// find_leq purposes — callers compare on the frequency portion only).
func MuxSatPolFreqSeek(satPos int32, pol byte, frequency uint32) []byte {
	return concat([]byte{KindMuxDVBS, IndexSatPolFreq}, PutInt32Sortable(satPos), []byte{pol}, PutUint32Sortable(frequency))
}

// MuxFrequencyKey builds the single-axis frequency index used by cable and
// terrestrial fuzzy lookup (spec §4.B).
func MuxFrequencyKey(kind byte, frequency uint32, primary []byte) []byte {
	return concat([]byte{kind, IndexFrequency}, PutUint32Sortable(frequency), primary)
}

// MuxFrequencyPrefix builds the frequency-index scan prefix for kind.
func MuxFrequencyPrefix(kind byte) []byte {
	return []byte{kind, IndexFrequency}
}

// MuxFrequencySeek builds a seek position within the frequency index.
func MuxFrequencySeek(kind byte, frequency uint32) []byte {
	return concat([]byte{kind, IndexFrequency}, PutUint32Sortable(frequency))
}

// SatKey builds the primary key for a known satellite position, used by
// find_by_mux_fuzzy's neighbouring-satellite retry (spec §4.B step 3).
func SatKey(satPos int32) []byte {
	return concat([]byte{KindSat, IndexPrimary}, PutInt32Sortable(satPos))
}

// SatPrefix is the scan prefix over all known satellite positions.
func SatPrefix() []byte {
	return []byte{KindSat, IndexPrimary}
}

// LNBKey builds the primary key (card_mac_address, rf_input, dish_id,
// lnb_id) for an LNB record (spec §3).
func LNBKey(cardMAC int64, rfInput int32, dishID int32, lnbID int32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(cardMAC)^0x8000000000000000)
	return concat([]byte{KindLNB, IndexPrimary}, b, PutInt32Sortable(rfInput), PutInt32Sortable(dishID), PutInt32Sortable(lnbID))
}

// LNBPrefix is the scan prefix over all LNB records.
func LNBPrefix() []byte {
	return []byte{KindLNB, IndexPrimary}
}

// FEKey builds the primary key (adapter_mac, frontend_no) for a frontend
// record (spec §3).
func FEKey(adapterMAC int64, frontendNo int32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(adapterMAC)^0x8000000000000000)
	return concat([]byte{KindFE, IndexPrimary}, b, PutInt32Sortable(frontendNo))
}

// FEPrefix is the scan prefix over all frontend records.
func FEPrefix() []byte {
	return []byte{KindFE, IndexPrimary}
}

// FECardMACKey builds the (card_mac_address) secondary index used to find
// every frontend on one card (spec §4.E finds "frontends on the same card").
func FECardMACKey(cardMAC int64, primary []byte) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(cardMAC)^0x8000000000000000)
	return concat([]byte{KindFE, IndexCardMAC}, b, primary)
}

// FECardMACPrefix is the scan prefix for one card's frontends.
func FECardMACPrefix(cardMAC int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(cardMAC)^0x8000000000000000)
	return concat([]byte{KindFE, IndexCardMAC}, b)
}

// FEAdapterNoKey builds the (adapter_no) secondary index used to detect
// whether any frontend sharing a demod is already subscribed (spec §4.D).
func FEAdapterNoKey(adapterNo int32, primary []byte) []byte {
	return concat([]byte{KindFE, IndexAdapterNo}, PutInt32Sortable(adapterNo), primary)
}

// FEAdapterNoPrefix is the scan prefix for one adapter's frontends.
func FEAdapterNoPrefix(adapterNo int32) []byte {
	return concat([]byte{KindFE, IndexAdapterNo}, PutInt32Sortable(adapterNo))
}

// LiveSignalKey builds the key for a per-adapter live-signal scratch row,
// cleared at startup (spec §6).
func LiveSignalKey(adapterMAC int64, frontendNo int32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(adapterMAC)^0x8000000000000000)
	return concat([]byte{KindLive, IndexPrimary}, b, PutInt32Sortable(frontendNo))
}

// LivePrefix is the scan prefix over all live-signal scratch rows.
func LivePrefix() []byte {
	return []byte{KindLive, IndexPrimary}
}
