package devdb

import (
	"encoding/json"
	"fmt"

	"github.com/neumodvb/devcore/internal/store"
)

func fePrimaryKey(k FEKey) []byte { return store.FEKey(k.CardMAC, k.FrontendNo) }
func lnbPrimaryKey(k LNBKey) []byte {
	return store.LNBKey(k.CardMAC, k.RFInput, k.DishID, k.LNBID)
}

// PutFE writes fe and its secondary index entries.
func PutFE(txn store.Txn, fe FE) error {
	data, err := json.Marshal(fe)
	if err != nil {
		return fmt.Errorf("devdb: marshal fe: %w", err)
	}
	pk := fePrimaryKey(fe.Key)
	if err := txn.Put(pk, data); err != nil {
		return fmt.Errorf("devdb: put fe: %w", err)
	}
	if err := txn.Put(store.FECardMACKey(fe.Key.CardMAC, pk), pk); err != nil {
		return fmt.Errorf("devdb: put fe card index: %w", err)
	}
	if err := txn.Put(store.FEAdapterNoKey(fe.AdapterNo, pk), pk); err != nil {
		return fmt.Errorf("devdb: put fe adapter index: %w", err)
	}
	return nil
}

// GetFE fetches the frontend identified by k.
func GetFE(txn store.Txn, k FEKey) (FE, bool, error) {
	data, err := txn.Get(fePrimaryKey(k))
	if err == store.ErrNotFound {
		return FE{}, false, nil
	}
	if err != nil {
		return FE{}, false, err
	}
	var fe FE
	if err := json.Unmarshal(data, &fe); err != nil {
		return FE{}, false, fmt.Errorf("devdb: unmarshal fe: %w", err)
	}
	return fe, true, nil
}

func resolveFE(txn store.Txn, primary []byte) (FE, error) {
	data, err := txn.Get(primary)
	if err != nil {
		return FE{}, err
	}
	var fe FE
	if err := json.Unmarshal(data, &fe); err != nil {
		return FE{}, fmt.Errorf("devdb: unmarshal fe: %w", err)
	}
	return fe, nil
}

// AllFEs returns every frontend record in the store.
func AllFEs(txn store.Txn) ([]FE, error) {
	prefix := store.FEPrefix()
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	var out []FE
	for cur.Valid() {
		_, v := cur.Item()
		var fe FE
		if err := json.Unmarshal(v, &fe); err != nil {
			return nil, fmt.Errorf("devdb: unmarshal fe: %w", err)
		}
		out = append(out, fe)
		cur.Next()
	}
	return out, nil
}

// FEsOnCard returns every frontend sharing cardMAC (spec §4.D step 1: a
// multi-frontend card shares one demod).
func FEsOnCard(txn store.Txn, cardMAC int64) ([]FE, error) {
	prefix := store.FECardMACPrefix(cardMAC)
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	var out []FE
	for cur.Valid() {
		_, v := cur.Item()
		fe, err := resolveFE(txn, v)
		if err != nil {
			return nil, err
		}
		out = append(out, fe)
		cur.Next()
	}
	return out, nil
}

// FEsOnAdapter returns every frontend sharing adapterNo (spec §6: multiple
// frontend nodes under one adapterN directory share one demod).
func FEsOnAdapter(txn store.Txn, adapterNo int32) ([]FE, error) {
	prefix := store.FEAdapterNoPrefix(adapterNo)
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	var out []FE
	for cur.Valid() {
		_, v := cur.Item()
		fe, err := resolveFE(txn, v)
		if err != nil {
			return nil, err
		}
		out = append(out, fe)
		cur.Next()
	}
	return out, nil
}

// PutLNB writes lnb.
func PutLNB(txn store.Txn, lnb LNB) error {
	data, err := json.Marshal(lnb)
	if err != nil {
		return fmt.Errorf("devdb: marshal lnb: %w", err)
	}
	if err := txn.Put(lnbPrimaryKey(lnb.Key), data); err != nil {
		return fmt.Errorf("devdb: put lnb: %w", err)
	}
	return nil
}

// GetLNB fetches the LNB identified by k.
func GetLNB(txn store.Txn, k LNBKey) (LNB, bool, error) {
	data, err := txn.Get(lnbPrimaryKey(k))
	if err == store.ErrNotFound {
		return LNB{}, false, nil
	}
	if err != nil {
		return LNB{}, false, err
	}
	var lnb LNB
	if err := json.Unmarshal(data, &lnb); err != nil {
		return LNB{}, false, fmt.Errorf("devdb: unmarshal lnb: %w", err)
	}
	return lnb, true, nil
}

// AllLNBs returns every LNB record in the store.
func AllLNBs(txn store.Txn) ([]LNB, error) {
	prefix := store.LNBPrefix()
	cur := txn.Seek(prefix, prefix, store.SeekGEQ)
	var out []LNB
	for cur.Valid() {
		_, v := cur.Item()
		var lnb LNB
		if err := json.Unmarshal(v, &lnb); err != nil {
			return nil, fmt.Errorf("devdb: unmarshal lnb: %w", err)
		}
		out = append(out, lnb)
		cur.Next()
	}
	return out, nil
}
