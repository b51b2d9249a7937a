package introspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/neumodvb/devcore/internal/devdb"
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

func TestHandleHealthz_okOnReachableStore(t *testing.T) {
	db := openTestDB(t)
	s := New(db, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleHealthz_unavailableOnClosedStore(t *testing.T) {
	db := openTestDB(t)
	s := New(db, Config{})
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleDebugSubscriptions_rejectsNonGET(t *testing.T) {
	db := openTestDB(t)
	s := New(db, Config{})

	req := httptest.NewRequest(http.MethodPost, "/debug/subscriptions", nil)
	rec := httptest.NewRecorder()
	s.handleDebugSubscriptions(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleDebugSubscriptions_listsOnlyLiveSubscriptions(t *testing.T) {
	db := openTestDB(t)

	live := devdb.FE{
		Key:      devdb.FEKey{AdapterMAC: 1, FrontendNo: 0},
		Present:  true,
		CanBeUse: true,
		Sub:      devdb.Subscription{Owner: liveness.CurrentPID(), UseCount: 1, Frequency: 11000000},
	}
	idle := devdb.FE{
		Key:      devdb.FEKey{AdapterMAC: 2, FrontendNo: 0},
		Present:  true,
		CanBeUse: true,
		Sub:      devdb.Subscription{Owner: -1},
	}
	if err := db.Update(func(txn store.Txn) error {
		if err := devdb.PutFE(txn, live); err != nil {
			return err
		}
		return devdb.PutFE(txn, idle)
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	s := New(db, Config{})
	req := httptest.NewRequest(http.MethodGet, "/debug/subscriptions", nil)
	rec := httptest.NewRecorder()
	s.handleDebugSubscriptions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d want %d", rec.Code, http.StatusOK)
	}
	var dump []subscriptionDump
	if err := json.Unmarshal(rec.Body.Bytes(), &dump); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(dump) != 1 {
		t.Fatalf("got %d subscriptions want 1: %+v", len(dump), dump)
	}
	if dump[0].AdapterMAC != 1 || dump[0].Frequency != 11000000 {
		t.Errorf("got %+v", dump[0])
	}
}

func TestConfig_withDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Addr != ":9870" {
		t.Errorf("Addr = %q want %q", c.Addr, ":9870")
	}
	if c.MaxConns != 16 {
		t.Errorf("MaxConns = %d want 16", c.MaxConns)
	}

	custom := Config{Addr: ":1234", MaxConns: 4}.withDefaults()
	if custom.Addr != ":1234" || custom.MaxConns != 4 {
		t.Errorf("withDefaults should not override explicit values: %+v", custom)
	}
}
