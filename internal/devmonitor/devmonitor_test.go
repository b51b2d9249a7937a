package devmonitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/neumodvb/devcore/internal/devdb"
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

func TestConfig_withDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Root != "/dev/dvb" {
		t.Errorf("Root = %q want /dev/dvb", c.Root)
	}
	if c.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v want 2s", c.PollInterval)
	}
	if c.EventRate != 5 || c.EventBurst != 10 || c.QueueLen != 64 {
		t.Errorf("unexpected defaults: %+v", c)
	}

	custom := Config{Root: "/tmp/dvb", QueueLen: 8}.withDefaults()
	if custom.Root != "/tmp/dvb" || custom.QueueLen != 8 {
		t.Errorf("withDefaults should not override explicit values: %+v", custom)
	}
}

func makeFrontendNode(t *testing.T, root string, adapterNo, frontendNo int) {
	t.Helper()
	dir := filepath.Join(root, "adapter"+itoa(adapterNo))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f := filepath.Join(dir, "frontend"+itoa(frontendNo))
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestScanFrontends_findsAdapterFrontendPairs(t *testing.T) {
	root := t.TempDir()
	makeFrontendNode(t, root, 0, 0)
	makeFrontendNode(t, root, 0, 1)
	makeFrontendNode(t, root, 1, 0)
	os.WriteFile(filepath.Join(root, "adapter0", "demux0"), nil, 0o644)

	got, err := scanFrontends(root)
	if err != nil {
		t.Fatalf("scanFrontends: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries want 3: %+v", len(got), got)
	}
	if _, ok := got[frontendKey{adapterNo: 0, frontendNo: 0}]; !ok {
		t.Error("missing adapter0/frontend0")
	}
	if _, ok := got[frontendKey{adapterNo: 1, frontendNo: 0}]; !ok {
		t.Error("missing adapter1/frontend0")
	}
}

func TestScanFrontends_missingRootIsEmptyNotError(t *testing.T) {
	got, err := scanFrontends(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("scanFrontends: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %+v", got)
	}
}

func TestDiffAndEmit_addedAndRemoved(t *testing.T) {
	db := openTestDB(t)
	w := New(db, Config{QueueLen: 8})
	limiter := rate.NewLimiter(rate.Inf, 100)

	prev := map[frontendKey]struct{}{
		{adapterNo: 0, frontendNo: 0}: {},
	}
	cur := map[frontendKey]struct{}{
		{adapterNo: 0, frontendNo: 1}: {},
	}

	w.diffAndEmit(context.Background(), limiter, prev, cur)
	close(w.events)

	var got []Event
	for ev := range w.events {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events want 2: %+v", len(got), got)
	}
	if got[0].Kind != devdb.DeviceAdd || got[0].FrontendNo != 1 {
		t.Errorf("first event should be the add: %+v", got[0])
	}
	if got[1].Kind != devdb.DeviceRemove || got[1].FrontendNo != 0 {
		t.Errorf("second event should be the remove: %+v", got[1])
	}
}

func TestApply_writesDeviceEventToStore(t *testing.T) {
	db := openTestDB(t)
	w := New(db, Config{})

	if err := w.apply(Event{Kind: devdb.DeviceAdd, AdapterNo: 0, FrontendNo: 0}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := db.View(func(txn store.Txn) error {
		fe, found, err := devdb.GetFE(txn, devdb.FEKey{AdapterMAC: 0, FrontendNo: 0})
		if err != nil {
			return err
		}
		if !found || !fe.Present {
			t.Errorf("expected the frontend to be present after an add event: %+v found=%v", fe, found)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestRun_clearsStaleLiveSignalOnStartup(t *testing.T) {
	db := openTestDB(t)
	if err := db.Update(func(txn store.Txn) error {
		return txn.Put(store.LiveSignalKey(1, 0), []byte("stale"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	root := t.TempDir()
	w := New(db, Config{Root: root, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if err := db.View(func(txn store.Txn) error {
		cur := txn.Seek(store.LivePrefix(), store.LivePrefix(), store.SeekGEQ)
		if cur.Valid() {
			t.Error("expected stale live-signal rows to be cleared on Run startup")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}
