// Package devmonitor watches the adapter tree for frontend hot-plug and
// turns what it sees into devdb.DeviceEvent values applied to the store
// (spec §6, §9 design notes: "model it as an actor owning the watch handle
// and emitting events into a bounded queue"). The actor shape — one
// long-lived goroutine, log.Printf-style diagnostics, no recovery or
// restart after a panic — is grounded on the teacher's internal/supervisor process
// actor; there is no child process here, so the actor owns a directory
// poll instead of an *exec.Cmd.
package devmonitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/neumodvb/devcore/internal/devdb"
	"github.com/neumodvb/devcore/internal/store"
)

// Config parameterizes a Watcher.
type Config struct {
	// Root is the adapter-tree directory to poll, e.g. /dev/dvb. Each
	// adapterN/frontendM entry underneath is one frontend (spec §6).
	Root string
	// PollInterval is how often the tree is rescanned for changes.
	PollInterval time.Duration
	// EventBurst and EventRate bound how many device transactions the
	// core sees per second; a flaky USB tuner bouncing on and off is
	// coalesced rather than replayed event-for-event (spec §9).
	EventRate  rate.Limit
	EventBurst int
	// QueueLen bounds the event channel between the scanner and the
	// applier goroutine (spec §6: "bounded queue").
	QueueLen int
}

func (c Config) withDefaults() Config {
	if c.Root == "" {
		c.Root = "/dev/dvb"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.EventRate <= 0 {
		c.EventRate = 5
	}
	if c.EventBurst <= 0 {
		c.EventBurst = 10
	}
	if c.QueueLen <= 0 {
		c.QueueLen = 64
	}
	return c
}

// Event is one observed frontend add or remove.
type Event struct {
	Kind       devdb.DeviceEventKind
	AdapterNo  int32
	FrontendNo int32
}

var frontendPathRe = regexp.MustCompile(`^adapter(\d+)/frontend(\d+)$`)

// Watcher polls Config.Root for frontend device nodes appearing or
// disappearing and drives them into the store via devdb.ApplyDeviceEvent.
type Watcher struct {
	cfg Config
	db  store.DB

	events chan Event
}

// New creates a Watcher. db is where observed events are applied;
// cfg.Root is scanned directly, no fsnotify-style kernel watch is used
// since /dev/dvb's churn rate is low and the teacher pack carries no
// filesystem-notification library.
func New(db store.DB, cfg Config) *Watcher {
	cfg = cfg.withDefaults()
	return &Watcher{
		cfg:    cfg,
		db:     db,
		events: make(chan Event, cfg.QueueLen),
	}
}

// Events exposes the bounded event channel that Run's apply loop drains.
// Each event is delivered to one receiver only, so a caller reading from
// it while Run is active takes those events away from Run.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run clears stale live-signal rows, then polls the adapter tree until ctx
// is canceled, applying every observed event to the store inside its own
// write transaction (spec §6: "cleared at startup"; "emits FE add/remove
// events into a write transaction").
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.db.Update(func(txn store.Txn) error {
		return devdb.ClearStaleLiveSignal(txn)
	}); err != nil {
		return fmt.Errorf("devmonitor: clear stale live signal: %w", err)
	}

	go w.scanLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.events:
			if !ok {
				return nil
			}
			if err := w.apply(ev); err != nil {
				log.Printf("devmonitor: apply %+v: %v", ev, err)
			}
		}
	}
}

func (w *Watcher) apply(ev Event) error {
	return w.db.Update(func(txn store.Txn) error {
		return devdb.ApplyDeviceEvent(txn, devdb.DeviceEvent{
			Kind:        ev.Kind,
			AdapterMAC:  adapterMAC(ev.AdapterNo),
			AdapterNo:   ev.AdapterNo,
			FrontendNo:  ev.FrontendNo,
			AdapterName: fmt.Sprintf("adapter%d", ev.AdapterNo),
		})
	})
}

// adapterMAC stands in for a real card identity (MAC address, PCI slot, or
// similar) that a production adapter-tree walk would read from sysfs; here
// the adapter ordinal itself is stable enough to key on for a polled
// /dev/dvb tree, and tests exercise ApplyDeviceEvent directly with their
// own AdapterMAC values rather than through this conversion.
func adapterMAC(adapterNo int32) int64 { return int64(adapterNo) }

// scanLoop rescans cfg.Root every PollInterval, diffs against the previous
// snapshot, and emits one Event per add/remove, debounced by a
// golang.org/x/time/rate.Limiter so a bouncing device cannot flood the
// core with transactions (spec §9).
func (w *Watcher) scanLoop(ctx context.Context) {
	defer close(w.events)
	limiter := rate.NewLimiter(w.cfg.EventRate, w.cfg.EventBurst)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	prev := map[frontendKey]struct{}{}
	for {
		cur, err := scanFrontends(w.cfg.Root)
		if err != nil {
			log.Printf("devmonitor: scan %s: %v", w.cfg.Root, err)
		} else {
			w.diffAndEmit(ctx, limiter, prev, cur)
			prev = cur
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type frontendKey struct {
	adapterNo  int32
	frontendNo int32
}

func (w *Watcher) diffAndEmit(ctx context.Context, limiter *rate.Limiter, prev, cur map[frontendKey]struct{}) {
	var added, removed []frontendKey
	for k := range cur {
		if _, ok := prev[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			removed = append(removed, k)
		}
	}
	sortKeys(added)
	sortKeys(removed)

	emit := func(kind devdb.DeviceEventKind, k frontendKey) {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case w.events <- Event{Kind: kind, AdapterNo: k.adapterNo, FrontendNo: k.frontendNo}:
		case <-ctx.Done():
		}
	}
	for _, k := range added {
		emit(devdb.DeviceAdd, k)
	}
	for _, k := range removed {
		emit(devdb.DeviceRemove, k)
	}
}

func sortKeys(ks []frontendKey) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].adapterNo != ks[j].adapterNo {
			return ks[i].adapterNo < ks[j].adapterNo
		}
		return ks[i].frontendNo < ks[j].frontendNo
	})
}

// scanFrontends walks root and returns every adapterN/frontendM entry
// found beneath it.
func scanFrontends(root string) (map[frontendKey]struct{}, error) {
	out := map[frontendKey]struct{}{}
	adapters, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, a := range adapters {
		if !a.IsDir() {
			continue
		}
		adapterEntries, err := os.ReadDir(filepath.Join(root, a.Name()))
		if err != nil {
			continue
		}
		for _, f := range adapterEntries {
			rel := a.Name() + "/" + f.Name()
			m := frontendPathRe.FindStringSubmatch(rel)
			if m == nil {
				continue
			}
			adapterNo, err1 := strconv.Atoi(m[1])
			frontendNo, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				continue
			}
			out[frontendKey{adapterNo: int32(adapterNo), frontendNo: int32(frontendNo)}] = struct{}{}
		}
	}
	return out, nil
}
