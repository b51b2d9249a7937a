// Command devcore arbitrates shared DVB tuning hardware (frontends, LNBs,
// dishes, RF couplers) between competing subscribe requests, persists mux
// identity with provenance-aware merging, and watches the adapter tree for
// hot-plug. Grounded on the teacher's cmd/plex-tuner/main.go: flag parsing,
// log.Printf diagnostics, construct services, block on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neumodvb/devcore/internal/auditlog"
	"github.com/neumodvb/devcore/internal/chdb"
	"github.com/neumodvb/devcore/internal/config"
	"github.com/neumodvb/devcore/internal/devdb"
	"github.com/neumodvb/devcore/internal/devmonitor"
	"github.com/neumodvb/devcore/internal/ids"
	"github.com/neumodvb/devcore/internal/introspect"
	"github.com/neumodvb/devcore/internal/metrics"
	"github.com/neumodvb/devcore/internal/store"
	"github.com/neumodvb/devcore/internal/svcdb"

	"golang.org/x/time/rate"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	verb := os.Args[1]
	args := os.Args[2:]

	cfg := config.Load()

	switch verb {
	case "serve":
		runServe(cfg, args)
	case "subscribe-mux":
		runSubscribeMux(cfg, args)
	case "subscribe-lnb-and-mux":
		runSubscribeLNBAndMux(cfg, args)
	case "subscribe-lnb":
		runSubscribeLNB(cfg, args)
	case "subscribe-spectrum":
		runSubscribeSpectrum(cfg, args)
	case "scan-muxes":
		runScanMuxes(cfg, args)
	case "unsubscribe":
		runUnsubscribe(cfg, args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: devcore <verb> [flags]

verbs:
  serve              run the device monitor and introspection server
  subscribe-mux      reserve an LNB+frontend for a satellite mux
  subscribe-lnb-and-mux reserve a specific LNB (pinned) for a satellite mux
  subscribe-lnb      reserve an LNB exclusively (no tuning params)
  subscribe-spectrum reserve an LNB exclusively for a spectrum sweep
  scan-muxes         look up a mux descriptor in the store
  unsubscribe        release a frontend reservation`)
}

func openStore(cfg *config.Config) store.DB {
	db, err := store.OpenBadger(cfg.StorePath)
	if err != nil {
		log.Fatalf("devcore: open store: %v", err)
	}
	return db
}

func openAuditLog(cfg *config.Config) *auditlog.Log {
	if cfg.AuditLogPath == "" {
		return nil
	}
	al, err := auditlog.Open(cfg.AuditLogPath, cfg.AuditMaxSegmentBytes)
	if err != nil {
		log.Printf("devcore: audit log disabled: %v", err)
		return nil
	}
	return al
}

func recordDecision(al *auditlog.Log, verb, key, fe, lnb, result string) {
	if al == nil {
		return
	}
	if err := al.Record(auditlog.Entry{
		Time:   time.Now(),
		Verb:   verb,
		Key:    key,
		FE:     fe,
		LNB:    lnb,
		Result: result,
	}); err != nil {
		log.Printf("devcore: audit log write: %v", err)
	}
}

func runServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()

	svc, err := svcdb.Open(cfg.SvcDBPath)
	if err != nil {
		log.Fatalf("devcore: open svcdb: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := devmonitor.New(db, devmonitor.Config{
		Root:         cfg.AdapterRoot,
		PollInterval: cfg.DevicePollInterval,
		EventRate:    rate.Limit(cfg.DeviceEventRate),
		EventBurst:   cfg.DeviceEventBurst,
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("devmonitor: stopped: %v", err)
		}
	}()

	introServer := introspect.New(db, introspect.Config{
		Addr:     cfg.IntrospectAddr,
		MaxConns: cfg.IntrospectMaxConns,
	})
	go func() {
		log.Printf("devcore: introspection listening on %s", cfg.IntrospectAddr)
		if err := introServer.ListenAndServe(); err != nil {
			log.Printf("devcore: introspection server stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("devcore: shutting down")
	cancel()
	_ = introServer.Shutdown()
}

func runSubscribeMux(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("subscribe-mux", flag.ExitOnError)
	satPos := fs.Int("sat-pos", 0, "satellite position, 0.01 degree units")
	freq := fs.Uint("freq", 0, "frequency, kHz")
	pol := fs.String("pol", "h", "polarisation: h, v, l, r")
	symbolRate := fs.Uint("symbol-rate", 27500, "symbol rate")
	streamID := fs.Int("stream-id", -1, "multistream id, -1 if none")
	feRelease := fs.Int64("release-adapter-mac", 0, "adapter_mac of a frontend to release, used with -release-frontend-no")
	feReleaseNo := fs.Int("release-frontend-no", -1, "frontend_no of a frontend to release, -1 for none")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()
	al := openAuditLog(cfg)
	if al != nil {
		defer al.Close()
	}

	mux := chdb.DVBSMux{
		K:          chdb.MuxKey{SatPos: chdb.SatPos(*satPos)},
		Frequency:  uint32(*freq),
		Pol:        parsePol(*pol),
		SymbolRate: uint32(*symbolRate),
		StreamID:   int16(*streamID),
	}

	var releaseKey *devdb.FEKey
	if *feReleaseNo >= 0 {
		releaseKey = &devdb.FEKey{AdapterMAC: *feRelease, FrontendNo: int32(*feReleaseNo)}
	}

	opts := devdb.TuneOptions{
		MayMoveDish:        cfg.MayMoveDish,
		UseBlindTune:       cfg.UseBlindTune,
		DishMovePenalty:    cfg.DishMovePenalty,
		ResourceReuseBonus: cfg.ResourceReuseBonus,
	}

	var (
		fe     devdb.FE
		id     string
		result = "ok"
	)
	err := db.Update(func(txn store.Txn) error {
		reserved, _, counts, _, err := devdb.SubscribeLNBBandPolSat(txn, mux, nil, releaseKey, opts)
		if err != nil {
			return err
		}
		fe = reserved
		metrics.UpdateSubscriptionCounts(counts)
		return nil
	})
	if err != nil {
		result = err.Error()
		metrics.ObserveSubscribe("subscribe-mux", result)
		recordDecision(al, "subscribe-mux", mux.K.String(), "", "", result)
		log.Fatalf("devcore: subscribe-mux: %v", err)
	}
	id = ids.New()
	metrics.ObserveSubscribe("subscribe-mux", result)
	recordDecision(al, "subscribe-mux", mux.K.String(), feString(fe.Key), "", result)
	fmt.Printf("subscription %s: adapter_mac=%d frontend_no=%d\n", id, fe.Key.AdapterMAC, fe.Key.FrontendNo)
}

// runSubscribeLNBAndMux reserves a mux on a caller-pinned LNB rather than
// letting the arbitrator pick among every enabled LNB — the
// subscribe_lnb_and_mux verb spec.md's verb table names as distinct from
// subscribe_mux, for a caller that already knows which dish/LNB the mux is
// reachable through (e.g. a blind-scan client walking one LNB's sat
// position).
func runSubscribeLNBAndMux(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("subscribe-lnb-and-mux", flag.ExitOnError)
	cardMAC := fs.Int64("card-mac", 0, "LNB's card_mac")
	rfInput := fs.Int("rf-input", 0, "LNB's rf_input")
	dishID := fs.Int("dish-id", 0, "LNB's dish_id")
	lnbID := fs.Int("lnb-id", 0, "LNB's lnb_id")
	satPos := fs.Int("sat-pos", 0, "satellite position, 0.01 degree units")
	freq := fs.Uint("freq", 0, "frequency, kHz")
	pol := fs.String("pol", "h", "polarisation: h, v, l, r")
	symbolRate := fs.Uint("symbol-rate", 27500, "symbol rate")
	streamID := fs.Int("stream-id", -1, "multistream id, -1 if none")
	feRelease := fs.Int64("release-adapter-mac", 0, "adapter_mac of a frontend to release, used with -release-frontend-no")
	feReleaseNo := fs.Int("release-frontend-no", -1, "frontend_no of a frontend to release, -1 for none")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()
	al := openAuditLog(cfg)
	if al != nil {
		defer al.Close()
	}

	lnbKey := devdb.LNBKey{CardMAC: *cardMAC, RFInput: int32(*rfInput), DishID: int32(*dishID), LNBID: int32(*lnbID)}
	mux := chdb.DVBSMux{
		K:          chdb.MuxKey{SatPos: chdb.SatPos(*satPos)},
		Frequency:  uint32(*freq),
		Pol:        parsePol(*pol),
		SymbolRate: uint32(*symbolRate),
		StreamID:   int16(*streamID),
	}

	var releaseKey *devdb.FEKey
	if *feReleaseNo >= 0 {
		releaseKey = &devdb.FEKey{AdapterMAC: *feRelease, FrontendNo: int32(*feReleaseNo)}
	}

	opts := devdb.TuneOptions{
		MayMoveDish:        cfg.MayMoveDish,
		UseBlindTune:       cfg.UseBlindTune,
		DishMovePenalty:    cfg.DishMovePenalty,
		ResourceReuseBonus: cfg.ResourceReuseBonus,
	}

	var (
		fe     devdb.FE
		id     string
		result = "ok"
	)
	err := db.Update(func(txn store.Txn) error {
		reserved, _, counts, _, err := devdb.SubscribeLNBBandPolSat(txn, mux, &lnbKey, releaseKey, opts)
		if err != nil {
			return err
		}
		fe = reserved
		metrics.UpdateSubscriptionCounts(counts)
		return nil
	})
	if err != nil {
		result = err.Error()
		metrics.ObserveSubscribe("subscribe-lnb-and-mux", result)
		recordDecision(al, "subscribe-lnb-and-mux", mux.K.String(), "", fmt.Sprintf("%+v", lnbKey), result)
		log.Fatalf("devcore: subscribe-lnb-and-mux: %v", err)
	}
	id = ids.New()
	metrics.ObserveSubscribe("subscribe-lnb-and-mux", result)
	recordDecision(al, "subscribe-lnb-and-mux", mux.K.String(), feString(fe.Key), fmt.Sprintf("%+v", lnbKey), result)
	fmt.Printf("subscription %s: adapter_mac=%d frontend_no=%d\n", id, fe.Key.AdapterMAC, fe.Key.FrontendNo)
}

func runSubscribeLNB(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("subscribe-lnb", flag.ExitOnError)
	cardMAC := fs.Int64("card-mac", 0, "LNB's card_mac")
	rfInput := fs.Int("rf-input", 0, "LNB's rf_input")
	dishID := fs.Int("dish-id", 0, "LNB's dish_id")
	lnbID := fs.Int("lnb-id", 0, "LNB's lnb_id")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()
	al := openAuditLog(cfg)
	if al != nil {
		defer al.Close()
	}

	lnbKey := devdb.LNBKey{CardMAC: *cardMAC, RFInput: int32(*rfInput), DishID: int32(*dishID), LNBID: int32(*lnbID)}

	var fe devdb.FE
	err := db.Update(func(txn store.Txn) error {
		lnb, found, err := devdb.GetLNB(txn, lnbKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("lnb %+v not found", lnbKey)
		}
		fe, err = devdb.SubscribeLNBExclusive(txn, lnb, nil, false)
		return err
	})
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	metrics.ObserveSubscribe("subscribe-lnb", result)
	recordDecision(al, "subscribe-lnb", fmt.Sprintf("%+v", lnbKey), feString(fe.Key), fmt.Sprintf("%+v", lnbKey), result)
	if err != nil {
		log.Fatalf("devcore: subscribe-lnb: %v", err)
	}
	fmt.Printf("subscription %s: adapter_mac=%d frontend_no=%d\n", ids.New(), fe.Key.AdapterMAC, fe.Key.FrontendNo)
}

func runSubscribeSpectrum(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("subscribe-spectrum", flag.ExitOnError)
	cardMAC := fs.Int64("card-mac", 0, "LNB's card_mac")
	rfInput := fs.Int("rf-input", 0, "LNB's rf_input")
	dishID := fs.Int("dish-id", 0, "LNB's dish_id")
	lnbID := fs.Int("lnb-id", 0, "LNB's lnb_id")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()
	al := openAuditLog(cfg)
	if al != nil {
		defer al.Close()
	}

	lnbKey := devdb.LNBKey{CardMAC: *cardMAC, RFInput: int32(*rfInput), DishID: int32(*dishID), LNBID: int32(*lnbID)}

	var fe devdb.FE
	err := db.Update(func(txn store.Txn) error {
		lnb, found, err := devdb.GetLNB(txn, lnbKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("lnb %+v not found", lnbKey)
		}
		fe, err = devdb.SubscribeLNBExclusive(txn, lnb, nil, true)
		return err
	})
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	metrics.ObserveSubscribe("subscribe-spectrum", result)
	recordDecision(al, "subscribe-spectrum", fmt.Sprintf("%+v", lnbKey), feString(fe.Key), fmt.Sprintf("%+v", lnbKey), result)
	if err != nil {
		log.Fatalf("devcore: subscribe-spectrum: %v", err)
	}
	fmt.Printf("subscription %s: adapter_mac=%d frontend_no=%d\n", ids.New(), fe.Key.AdapterMAC, fe.Key.FrontendNo)
}

func runScanMuxes(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("scan-muxes", flag.ExitOnError)
	satPos := fs.Int("sat-pos", 0, "satellite position, 0.01 degree units")
	freq := fs.Uint("freq", 0, "frequency, kHz")
	pol := fs.String("pol", "h", "polarisation: h, v, l, r")
	symbolRate := fs.Uint("symbol-rate", 27500, "symbol rate")
	networkID := fs.Uint("network-id", 0, "network id, from NIT")
	tsID := fs.Uint("ts-id", 0, "transport stream id, from NIT")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()

	mux := chdb.AnyMux{Kind: chdb.KindDVBS, S: chdb.DVBSMux{
		K:          chdb.MuxKey{SatPos: chdb.SatPos(*satPos), NetworkID: uint16(*networkID), TSID: uint16(*tsID)},
		Frequency:  uint32(*freq),
		Pol:        parsePol(*pol),
		SymbolRate: uint32(*symbolRate),
	}}

	err := db.View(func(txn store.Txn) error {
		start := time.Now()
		found, ok, err := chdb.FindByMuxPhysical(txn, chdb.KindDVBS, mux)
		outcome := "miss"
		if ok {
			outcome = "hit"
		}
		metrics.ObserveLookup("find_by_mux_physical", outcome, time.Since(start).Seconds())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no matching mux")
			return nil
		}
		fmt.Printf("matched mux key: %s, tune_src=%s\n", found.Key(), found.Common().TuneSrc)
		return nil
	})
	if err != nil {
		log.Fatalf("devcore: scan-muxes: %v", err)
	}
}

func runUnsubscribe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("unsubscribe", flag.ExitOnError)
	adapterMAC := fs.Int64("adapter-mac", 0, "frontend's adapter_mac")
	frontendNo := fs.Int("frontend-no", 0, "frontend's frontend_no")
	fs.Parse(args)

	db := openStore(cfg)
	defer db.Close()
	al := openAuditLog(cfg)
	if al != nil {
		defer al.Close()
	}

	feKey := devdb.FEKey{AdapterMAC: *adapterMAC, FrontendNo: int32(*frontendNo)}
	var useCount int32
	err := db.Update(func(txn store.Txn) error {
		var err error
		useCount, err = devdb.Unsubscribe(txn, feKey)
		return err
	})
	result := "ok"
	if err != nil {
		result = err.Error()
	}
	metrics.ObserveSubscribe("unsubscribe", result)
	recordDecision(al, "unsubscribe", feString(feKey), feString(feKey), "", result)
	if err != nil {
		log.Fatalf("devcore: unsubscribe: %v", err)
	}
	fmt.Printf("remaining use_count=%d\n", useCount)
}

func feString(k devdb.FEKey) string {
	return fmt.Sprintf("adapter_mac=%d frontend_no=%d", k.AdapterMAC, k.FrontendNo)
}

func parsePol(s string) chdb.Polarisation {
	switch s {
	case "v", "V":
		return chdb.PolV
	case "l", "L":
		return chdb.PolL
	case "r", "R":
		return chdb.PolR
	default:
		return chdb.PolH
	}
}
