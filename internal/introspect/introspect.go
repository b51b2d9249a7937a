// Package introspect serves the read-only operator HTTP surface: a
// store-reachability healthz check, prometheus metrics, and a debug dump
// of active subscriptions. Grounded on the teacher's internal/health
// (plain net/http, no framework) and internal/gateway (http.Handler built
// by hand, method check first, explicit http.Error on failure).
package introspect

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/neumodvb/devcore/internal/devdb"
	"github.com/neumodvb/devcore/internal/store"
)

// Config parameterizes the server.
type Config struct {
	Addr string
	// MaxConns bounds concurrent connections to this surface so a debug
	// client can never compete with the core's write-transaction path
	// for store handles (spec §5 design notes).
	MaxConns int
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":9870"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	return c
}

// Server is the introspection HTTP listener.
type Server struct {
	cfg Config
	db  store.DB
	srv *http.Server
}

// New builds a Server backed by db.
func New(db store.DB, cfg Config) *Server {
	cfg = cfg.withDefaults()
	mux := http.NewServeMux()
	s := &Server{cfg: cfg, db: db}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/subscriptions", s.handleDebugSubscriptions)
	s.srv = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// ListenAndServe binds cfg.Addr, wraps the listener with
// netutil.LimitListener, and blocks serving until the listener is closed
// (normally via Shutdown).
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	return s.srv.Serve(ln)
}

// Shutdown stops the server at once, closing its listener and any open
// connections without waiting for in-flight requests.
func (s *Server) Shutdown() error {
	return s.srv.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	err := s.db.View(func(txn store.Txn) error {
		_, err := txn.Get([]byte("__introspect_healthz_probe__"))
		if err == store.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		http.Error(w, "store unreachable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type subscriptionDump struct {
	AdapterMAC int64     `json:"adapter_mac"`
	FrontendNo int32     `json:"frontend_no"`
	Owner      int32     `json:"owner"`
	UseCount   int32     `json:"use_count"`
	Frequency  uint32    `json:"frequency"`
	ObservedAt time.Time `json:"observed_at"`
}

func (s *Server) handleDebugSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var dump []subscriptionDump
	now := time.Now()
	err := s.db.View(func(txn store.Txn) error {
		fes, err := devdb.AllFEs(txn)
		if err != nil {
			return err
		}
		for _, fe := range fes {
			if !devdb.IsSubscribed(fe) {
				continue
			}
			dump = append(dump, subscriptionDump{
				AdapterMAC: fe.Key.AdapterMAC,
				FrontendNo: fe.Key.FrontendNo,
				Owner:      fe.Sub.Owner,
				UseCount:   fe.Sub.UseCount,
				Frequency:  fe.Sub.Frequency,
				ObservedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dump)
}
