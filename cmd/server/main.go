package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gibbsworld.ai/internal/sim/catalogs"
	"gibbsworld.ai/internal/sim/field"
	"gibbsworld.ai/internal/sim/multiworld"
	"gibbsworld.ai/internal/sim/tuning"
	"gibbsworld.ai/internal/sim/world"
	"gibbsworld.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "multi-world config path (default: <configs>/worlds.yaml if present)")
		itemsPath  = flag.String("items", "", "item catalog path (default: <configs>/items.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "override the tuning seed for fresh worlds (0 keeps tuning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume each world from its latest snapshot if present")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	field.SetLogger(log.New(os.Stdout, "[field] ", log.LstdFlags|log.Lmicroseconds))

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	ip := strings.TrimSpace(*itemsPath)
	if ip == "" {
		ip = filepath.Join(*configDir, "items.yaml")
	}
	cat, err := catalogs.Load(ip)
	if err != nil {
		logger.Fatalf("load item catalog: %v", err)
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		if p := filepath.Join(*configDir, "worlds.yaml"); fileExists(p) {
			wp = p
		}
	}
	mcfg, err := multiworld.Load(wp)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	rtCfg := serverRuntimeConfig{DataDir: *dataDir, DisableDB: *disableDB, LoadLatest: *loadLatest}
	worlds := map[string]*worldRuntime{}
	runtimes := map[string]*multiworld.Runtime{}
	for _, spec := range mcfg.Worlds {
		rt, err := buildWorldRuntime(rtCfg, spec, tune, cat, logger)
		if err != nil {
			logger.Fatalf("world %s: %v", spec.ID, err)
		}
		defer rt.Close()
		worlds[spec.ID] = rt
		runtimes[spec.ID] = &multiworld.Runtime{Spec: spec, World: rt.world}
		go rt.runSnapshotWriter(ctx, tune, logger)
	}
	mgr, err := multiworld.NewManager(mcfg, runtimes)
	if err != nil {
		logger.Fatalf("multiworld manager: %v", err)
	}
	defer mgr.Close()
	mgr.Start(ctx, func(id string, err error) {
		if err != nil && err != context.Canceled {
			logger.Printf("world %s stopped: %v", id, err)
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, mgr, worlds)
	})

	enableAdminHTTP := envBool("GW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("GW_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			type worldState struct {
				WorldID string             `json:"world_id"`
				Config  world.WorldConfig  `json:"config"`
				Metrics world.WorldMetrics `json:"metrics"`
			}
			var resp []worldState
			for _, id := range mgr.WorldIDs() {
				w := mgr.Runtime(id).World
				resp = append(resp, worldState{WorldID: id, Config: w.Config(), Metrics: w.Metrics()})
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			id := r.URL.Query().Get("world")
			w, err := mgr.Pick(id)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel2()
			snap, err := w.RequestSnapshot(ctx2)
			if err == nil {
				select {
				case worlds[w.ID()].snapCh <- snap:
				case <-ctx2.Done():
					err = ctx2.Err()
				}
			}
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "world_id": w.ID(), "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "world_id": w.ID(), "time": snap.Header.Time})
		})
	} else {
		logger.Printf("admin endpoints disabled (GW_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(mgr, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (worlds: %s)", *addr, strings.Join(mgr.WorldIDs(), ","))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
