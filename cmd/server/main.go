package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/host/hosttest"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/persistence/auditlog"
	"parkrivals.io/internal/persistence/snapshot"
	"parkrivals.io/internal/plugin"
	"parkrivals.io/internal/transport/bridge"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/parkrivals.yaml", "path to parkrivals.yaml (missing file means defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory (audit, snapshots)")
		offline    = flag.Bool("offline", false, "run against an in-memory host and store, without the bridge")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *offline {
		cfg.Storage.Driver = "memory"
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	st, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer closeStore()
	logger.Printf("store driver=%s scope=%s namespace=%s", cfg.Storage.Driver, cfg.Storage.Scope, cfg.Storage.Namespace)

	ctx, cancel := signalContext()
	defer cancel()

	reg := metrics.NewRegistry()

	mirror, err := buildMirror(ctx, cfg.Mirror, *dataDir, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	defer mirror.Close()
	registerMirrorMetrics(reg, mirror)

	var audit model.Auditor = model.NopAuditor{}
	if cfg.Audit.Enabled {
		al := auditlog.New(auditlog.Options{
			Dir:      filepath.Join(*dataDir, "audit"),
			Period:   time.Duration(cfg.Audit.RotateHours) * time.Hour,
			Logger:   logger,
			OnRotate: mirror.Enqueue,
		})
		defer al.Close()
		reg.CounterFunc("parkrivals_audit_written_total", "Audit entries written.", func() float64 { return float64(al.Written()) })
		reg.CounterFunc("parkrivals_audit_dropped_total", "Audit entries dropped on a full buffer.", func() float64 { return float64(al.Dropped()) })
		audit = al
	}

	snapper := snapshot.NewSnapshotter(snapshot.Options{
		Store:   st,
		Scope:   cfg.Storage.Scope,
		Dir:     filepath.Join(*dataDir, "snapshots"),
		Every:   time.Duration(cfg.Snapshot.EverySeconds) * time.Second,
		Keep:    cfg.Snapshot.Keep,
		Logger:  logger,
		OnWrite: mirror.Enqueue,
	})

	var (
		port host.Port
		bh   *bridge.Host
		fake *hosttest.World
	)
	if *offline {
		fake = hosttest.New()
		port = fake
	} else {
		bh = bridge.NewHost(cfg.CallTimeout(), logger)
		port = bh
	}

	p := plugin.New(plugin.Options{
		Port:    port,
		Store:   st,
		Config:  cfg,
		Logger:  logger,
		Audit:   audit,
		Metrics: reg,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		snapper.Run(ctx)
	}()

	mux := newMux(reg, func() (string, error) { return snapper.Once() }, logger)
	if bh != nil {
		go bh.Run(ctx)
		bs := bridge.NewServer(bridge.Options{
			Host:         bh,
			Gateway:      p.Gateway,
			Token:        cfg.Bridge.Token,
			Logger:       logger,
			Metrics:      reg,
			OnConnect:    p.Start,
			OnDisconnect: p.Stop,
			Online:       p.Players.Online,
		})
		mux.HandleFunc("/v1/bridge", bs.Handler())
	} else {
		p.Start()
		fake.Flush()
		logger.Printf("offline mode: %d start-up actions applied", len(fake.Actions()))
	}

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

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}
	// Wait for the final snapshot before the store closes.
	wg.Wait()
}

func loadConfig(path string, logger *log.Logger) (config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Printf("config not found (%s); using defaults", path)
		return config.Load("")
	}
	return config.Load(path)
}

func newMux(reg *metrics.Registry, snapshotNow func() (string, error), logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", reg.Handler())

	if envBool("PR_ENABLE_ADMIN_HTTP", true) {
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if r.Method != http.MethodPost {
				http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			path, err := snapshotNow()
			if err != nil {
				logger.Printf("admin snapshot: %v", err)
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]string{"path": path})
		})
	}

	if envBool("PR_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
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

func isLoopbackRemote(remoteAddr string) bool {
	h, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		h = remoteAddr
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
