package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/metrics"
)

func TestMuxHealthAndMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.SetOnline(2)
	mux := newMux(reg, func() (string, error) { return "", nil }, log.New(io.Discard, "", 0))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "parkrivals_online_players 2") {
		t.Fatalf("metrics:\n%s", rec.Body.String())
	}
}

func TestAdminSnapshotEndpoint(t *testing.T) {
	calls := 0
	var fail error
	mux := newMux(nil, func() (string, error) {
		calls++
		return "data/snapshots/1.kv.zst", fail
	}, log.New(io.Discard, "", 0))

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "1.kv.zst") {
		t.Fatalf("snapshot: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote allowed: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("get allowed: %d", rec.Code)
	}

	fail = errors.New("disk full")
	req = httptest.NewRequest(http.MethodPost, "/admin/v1/snapshot", nil)
	req.RemoteAddr = "[::1]:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failure: %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("calls: %d", calls)
	}
}

func TestOpenStore(t *testing.T) {
	s, closeFn, err := openStore(config.Storage{Driver: "memory"})
	if err != nil || s == nil {
		t.Fatalf("memory: %v", err)
	}
	closeFn()

	dsn := filepath.Join(t.TempDir(), "kv.sqlite")
	s, closeFn, err = openStore(config.Storage{Driver: "sqlite", DSN: dsn, Scope: "t"})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer closeFn()
	if err := s.Set("k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Economy.InitialBalance != config.Defaults().Economy.InitialBalance {
		t.Fatalf("not defaults: %+v", cfg.Economy)
	}
}
