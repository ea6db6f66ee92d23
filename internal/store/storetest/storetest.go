// Package storetest is a conformance suite for store.Store backends.
package storetest

import (
	"testing"

	"parkrivals.io/internal/store"
)

func Run(t *testing.T, s store.Store) {
	t.Helper()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing): ok=%v err=%v", ok, err)
	}
	if ok, err := s.Has("missing"); err != nil || ok {
		t.Fatalf("Has(missing): ok=%v err=%v", ok, err)
	}

	if err := s.Set("competitive_players_abc", []byte(`{"name":"ann"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("competitive_players_abc", []byte(`{"name":"bob"}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get("competitive_players_abc")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"name":"bob"}` {
		t.Fatalf("Get value: %s", v)
	}
	if ok, err := s.Has("competitive_players_abc"); err != nil || !ok {
		t.Fatalf("Has: ok=%v err=%v", ok, err)
	}

	// '_' must not act as a wildcard in prefix matching.
	_ = s.Set("competitive_rides_1", []byte(`{}`))
	_ = s.Set("competitive_rides_2", []byte(`{}`))
	_ = s.Set("competitiveXrides_3", []byte(`{}`))
	all, err := s.GetAll("competitive_rides_")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll: want 2 got %d (%v)", len(all), all)
	}
	if _, ok := all["competitive_rides_1"]; !ok {
		t.Fatalf("GetAll missing rides_1: %v", all)
	}
	everything, err := s.GetAll("")
	if err != nil {
		t.Fatalf("GetAll(\"\"): %v", err)
	}
	if len(everything) != 4 {
		t.Fatalf("GetAll(\"\"): want 4 got %d", len(everything))
	}

	if err := s.Delete("competitive_rides_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("competitive_rides_1"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if ok, _ := s.Has("competitive_rides_1"); ok {
		t.Fatalf("record survived delete")
	}
}
