package memory

import (
	"testing"

	"parkrivals.io/internal/store/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, New())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := New()
	buf := []byte("abc")
	_ = s.Set("k", buf)
	buf[0] = 'x'
	v, _, _ := s.Get("k")
	if string(v) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %s", v)
	}
	v[1] = 'y'
	v2, _, _ := s.Get("k")
	if string(v2) != "abc" {
		t.Fatalf("returned value aliased storage: %s", v2)
	}
}
