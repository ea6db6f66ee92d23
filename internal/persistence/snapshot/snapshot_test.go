package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"parkrivals.io/internal/store/memory"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s := memory.New()
	_ = s.Set("competitive_players_abc", []byte(`{"name":"Ann","rides":[1]}`))
	_ = s.Set("competitive_rides_1", []byte(`{"owner":"abc","previousTotalProfit":0}`))

	now := time.Unix(1700000000, 0)
	snap, err := Capture(s, "park-1", now)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "snaps", "1700000000.kv.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Version != Version || h.Scope != "park-1" || h.Entries != 2 || !h.CreatedAt.Equal(now) {
		t.Fatalf("header: %+v", h)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got.Entries["competitive_rides_1"]) != `{"owner":"abc","previousTotalProfit":0}` {
		t.Fatalf("entries: %v", got.Entries)
	}
}

func TestRestorePrune(t *testing.T) {
	src := memory.New()
	_ = src.Set("a", []byte("1"))
	_ = src.Set("b", []byte("2"))
	snap, err := Capture(src, "x", time.Now())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	dst := memory.New()
	_ = dst.Set("a", []byte("old"))
	_ = dst.Set("stale", []byte("z"))

	written, deleted, err := Restore(dst, snap, false)
	if err != nil || written != 2 || deleted != 0 {
		t.Fatalf("restore: %d %d %v", written, deleted, err)
	}
	if ok, _ := dst.Has("stale"); !ok {
		t.Fatalf("stale removed without prune")
	}

	_, deleted, err = Restore(dst, snap, true)
	if err != nil || deleted != 1 {
		t.Fatalf("prune restore: %d %v", deleted, err)
	}
	if ok, _ := dst.Has("stale"); ok {
		t.Fatalf("stale survived prune")
	}
	if v, _, _ := dst.Get("a"); string(v) != "1" {
		t.Fatalf("a=%q", v)
	}
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	_, _, err := Restore(memory.New(), SnapshotV1{Header: Header{Version: 99}}, false)
	if err == nil {
		t.Fatalf("expected version error")
	}
}

func TestSnapshotterKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	s := memory.New()
	_ = s.Set("k", []byte("v"))

	now := time.Unix(1000, 0)
	var written []string
	sn := NewSnapshotter(Options{
		Store:   s,
		Scope:   "x",
		Dir:     dir,
		Keep:    2,
		Now:     func() time.Time { return now },
		OnWrite: func(p string) { written = append(written, p) },
	})
	for i := 0; i < 4; i++ {
		if _, err := sn.Once(); err != nil {
			t.Fatalf("once: %v", err)
		}
		now = now.Add(time.Minute)
	}
	if len(written) != 4 {
		t.Fatalf("onWrite calls: %d", len(written))
	}
	files, err := List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("kept %v", files)
	}
	if filepath.Base(files[1]) != "1180.kv.zst" {
		t.Fatalf("newest: %s", files[1])
	}
	latest, ok, _ := Latest(dir)
	if !ok || latest != files[1] {
		t.Fatalf("latest: %s", latest)
	}
	if _, err := os.Stat(written[0]); !os.IsNotExist(err) {
		t.Fatalf("oldest should be pruned: %v", err)
	}
}
