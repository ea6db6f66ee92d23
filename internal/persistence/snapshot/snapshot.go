package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"parkrivals.io/internal/store"
)

const (
	Version = 1
	suffix  = ".kv.zst"
)

type Header struct {
	Version   int       `json:"version"`
	Scope     string    `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	Entries   int       `json:"entries"`
}

// SnapshotV1 is a full copy of one store scope.
type SnapshotV1 struct {
	Header  Header            `json:"header"`
	Entries map[string][]byte `json:"entries"`
}

func Capture(s store.Store, scope string, now time.Time) (SnapshotV1, error) {
	all, err := s.GetAll("")
	if err != nil {
		return SnapshotV1{}, fmt.Errorf("capture: %w", err)
	}
	return SnapshotV1{
		Header: Header{
			Version:   Version,
			Scope:     scope,
			CreatedAt: now.UTC(),
			Entries:   len(all),
		},
		Entries: all,
	}, nil
}

// Restore writes every snapshot entry into s. With prune set, keys present
// in s but absent from the snapshot are deleted.
func Restore(s store.Store, snap SnapshotV1, prune bool) (written, deleted int, err error) {
	if snap.Header.Version != Version {
		return 0, 0, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if prune {
		cur, err := s.GetAll("")
		if err != nil {
			return 0, 0, err
		}
		for k := range cur {
			if _, ok := snap.Entries[k]; ok {
				continue
			}
			if err := s.Delete(k); err != nil {
				return written, deleted, fmt.Errorf("delete %s: %w", k, err)
			}
			deleted++
		}
	}
	keys := make([]string, 0, len(snap.Entries))
	for k := range snap.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(k, snap.Entries[k]); err != nil {
			return written, deleted, fmt.Errorf("set %s: %w", k, err)
		}
		written++
	}
	return written, deleted, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// List returns the snapshot files in dir, oldest first.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		path string
		unix int64
	}
	var items []item
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, item{filepath.Join(dir, name), n})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].unix < items[j].unix })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

// Latest returns the newest snapshot in dir.
func Latest(dir string) (string, bool, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return "", false, err
	}
	return all[len(all)-1], true, nil
}

type Options struct {
	Store  store.Store
	Scope  string
	Dir    string
	Every  time.Duration
	Keep   int
	Logger *log.Logger
	// OnWrite receives each snapshot path after it is durable.
	OnWrite func(path string)
	Now     func() time.Time
}

// Snapshotter writes periodic snapshots and keeps the newest Keep files.
type Snapshotter struct {
	opts Options
	mu   sync.Mutex
}

func NewSnapshotter(opts Options) *Snapshotter {
	if opts.Every <= 0 {
		opts.Every = 5 * time.Minute
	}
	if opts.Keep <= 0 {
		opts.Keep = 12
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Snapshotter{opts: opts}
}

// Run snapshots every period until ctx is done, then takes a final one.
func (s *Snapshotter) Run(ctx context.Context) {
	t := time.NewTicker(s.opts.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := s.Once(); err != nil {
				s.printf("warn: final snapshot failed err=%v", err)
			}
			return
		case <-t.C:
			if _, err := s.Once(); err != nil {
				s.printf("warn: snapshot failed err=%v", err)
			}
		}
	}
}

func (s *Snapshotter) Once() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Now()
	snap, err := Capture(s.opts.Store, s.opts.Scope, now)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.opts.Dir, fmt.Sprintf("%d%s", now.UTC().Unix(), suffix))
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	s.printf("snapshot written path=%s entries=%d", path, snap.Header.Entries)
	if s.opts.OnWrite != nil {
		s.opts.OnWrite(path)
	}
	if err := s.prune(); err != nil {
		s.printf("warn: snapshot prune failed err=%v", err)
	}
	return path, nil
}

func (s *Snapshotter) prune() error {
	all, err := List(s.opts.Dir)
	if err != nil {
		return err
	}
	for len(all) > s.opts.Keep {
		if err := os.Remove(all[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		all = all[1:]
	}
	return nil
}

func (s *Snapshotter) printf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, args...)
	}
}
