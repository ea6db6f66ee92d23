package auditlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"parkrivals.io/internal/model"
)

const segmentSuffix = ".jsonl.zst"

// JSONLZstdWriter appends JSON lines to zstd segments that rotate on a fixed
// UTC period. Each reopen of an existing segment appends a new zstd frame.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	period  time.Duration

	// OnRotate receives the path of each segment after it is closed.
	OnRotate func(path string)
	now      func() time.Time

	mu     sync.Mutex
	curKey string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, period time.Duration) *JSONLZstdWriter {
	if period <= 0 {
		period = time.Hour
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		period:  period,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := w.now().UTC().Truncate(w.period).Format("2006-01-02-15")
	if key != w.curKey {
		if err := w.rotateLocked(key); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Path returns the segment currently open for writing, or "".
func (w *JSONLZstdWriter) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curKey == "" || w.f == nil {
		return ""
	}
	return w.pathFor(w.curKey)
}

func (w *JSONLZstdWriter) rotateLocked(key string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	p := w.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curKey = key
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	_ = w.f.Close()
	closed := w.f.Name()
	w.f = nil
	w.w = nil
	if w.OnRotate != nil {
		w.OnRotate(closed)
	}
	return err1
}

func (w *JSONLZstdWriter) pathFor(key string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, key, segmentSuffix))
}

// Logger is an asynchronous model.Auditor. Record never blocks: entries
// beyond the buffer are dropped and counted.
type Logger struct {
	w      *JSONLZstdWriter
	logger *log.Logger

	ch      chan model.AuditEntry
	done    chan struct{}
	closing sync.Once

	written atomic.Uint64
	dropped atomic.Uint64
}

type Options struct {
	Dir      string
	Period   time.Duration
	Buffer   int
	Logger   *log.Logger
	OnRotate func(path string)
}

func New(opts Options) *Logger {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	w := NewJSONLZstdWriter(opts.Dir, "audit", opts.Period)
	w.OnRotate = opts.OnRotate
	l := &Logger{
		w:      w,
		logger: opts.Logger,
		ch:     make(chan model.AuditEntry, opts.Buffer),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.ch {
		if err := l.w.Write(e); err != nil {
			l.printf("warn: audit write failed kind=%s err=%v", e.Kind, err)
			continue
		}
		l.written.Add(1)
	}
}

func (l *Logger) Record(e model.AuditEntry) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case l.ch <- e:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.printf("warn: audit buffer full dropped_total=%d", n)
		}
	}
}

// Close drains pending entries and closes the current segment.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.closing.Do(func() { close(l.ch) })
	<-l.done
	return l.w.Close()
}

func (l *Logger) Written() uint64 { return l.written.Load() }
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

func (l *Logger) printf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}

// Segments lists the audit segments under dir, oldest first.
func Segments(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), segmentSuffix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ReadAll decodes every entry of one segment.
func ReadAll(path string) ([]model.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return decode(dec)
}

func decode(r io.Reader) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var e model.AuditEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
