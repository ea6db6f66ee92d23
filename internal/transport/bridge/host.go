// Package bridge connects the rules engine to the game host over a websocket.
//
// The host shim forwards hook events; the server answers action queries and
// reads live state back with CALL/REPLY round trips. Every handler, timer and
// action callback runs on a single event loop goroutine, so managers see the
// same single-threaded world the in-process plugin would.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkrivals.io/internal/host"
	"parkrivals.io/internal/protocol"
)

var (
	ErrClosed   = errors.New("bridge: no host connected")
	ErrTimeout  = errors.New("bridge: call timed out")
	ErrBusy     = errors.New("bridge: send queue full")
	errNotFound = errors.New("bridge: not found")
)

// ResultTransportError marks an action whose outcome never arrived.
const ResultTransportError = -1

// CallError is an error REPLY from the host.
type CallError struct {
	Method string
	Code   string
	Msg    string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("bridge: %s failed: %s: %s", e.Method, e.Code, e.Msg)
}

// loop is an unbounded FIFO drained by one goroutine.
type loop struct {
	mu   sync.Mutex
	q    []func()
	wake chan struct{}
}

func newLoop() *loop { return &loop{wake: make(chan struct{}, 1)} }

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.q = append(l.q, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *loop) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.q)
}

func (l *loop) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.q) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.q[0]
			l.q[0] = nil
			l.q = l.q[1:]
			l.mu.Unlock()
			fn()
		}
	}
}

// Host implements host.Port against whichever shim is currently connected.
type Host struct {
	logger  *log.Logger
	timeout time.Duration
	loop    *loop

	mu   sync.Mutex
	conn *conn
}

func NewHost(callTimeout time.Duration, logger *log.Logger) *Host {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Host{logger: logger, timeout: callTimeout, loop: newLoop()}
}

// Run drains the event loop until ctx is done.
func (h *Host) Run(ctx context.Context) { h.loop.run(ctx) }

// Post queues fn on the event loop.
func (h *Host) Post(fn func()) { h.loop.post(fn) }

// Do runs fn on the event loop and waits for it.
func (h *Host) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	h.loop.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *Host) current() *conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *Host) attach(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return false
	}
	h.conn = c
	return true
}

func (h *Host) detach(c *conn) {
	h.mu.Lock()
	if h.conn == c {
		h.conn = nil
	}
	h.mu.Unlock()
	c.shutdown()
}

// call sends a CALL and waits for the REPLY, decoding its result into out.
func (h *Host) call(method string, params, out any) error {
	c := h.current()
	if c == nil {
		return ErrClosed
	}
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	id := uuid.NewString()
	ch := make(chan protocol.ReplyMsg, 1)
	c.register(id, func(r protocol.ReplyMsg) { ch <- r })
	msg := protocol.CallMsg{Type: protocol.TypeCall, ProtocolVersion: protocol.Version, ID: id, Method: method, Params: raw}
	if err := c.send(msg, h.timeout); err != nil {
		c.unregister(id)
		return err
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return decodeReply(method, r, out)
	case <-timer.C:
		c.unregister(id)
		return ErrTimeout
	case <-c.closed:
		return ErrClosed
	}
}

func decodeReply(method string, r protocol.ReplyMsg, out any) error {
	if r.Error != nil {
		if r.Error.Code == protocol.ErrNotFound {
			return errNotFound
		}
		return &CallError{Method: method, Code: r.Error.Code, Msg: r.Error.Message}
	}
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return errNotFound
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("bridge: decode %s reply: %w", method, err)
	}
	return nil
}

// lookup runs a read call, folding not-found into false and logging other
// failures.
func (h *Host) lookup(method string, params, out any) bool {
	err := h.call(method, params, out)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errNotFound):
		return false
	default:
		h.logger.Printf("warn: host call failed method=%s err=%v", method, err)
		return false
	}
}

// --- host.World ---

func (h *Host) Ride(id int) (host.Ride, bool) {
	var r host.Ride
	ok := h.lookup(protocol.MethodRide, protocol.IDParams{ID: id}, &r)
	return r, ok
}

func (h *Host) Rides() []host.Ride {
	var out []host.Ride
	h.lookup(protocol.MethodRides, nil, &out)
	return out
}

func (h *Host) Tile(x, y int) (host.Tile, bool) {
	var t host.Tile
	ok := h.lookup(protocol.MethodTile, protocol.TileParams{X: x, Y: y}, &t)
	return t, ok
}

func (h *Host) ParkCash() (int64, bool) {
	var p protocol.ParkResult
	ok := h.lookup(protocol.MethodPark, nil, &p)
	return p.Cash, ok
}

func (h *Host) Date() host.Date {
	var d host.Date
	h.lookup(protocol.MethodDate, nil, &d)
	return d
}

// ExecuteAction sends the action without waiting. cb runs on the event loop
// once the host replies; it is dropped if the connection goes away first.
func (h *Host) ExecuteAction(kind host.ActionKind, args host.Args, cb func(host.ActionResult)) {
	c := h.current()
	if c == nil {
		h.logger.Printf("warn: execute without host action=%s", kind)
		return
	}
	raw, err := json.Marshal(protocol.ExecuteParams{Action: string(kind), Args: args})
	if err != nil {
		h.logger.Printf("warn: execute encode failed action=%s err=%v", kind, err)
		return
	}
	id := uuid.NewString()
	c.register(id, func(r protocol.ReplyMsg) {
		var res host.ActionResult
		switch err := decodeReply(protocol.MethodExecuteAction, r, &res); {
		case err == nil:
		case errors.Is(err, errNotFound):
			res = host.ActionResult{Error: ResultTransportError, ErrorMessage: "empty reply"}
		default:
			res = host.ActionResult{Error: ResultTransportError, ErrorMessage: err.Error()}
		}
		if cb != nil {
			h.loop.post(func() { cb(res) })
		}
	})
	msg := protocol.CallMsg{Type: protocol.TypeCall, ProtocolVersion: protocol.Version, ID: id, Method: protocol.MethodExecuteAction, Params: raw}
	if err := c.send(msg, h.timeout); err != nil {
		c.unregister(id)
		h.logger.Printf("warn: execute send failed action=%s err=%v", kind, err)
	}
}

// --- host.Sessions ---

func (h *Host) Players() []host.Player {
	var out []host.Player
	h.lookup(protocol.MethodPlayers, nil, &out)
	return out
}

func (h *Host) Group(id int) (host.Group, bool) {
	var g host.Group
	ok := h.lookup(protocol.MethodGroup, protocol.IDParams{ID: id}, &g)
	return g, ok
}

// --- host.Messaging / host.Scheduler ---

func (h *Host) SendMessage(text string, players ...int) {
	c := h.current()
	if c == nil {
		h.logger.Printf("warn: message without host players=%v", players)
		return
	}
	msg := protocol.ChatMsg{Type: protocol.TypeMessage, ProtocolVersion: protocol.Version, Text: text, Players: players}
	if err := c.send(msg, h.timeout); err != nil {
		h.logger.Printf("warn: message send failed err=%v", err)
	}
}

func (h *Host) SetTimeout(d time.Duration, fn func()) {
	if d <= 0 {
		h.loop.post(fn)
		return
	}
	time.AfterFunc(d, func() { h.loop.post(fn) })
}

var _ host.Port = (*Host)(nil)
