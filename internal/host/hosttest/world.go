// Package hosttest provides an in-memory host.Port for tests and offline runs.
//
// Action callbacks and timers never fire synchronously: callers drive them with
// Flush and Advance, the same way the real host delivers them on later ticks.
package hosttest

import (
	"sort"
	"sync"
	"time"

	"parkrivals.io/internal/host"
)

// CheatSetMoney mirrors cheats.SetMoney; duplicated to keep this package a leaf.
const CheatSetMoney = 17

// ErrNameTaken is the result error code the host reports for a duplicate ride name.
const ErrNameTaken = 1

type Message struct {
	Text    string
	Players []int
}

func (m Message) Broadcast() bool { return len(m.Players) == 0 }

type ActionCall struct {
	Kind host.ActionKind
	Args host.Args
}

// ActionFunc overrides the outcome of an action kind.
type ActionFunc func(w *World, args host.Args) host.ActionResult

type timer struct {
	at  time.Duration
	seq int
	fn  func()
}

type World struct {
	mu sync.Mutex

	players  []host.Player
	groups   map[int]host.Group
	rides    map[int]host.Ride
	tiles    map[[2]int]host.Tile
	cash     int64
	parkDown bool
	date     host.Date
	nextRide int

	now     time.Duration
	timers  []timer
	seq     int
	pending []func()

	messages []Message
	actions  []ActionCall
	handlers map[host.ActionKind]ActionFunc
}

func New() *World {
	return &World{
		groups:   map[int]host.Group{},
		rides:    map[int]host.Ride{},
		tiles:    map[[2]int]host.Tile{},
		date:     host.Date{Day: 2, Month: 1, Year: 1},
		handlers: map[host.ActionKind]ActionFunc{},
	}
}

// --- host.Port ---

func (w *World) Ride(id int) (host.Ride, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rides[id]
	return r, ok
}

func (w *World) Rides() []host.Ride {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]host.Ride, 0, len(w.rides))
	for _, r := range w.rides {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) Tile(x, y int) (host.Tile, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tiles[[2]int{x, y}]
	return t, ok
}

func (w *World) ParkCash() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.parkDown {
		return 0, false
	}
	return w.cash, true
}

func (w *World) Date() host.Date {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.date
}

func (w *World) ExecuteAction(kind host.ActionKind, args host.Args, cb func(host.ActionResult)) {
	w.mu.Lock()
	w.actions = append(w.actions, ActionCall{Kind: kind, Args: args.Clone()})
	h := w.handlers[kind]
	w.mu.Unlock()

	var res host.ActionResult
	if h != nil {
		res = h(w, args)
	} else {
		res = w.defaultAction(kind, args)
	}
	if cb == nil {
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, func() { cb(res) })
	w.mu.Unlock()
}

func (w *World) Players() []host.Player {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]host.Player(nil), w.players...)
}

func (w *World) Group(id int) (host.Group, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.groups[id]
	return g, ok
}

func (w *World) SendMessage(text string, players ...int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, Message{Text: text, Players: append([]int(nil), players...)})
}

func (w *World) SetTimeout(d time.Duration, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	w.timers = append(w.timers, timer{at: w.now + d, seq: w.seq, fn: fn})
}

func (w *World) defaultAction(kind host.ActionKind, args host.Args) host.ActionResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch kind {
	case host.ActionCheatSet:
		if t, _ := args.Int("type"); t == CheatSetMoney {
			v, _ := args.Float("param1")
			w.cash = int64(v)
		}
	case host.ActionRideCreate:
		w.nextRide++
		for {
			if _, taken := w.rides[w.nextRide]; !taken {
				break
			}
			w.nextRide++
		}
		id := w.nextRide
		t, _ := args.Int("rideType")
		w.rides[id] = host.Ride{ID: id, Name: "Ride 1", Type: t}
		return host.ActionResult{Ride: &id}
	case host.ActionRideSetName:
		id, _ := args.Int("ride")
		name, _ := args["name"].(string)
		for _, r := range w.rides {
			if r.ID != id && r.Name == name {
				return host.ActionResult{Error: ErrNameTaken, ErrorTitle: "Can't rename ride", ErrorMessage: "Name already in use"}
			}
		}
		if r, ok := w.rides[id]; ok {
			r.Name = name
			w.rides[id] = r
		}
	case host.ActionRideDemolish:
		id, _ := args.Int("ride")
		delete(w.rides, id)
	}
	return host.ActionResult{}
}

// --- driving ---

// Flush runs queued action callbacks, including ones they queue themselves.
func (w *World) Flush() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		fn := w.pending[0]
		w.pending = w.pending[1:]
		w.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward, firing due timers in order, then flushes.
func (w *World) Advance(d time.Duration) {
	w.mu.Lock()
	target := w.now + d
	w.mu.Unlock()
	for {
		w.Flush()
		w.mu.Lock()
		sort.Slice(w.timers, func(i, j int) bool {
			if w.timers[i].at != w.timers[j].at {
				return w.timers[i].at < w.timers[j].at
			}
			return w.timers[i].seq < w.timers[j].seq
		})
		if len(w.timers) == 0 || w.timers[0].at > target {
			w.now = target
			w.mu.Unlock()
			return
		}
		t := w.timers[0]
		w.timers = w.timers[1:]
		w.now = t.at
		w.mu.Unlock()
		t.fn()
	}
}

func (w *World) PendingTimers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// --- setup ---

func (w *World) Handle(kind host.ActionKind, fn ActionFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = fn
}

func (w *World) AddGroup(g host.Group) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.groups[g.ID] = g
}

func (w *World) AddPlayer(p host.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.players {
		if w.players[i].ID == p.ID {
			w.players[i] = p
			return
		}
	}
	w.players = append(w.players, p)
}

func (w *World) RemovePlayer(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.players[:0]
	for _, p := range w.players {
		if p.ID != id {
			out = append(out, p)
		}
	}
	w.players = out
}

func (w *World) PutRide(r host.Ride) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rides[r.ID] = r
	if r.ID > w.nextRide {
		w.nextRide = r.ID
	}
}

func (w *World) RemoveRide(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rides, id)
}

func (w *World) SetProfit(id int, total int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.rides[id]; ok {
		r.TotalProfit = total
		w.rides[id] = r
	}
}

// PutElement appends an element to the tile at tile coordinates (tx, ty).
func (w *World) PutElement(tx, ty int, el host.Element) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := [2]int{tx, ty}
	t := w.tiles[k]
	t.X, t.Y = tx, ty
	t.Elements = append(t.Elements, el)
	w.tiles[k] = t
}

func (w *World) SetCash(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cash = v
}

// FailParkReads makes ParkCash report an unreadable treasury.
func (w *World) FailParkReads(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parkDown = fail
}

func (w *World) SetDate(d host.Date) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.date = d
}

// --- inspection ---

func (w *World) Messages() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.messages...)
}

// MessagesTo returns texts addressed to player id, excluding broadcasts.
func (w *World) MessagesTo(id int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, m := range w.messages {
		for _, p := range m.Players {
			if p == id {
				out = append(out, m.Text)
				break
			}
		}
	}
	return out
}

func (w *World) Broadcasts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, m := range w.messages {
		if m.Broadcast() {
			out = append(out, m.Text)
		}
	}
	return out
}

func (w *World) Actions() []ActionCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ActionCall(nil), w.actions...)
}

func (w *World) ActionsOf(kind host.ActionKind) []ActionCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []ActionCall
	for _, a := range w.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
	w.actions = nil
}

var _ host.Port = (*World)(nil)
