// Package host describes the capabilities the rules engine consumes from the
// game host: live world state, the session directory, chat delivery and a
// deferred-callback scheduler. Every manager receives a Port; nothing reads
// ambient globals.
package host

import "time"

// Session id sentinels. Neither ever resolves to a real player.
const (
	// NoPlayer is reported for actions the host attributes to nobody, e.g. a
	// track design being imported.
	NoPlayer = -1
	// ServerPlayer is the headless server pseudo-player.
	ServerPlayer = 0
)

// TileWidth is the number of world coordinate units per map tile.
const TileWidth = 32

type Player struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Group         int    `json:"group"`
	PublicKeyHash string `json:"publicKeyHash"`
}

type Group struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (g Group) Has(permission string) bool {
	for _, p := range g.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type Ride struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Type        int    `json:"type"`
	TotalProfit int64  `json:"totalProfit"`
}

// Element is one entry of a tile's element stack.
type Element struct {
	Type  string `json:"type"`
	BaseZ int    `json:"baseZ"`
	Ride  *int   `json:"ride,omitempty"`
}

type Tile struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Elements []Element `json:"elements"`
}

type Date struct {
	Day          int    `json:"day"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	TicksElapsed uint64 `json:"ticksElapsed"`
}

// ActionResult mirrors the host's mutable game action result.
type ActionResult struct {
	Error        int    `json:"error"`
	ErrorTitle   string `json:"errorTitle,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Cost         int64  `json:"cost"`
	// Ride is set by ridecreate on success.
	Ride *int `json:"ride,omitempty"`
}

func (r ActionResult) Failed() bool { return r.Error != 0 }

// World is the live world query and action surface.
type World interface {
	Ride(id int) (Ride, bool)
	Rides() []Ride
	Tile(x, y int) (Tile, bool)
	// ParkCash reports false when the treasury could not be read.
	ParkCash() (int64, bool)
	Date() Date
	// ExecuteAction runs a named action. cb, if non-nil, is invoked later on
	// the event loop with the outcome; it is never called synchronously.
	ExecuteAction(kind ActionKind, args Args, cb func(ActionResult))
}

// Sessions is the connected-player directory.
type Sessions interface {
	Players() []Player
	Group(id int) (Group, bool)
}

// Messaging delivers chat lines. With no ids the line is broadcast.
type Messaging interface {
	SendMessage(text string, players ...int)
}

// Scheduler runs fn on the event loop after d.
type Scheduler interface {
	SetTimeout(d time.Duration, fn func())
}

// Port bundles every host capability.
type Port interface {
	World
	Sessions
	Messaging
	Scheduler
}

// PlayerByID returns the connected player with the given session id.
func PlayerByID(s Sessions, id int) (Player, bool) {
	if id == NoPlayer {
		return Player{}, false
	}
	for _, p := range s.Players() {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// PlayerByHash returns the connected player with the given public key hash.
func PlayerByHash(s Sessions, hash string) (Player, bool) {
	if hash == "" {
		return Player{}, false
	}
	for _, p := range s.Players() {
		if p.PublicKeyHash == hash {
			return p, true
		}
	}
	return Player{}, false
}

// TileAt converts world coordinates into a tile lookup.
func TileAt(w World, x, y int) (Tile, bool) {
	return w.Tile(floorDiv(x, TileWidth), floorDiv(y, TileWidth))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
