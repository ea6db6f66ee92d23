// Package permission decides, during the query phase, whether an actor may
// perform a world-mutating action.
package permission

import (
	"log"
	"time"

	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/messenger"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/players"
)

// Denial titles and messages shown by the host.
const (
	TitleNoPlayer   = "NO PLAYER INDEX"
	MessageNoPlayer = "Player is -1"

	TitleRestricted   = "NOT ALLOWED"
	MessageRestricted = "Only admins can modify the park."
	ChatRestricted    = messenger.Red + "ERROR: Only admins can modify the park!"

	TitleNotOwned   = "NOT OWNED"
	MessageNotOwned = "That ride belongs to another player."
	ChatNotOwned    = messenger.Red + "ERROR: " + messenger.White + "That ride/stall doesn't belong to you!"
)

// OwnerLookup reports the registered owner of a ride.
type OwnerLookup interface {
	OwnerOf(rideID int) (string, bool)
}

type Engine struct {
	world      host.World
	players    *players.Directory
	rides      OwnerLookup
	msg        *messenger.Messenger
	restricted host.KindSet
	logger     *log.Logger
	audit      model.Auditor
	metrics    *metrics.Registry
}

type Options struct {
	World             host.World
	Players           *players.Directory
	Rides             OwnerLookup
	Messenger         *messenger.Messenger
	RestrictedActions []string
	Logger            *log.Logger
	Audit             model.Auditor
	Metrics           *metrics.Registry
}

func New(opts Options) *Engine {
	e := &Engine{
		world:      opts.World,
		players:    opts.Players,
		rides:      opts.Rides,
		msg:        opts.Messenger,
		restricted: host.NewKindSet(opts.RestrictedActions...),
		logger:     opts.Logger,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.audit == nil {
		e.audit = model.NopAuditor{}
	}
	return e
}

// Register must run before the economy registers, so a denied action is
// never charged.
func (e *Engine) Register(g *gateway.Gateway) {
	g.Subscribe(host.HookActionQuery, e.Decide)
}

// Decide applies the ownership rules to one query-phase action.
func (e *Engine) Decide(ev *gateway.ActionEvent) {
	if ev.Action == host.ActionRideCreate && e.players.IsNoPlayer(ev.Player) {
		// Track designs are imported without a player.
		e.deny(ev, metrics.OutcomeDenyNoPlayer, TitleNoPlayer, MessageNoPlayer, "")
		return
	}
	if e.players.IsServerActor(ev.Player) || ev.Action == host.ActionRideCreate || ev.Action == host.ActionCheatSet {
		return
	}

	if e.restricted.Has(ev.Action) {
		if ev.Actor == nil || !e.players.IsAdmin(*ev.Actor) {
			e.deny(ev, metrics.OutcomeDenyRestricted, TitleRestricted, MessageRestricted, ChatRestricted)
			return
		}
		e.metrics.Decision(string(ev.Action), metrics.OutcomeAllow)
		return
	}

	ev.Args = Enrich(e.world, ev.Action, ev.Args)
	rideID, ok := ev.Args.Ride()
	if !ok {
		e.metrics.Decision(string(ev.Action), metrics.OutcomeAllow)
		return
	}
	if ev.Actor == nil || (!e.owns(*ev.Actor, rideID) && !e.players.IsAdmin(*ev.Actor)) {
		e.deny(ev, metrics.OutcomeDenyNotOwned, TitleNotOwned, MessageNotOwned, ChatNotOwned)
		return
	}
	e.metrics.Decision(string(ev.Action), metrics.OutcomeAllow)
}

// owns requires the claim on the player record and, when a registry is
// wired, that the ride record names the same player.
func (e *Engine) owns(id model.Identity, rideID int) bool {
	if !id.Owns(rideID) {
		return false
	}
	if e.rides == nil {
		return true
	}
	owner, ok := e.rides.OwnerOf(rideID)
	return ok && owner == id.Key
}

func (e *Engine) deny(ev *gateway.ActionEvent, outcome, title, message, chat string) {
	ev.Deny(title, message)
	name, key := "", ""
	if ev.Actor != nil {
		name, key = ev.Actor.Name, ev.Actor.Key
	}
	e.logger.Printf("warn: denied action=%s player=%d name=%q reason=%s", ev.Action, ev.Player, name, outcome)
	// Sentinel sessions have nobody to tell.
	if chat != "" && e.msg != nil && !e.players.IsNoPlayer(ev.Player) && !e.players.IsServerActor(ev.Player) {
		e.msg.Message(chat, ev.Player)
	}
	entry := model.AuditEntry{
		Time:    time.Now().UTC(),
		Kind:    model.AuditDeny,
		Action:  string(ev.Action),
		Player:  ev.Player,
		Key:     key,
		Title:   title,
		Message: message,
	}
	if id, ok := ev.Args.Ride(); ok {
		entry.Ride = &id
	}
	e.audit.Record(entry)
	e.metrics.Decision(string(ev.Action), outcome)
}

// Enrich fills in the ride id of a trackremove that only carries coordinates,
// by finding the track element at that height on the tile. It never modifies
// args; when it adds the ride it returns a copy.
func Enrich(w host.World, action host.ActionKind, args host.Args) host.Args {
	if action != host.ActionTrackRemove || args.Has("ride") {
		return args
	}
	x, errX := args.Int("x")
	y, errY := args.Int("y")
	z, errZ := args.Int("z")
	if errX != nil || errY != nil || errZ != nil {
		return args
	}
	tile, ok := host.TileAt(w, x, y)
	if !ok {
		return args
	}
	for _, el := range tile.Elements {
		if el.Type == host.ElementTrack && el.BaseZ == z && el.Ride != nil {
			out := args.Clone()
			out["ride"] = *el.Ride
			return out
		}
	}
	return args
}
