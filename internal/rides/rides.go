// Package rides tracks which player owns each ride and the profit checkpoint
// used for the monthly standings.
package rides

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/players"
	"parkrivals.io/internal/store"
)

const collection = "rides"

// ErrNameTaken is the host's result code for a duplicate ride name.
const ErrNameTaken = 1

var digits = regexp.MustCompile(`[0-9]`)

type record struct {
	Owner               string `json:"owner"`
	PreviousTotalProfit int64  `json:"previousTotalProfit"`
}

type Registry struct {
	world       host.World
	ns          *store.Namespace
	players     *players.Directory
	logger      *log.Logger
	audit       model.Auditor
	maxAttempts int
}

type Options struct {
	World   host.World
	Store   *store.Namespace
	Players *players.Directory
	Logger  *log.Logger
	Audit   model.Auditor
	// RenameMaxAttempts bounds the naming retries; 0 means 50.
	RenameMaxAttempts int
}

func New(opts Options) *Registry {
	r := &Registry{
		world:       opts.World,
		ns:          opts.Store,
		players:     opts.Players,
		logger:      opts.Logger,
		audit:       opts.Audit,
		maxAttempts: opts.RenameMaxAttempts,
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.audit == nil {
		r.audit = model.NopAuditor{}
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 50
	}
	return r
}

func (r *Registry) Register(g *gateway.Gateway) {
	g.Subscribe(host.HookActionExecute, r.onExecute)
}

func (r *Registry) onExecute(e *gateway.ActionEvent) {
	if e.Action != host.ActionRideCreate && e.Action != host.ActionRideDemolish {
		return
	}
	if e.Result.Failed() {
		return
	}
	switch e.Action {
	case host.ActionRideCreate:
		if r.players.IsServerActor(e.Player) || r.players.IsNoPlayer(e.Player) {
			return
		}
		if e.Result.Ride == nil {
			return
		}
		if e.Actor == nil {
			r.logger.Printf("warn: ride created by unresolved player: player=%d ride=%d", e.Player, *e.Result.Ride)
			return
		}
		r.Create(*e.Actor, *e.Result.Ride)
		e.ActorChanged()
	case host.ActionRideDemolish:
		// Whoever demolished it, the id is free for reuse.
		id, ok := e.Args.Ride()
		if !ok {
			return
		}
		r.Demolish(id)
		e.ActorChanged()
	}
}

func key(id int) string { return strconv.Itoa(id) }

func (r *Registry) loadLive(id int) (host.Ride, bool) {
	ride, ok := r.world.Ride(id)
	if !ok {
		r.logger.Printf("warn: no live ride: ride=%d", id)
	}
	return ride, ok
}

func (r *Registry) loadRecord(id int) (record, bool) {
	var rec record
	if !r.ns.Load(collection, key(id), &rec) {
		return record{}, false
	}
	return rec, true
}

func compose(id int, live host.Ride, rec record) model.Attraction {
	return model.Attraction{
		ID:             id,
		Owner:          rec.Owner,
		PreviousProfit: rec.PreviousTotalProfit,
		Name:           live.Name,
		TotalProfit:    live.TotalProfit,
		Type:           live.Type,
	}
}

// Get joins the live ride with its record. Either side missing means absent.
func (r *Registry) Get(id int) (model.Attraction, bool) {
	if id < 0 {
		return model.Attraction{}, false
	}
	live, ok := r.loadLive(id)
	if !ok {
		return model.Attraction{}, false
	}
	rec, ok := r.loadRecord(id)
	if !ok {
		return model.Attraction{}, false
	}
	return compose(id, live, rec), true
}

// OwnerOf reads the owner from the record alone, so it works for rides the
// world has already removed.
func (r *Registry) OwnerOf(id int) (string, bool) {
	rec, ok := r.loadRecord(id)
	if !ok {
		return "", false
	}
	return rec.Owner, true
}

// All returns every live ride that has a record, ordered by id.
func (r *Registry) All() []model.Attraction {
	var out []model.Attraction
	for _, live := range r.world.Rides() {
		rec, ok := r.loadRecord(live.ID)
		if !ok {
			continue
		}
		out = append(out, compose(live.ID, live, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stored decodes every ride record in ns without consulting the world. Only
// the id, owner and checkpoint are set.
func Stored(ns *store.Namespace) ([]model.Attraction, error) {
	raw, err := ns.All(collection)
	if err != nil {
		return nil, err
	}
	out := make([]model.Attraction, 0, len(raw))
	for k, b := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("ride %d: %w", id, err)
		}
		out = append(out, compose(id, host.Ride{ID: id}, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create records owner's new ride and starts naming it after them.
func (r *Registry) Create(owner model.Identity, id int) {
	if prev, ok := r.loadRecord(id); ok && prev.Owner != owner.Key {
		// The host reused the id of a ride we never saw demolished.
		r.logger.Printf("warn: ride id reused: ride=%d previous=%s owner=%s", id, prev.Owner, owner.Key)
		r.players.RemoveAttraction(prev.Owner, id)
	}
	r.ns.Save(collection, key(id), record{Owner: owner.Key})
	r.players.AddAttraction(owner.Key, id)
	rid := id
	r.audit.Record(model.AuditEntry{Time: time.Now().UTC(), Kind: model.AuditCreate, Action: string(host.ActionRideCreate), Player: owner.SessionID, Key: owner.Key, Ride: &rid})

	live, ok := r.loadLive(id)
	if !ok {
		return
	}
	r.rename(id, BaseName(owner.Name, live.Name), 1)
}

// BaseName is the owner's name followed by the ride's default name without
// its digits.
func BaseName(owner, rideName string) string {
	return owner + " " + strings.TrimSpace(digits.ReplaceAllString(rideName, ""))
}

// rename tries "<base> n", moving to n+1 while the host reports the name as
// taken. Giving up after maxAttempts is silent.
func (r *Registry) rename(id int, base string, n int) {
	r.world.ExecuteAction(host.ActionRideSetName, host.Args{
		"ride": id,
		"name": fmt.Sprintf("%s %d", base, n),
	}, func(res host.ActionResult) {
		if res.Error == ErrNameTaken && n < r.maxAttempts {
			r.rename(id, base, n+1)
		}
	})
}

// Demolish releases the owner's claim and drops the record.
func (r *Registry) Demolish(id int) {
	rec, ok := r.loadRecord(id)
	if !ok {
		return
	}
	r.players.RemoveAttraction(rec.Owner, id)
	r.ns.Remove(collection, key(id))
	rid := id
	r.audit.Record(model.AuditEntry{Time: time.Now().UTC(), Kind: model.AuditDemolish, Action: string(host.ActionRideDemolish), Player: host.NoPlayer, Key: rec.Owner, Ride: &rid})
}

// UpdateCheckpoint stores value as the ride's profit checkpoint.
func (r *Registry) UpdateCheckpoint(id int, value int64) bool {
	rec, ok := r.loadRecord(id)
	if !ok {
		return false
	}
	rec.PreviousTotalProfit = value
	return r.ns.Save(collection, key(id), rec)
}
