// Package players maps transient session ids to durable player records keyed
// by public key hash.
package players

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/messenger"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/store"
)

const collection = "players"

var (
	ErrNotFound      = errors.New("player not found")
	ErrNegativeSpend = errors.New("negative spend")
)

// record is the persisted form of a player.
type record struct {
	Name       string     `json:"name,omitempty"`
	Rides      []int      `json:"rides"`
	MoneySpent int64      `json:"moneySpent"`
	LastSeen   *time.Time `json:"lastSeen"`
}

type Directory struct {
	sessions        host.Sessions
	ns              *store.Namespace
	msg             *messenger.Messenger
	logger          *log.Logger
	adminPermission string

	// online remembers session -> key so leave can be handled after the host
	// has already dropped the session.
	online map[int]string

	now func() time.Time
}

type Options struct {
	Sessions        host.Sessions
	Store           *store.Namespace
	Messenger       *messenger.Messenger
	AdminPermission string
	Logger          *log.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func New(opts Options) *Directory {
	d := &Directory{
		sessions:        opts.Sessions,
		ns:              opts.Store,
		msg:             opts.Messenger,
		logger:          opts.Logger,
		adminPermission: opts.AdminPermission,
		online:          map[int]string{},
		now:             opts.Now,
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.adminPermission == "" {
		d.adminPermission = "kick_player"
	}
	return d
}

func (d *Directory) Register(g *gateway.Gateway) {
	g.Subscribe(host.HookNetworkJoin, func(e *gateway.PlayerEvent) {
		d.OnJoin(e.Player)
	})
	g.Subscribe(host.HookNetworkLeave, func(e *gateway.PlayerEvent) {
		d.OnLeave(e.Player)
	})
}

func (d *Directory) IsServerActor(sessionID int) bool { return sessionID == host.ServerPlayer }
func (d *Directory) IsNoPlayer(sessionID int) bool    { return sessionID == host.NoPlayer }

func (d *Directory) loadLive(sessionID int) (host.Player, bool) {
	p, ok := host.PlayerByID(d.sessions, sessionID)
	if !ok {
		d.logger.Printf("warn: no live session: player=%d", sessionID)
	}
	return p, ok
}

func (d *Directory) loadRecord(key string) (record, bool) {
	var r record
	if !d.ns.Load(collection, key, &r) {
		return record{}, false
	}
	if r.Rides == nil {
		r.Rides = []int{}
	}
	return r, true
}

func (d *Directory) saveRecord(key string, r record) {
	if r.Rides == nil {
		r.Rides = []int{}
	}
	d.ns.Save(collection, key, r)
}

func compose(key string, p host.Player, r record) model.Identity {
	name := p.Name
	if name == "" {
		name = r.Name
	}
	return model.Identity{
		Key:       key,
		Name:      name,
		SessionID: p.ID,
		Group:     p.Group,
		Rides:     append([]int(nil), r.Rides...),
		Spent:     r.MoneySpent,
		LastSeen:  r.LastSeen,
	}
}

// Resolve returns the identity behind a live session. The no-player and
// server sentinels never resolve.
func (d *Directory) Resolve(sessionID int) (model.Identity, bool) {
	if sessionID == host.NoPlayer || sessionID == host.ServerPlayer {
		return model.Identity{}, false
	}
	p, ok := d.loadLive(sessionID)
	if !ok {
		return model.Identity{}, false
	}
	r, ok := d.loadRecord(p.PublicKeyHash)
	if !ok {
		d.logger.Printf("warn: no player record: player=%d key=%s", sessionID, p.PublicKeyHash)
		return model.Identity{}, false
	}
	d.online[sessionID] = p.PublicKeyHash
	return compose(p.PublicKeyHash, p, r), true
}

// ResolveKey resolves a durable key, online or not. Offline identities carry
// the last known name and session id -1.
func (d *Directory) ResolveKey(key string) (model.Identity, bool) {
	r, ok := d.loadRecord(key)
	if !ok {
		d.logger.Printf("warn: no player record: key=%s", key)
		return model.Identity{}, false
	}
	p, online := host.PlayerByHash(d.sessions, key)
	if !online {
		p = host.Player{ID: host.NoPlayer}
	}
	return compose(key, p, r), true
}

// All lists every stored identity ordered by key.
func (d *Directory) All() ([]model.Identity, error) {
	keys, err := d.ns.Keys(collection)
	if err != nil {
		return nil, err
	}
	out := make([]model.Identity, 0, len(keys))
	for _, k := range keys {
		if id, ok := d.ResolveKey(k); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Stored decodes every player record in ns without a live session list, for
// offline tools. Identities carry session id -1 and are ordered by key.
func Stored(ns *store.Namespace) ([]model.Identity, error) {
	raw, err := ns.All(collection)
	if err != nil {
		return nil, err
	}
	out := make([]model.Identity, 0, len(raw))
	for k, b := range raw {
		var r record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("player %s: %w", k, err)
		}
		out = append(out, compose(k, host.Player{ID: host.NoPlayer}, r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Online counts sessions seen since they joined.
func (d *Directory) Online() int { return len(d.online) }

// Sync rebuilds the online set from the live session list without greeting
// anyone. It runs when the host reconnects mid-session.
func (d *Directory) Sync() int {
	d.online = map[int]string{}
	for _, p := range d.sessions.Players() {
		if p.ID == host.ServerPlayer || p.PublicKeyHash == "" {
			continue
		}
		r, _ := d.loadRecord(p.PublicKeyHash)
		r.Name = p.Name
		d.saveRecord(p.PublicKeyHash, r)
		d.online[p.ID] = p.PublicKeyHash
	}
	return len(d.online)
}

// OnJoin creates or refreshes the record for a joining session and schedules
// the welcome line.
func (d *Directory) OnJoin(sessionID int) (model.Identity, bool) {
	p, ok := d.loadLive(sessionID)
	if !ok {
		return model.Identity{}, false
	}
	r, returning := d.loadRecord(p.PublicKeyHash)
	r.Name = p.Name
	d.saveRecord(p.PublicKeyHash, r)
	d.online[sessionID] = p.PublicKeyHash

	if d.msg != nil {
		d.msg.MessageOnConnect(d.welcome(p.Name, returning, r.LastSeen), sessionID)
	}
	d.logger.Printf("player join: player=%d key=%s returning=%v", sessionID, p.PublicKeyHash, returning)
	return compose(p.PublicKeyHash, p, r), true
}

func (d *Directory) welcome(name string, returning bool, lastSeen *time.Time) string {
	if !returning {
		return fmt.Sprintf("%s%sWelcome, %s%s%s!%sThis server uses the Competitive Plugin.",
			messenger.Newline, messenger.Yellow, messenger.White, name, messenger.Yellow, messenger.Newline)
	}
	msg := fmt.Sprintf("%s%sWelcome back, %s%s%s!",
		messenger.Newline, messenger.Yellow, messenger.White, name, messenger.Yellow)
	if lastSeen != nil {
		msg += fmt.Sprintf("%s%sYour last visit was: %s%s%s!",
			messenger.Newline, messenger.Yellow, messenger.White,
			humanize.RelTime(*lastSeen, d.now(), "ago", "from now"), messenger.Yellow)
	}
	return msg
}

// OnLeave stamps the record's last-seen time.
func (d *Directory) OnLeave(sessionID int) {
	key, ok := d.online[sessionID]
	if !ok {
		p, live := d.loadLive(sessionID)
		if !live {
			return
		}
		key = p.PublicKeyHash
	}
	delete(d.online, sessionID)
	r, ok := d.loadRecord(key)
	if !ok {
		d.logger.Printf("warn: leave without record: player=%d key=%s", sessionID, key)
		return
	}
	now := d.now().UTC()
	r.LastSeen = &now
	d.saveRecord(key, r)
}

// AddAttraction records ownership of rideID. Adding an owned ride is a no-op.
func (d *Directory) AddAttraction(key string, rideID int) bool {
	r, ok := d.loadRecord(key)
	if !ok {
		d.logger.Printf("warn: add attraction for unknown player: key=%s ride=%d", key, rideID)
		return false
	}
	for _, id := range r.Rides {
		if id == rideID {
			return true
		}
	}
	r.Rides = append(r.Rides, rideID)
	sort.Ints(r.Rides)
	d.saveRecord(key, r)
	return true
}

// RemoveAttraction drops rideID from the player's set. Removing a ride the
// player does not own is a no-op.
func (d *Directory) RemoveAttraction(key string, rideID int) bool {
	r, ok := d.loadRecord(key)
	if !ok {
		d.logger.Printf("warn: remove attraction for unknown player: key=%s ride=%d", key, rideID)
		return false
	}
	out := r.Rides[:0]
	found := false
	for _, id := range r.Rides {
		if id == rideID {
			found = true
			continue
		}
		out = append(out, id)
	}
	if !found {
		return true
	}
	r.Rides = out
	d.saveRecord(key, r)
	return true
}

// AddSpend increases the player's cumulative spend.
func (d *Directory) AddSpend(key string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSpend, amount)
	}
	r, ok := d.loadRecord(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	r.MoneySpent += amount
	d.saveRecord(key, r)
	return nil
}

// IsAdmin reports whether the identity's group may kick players.
func (d *Directory) IsAdmin(id model.Identity) bool {
	g, ok := d.sessions.Group(id.Group)
	if !ok {
		return false
	}
	return g.Has(d.adminPermission)
}
