// Package economy derives each player's balance from their spend and their
// rides' profits, and keeps the shared park treasury in step with the player
// who is acting.
package economy

import (
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"parkrivals.io/internal/cheats"
	"parkrivals.io/internal/commands"
	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/messenger"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/players"
	"parkrivals.io/internal/rides"
)

const (
	TitleNoCash   = "NOT ENOUGH CASH MONEY"
	MessageNoCash = "Can't afford to perform action"
)

// Refill reasons.
const (
	RefillBuild = "build"
	RefillEmpty = "empty"
)

type Reconciler struct {
	world   host.World
	players *players.Directory
	rides   *rides.Registry
	msg     *messenger.Messenger
	cheats  *cheats.Cheater
	limiter *commands.Limiter
	logger  *log.Logger
	audit   model.Auditor
	metrics *metrics.Registry

	initial    int64
	clampType  int
	build      host.KindSet
	replyDelay time.Duration
}

type Options struct {
	World     host.World
	Players   *players.Directory
	Rides     *rides.Registry
	Messenger *messenger.Messenger
	Cheats    *cheats.Cheater
	Limiter   *commands.Limiter
	Logger    *log.Logger
	Audit     model.Auditor
	Metrics   *metrics.Registry

	InitialBalance    int64
	ClampRideType     int
	BuildActions      []string
	BalanceReplyDelay time.Duration
}

func New(opts Options) *Reconciler {
	r := &Reconciler{
		world:      opts.World,
		players:    opts.Players,
		rides:      opts.Rides,
		msg:        opts.Messenger,
		cheats:     opts.Cheats,
		limiter:    opts.Limiter,
		logger:     opts.Logger,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		initial:    opts.InitialBalance,
		clampType:  opts.ClampRideType,
		build:      host.NewKindSet(opts.BuildActions...),
		replyDelay: opts.BalanceReplyDelay,
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.audit == nil {
		r.audit = model.NopAuditor{}
	}
	return r
}

func (r *Reconciler) Register(g *gateway.Gateway) {
	g.Subscribe(host.HookActionQuery, r.onQuery)
	g.Subscribe(host.HookIntervalDay, r.onDay)
	g.Subscribe(host.HookNetworkChat, r.onChat)
}

// Balance is the starting balance minus everything spent plus the profit of
// every owned ride. It is recomputed on every call.
func (r *Reconciler) Balance(id model.Identity) int64 {
	bal := r.initial - id.Spent
	for _, rideID := range id.Rides {
		bal += r.profitOf(id.Key, rideID)
	}
	return bal
}

// profitOf counts a ride only for the player its record names.
func (r *Reconciler) profitOf(owner string, rideID int) int64 {
	a, ok := r.rides.Get(rideID)
	if !ok || a.Owner != owner {
		return 0
	}
	if a.Type == r.clampType && a.TotalProfit < 0 {
		return 0
	}
	return a.TotalProfit
}

// setTreasury never sets the park below the starting balance.
func (r *Reconciler) setTreasury(v int64, reason string) {
	if v < r.initial {
		v = r.initial
	}
	r.cheats.SetMoney(v)
	r.metrics.Refill(reason)
	r.audit.Record(model.AuditEntry{Time: time.Now().UTC(), Kind: model.AuditRefill, Player: host.ServerPlayer, Balance: v, Message: reason})
}

func (r *Reconciler) onQuery(ev *gateway.ActionEvent) {
	cost := ev.Result.Cost
	if cost <= 0 || r.players.IsNoPlayer(ev.Player) || r.players.IsServerActor(ev.Player) {
		return
	}
	if ev.Actor == nil {
		r.logger.Printf("warn: cost for unresolved player: action=%s player=%d cost=%d", ev.Action, ev.Player, cost)
		return
	}
	bal := r.Balance(*ev.Actor)
	if r.build.Has(ev.Action) {
		r.setTreasury(bal, RefillBuild)
	}
	if bal < cost {
		ev.Deny(TitleNoCash, MessageNoCash)
		r.msg.Message(fmt.Sprintf("%sERROR: Not enough cash to perform that action! It costs %s and you have %s",
			messenger.Red, FormatMoney(cost), FormatMoney(bal)), ev.Player)
		r.logger.Printf("warn: denied action=%s player=%d name=%q reason=%s cost=%d balance=%d",
			ev.Action, ev.Player, ev.Actor.Name, metrics.OutcomeDenyCash, cost, bal)
		r.metrics.Decision(string(ev.Action), metrics.OutcomeDenyCash)
		r.audit.Record(model.AuditEntry{
			Time: time.Now().UTC(), Kind: model.AuditDeny, Action: string(ev.Action),
			Player: ev.Player, Key: ev.Actor.Key, Cost: cost, Balance: bal,
			Title: TitleNoCash, Message: MessageNoCash,
		})
		return
	}
	if err := r.players.AddSpend(ev.Actor.Key, cost); err != nil {
		r.logger.Printf("warn: spend not recorded: player=%d err=%v", ev.Player, err)
		return
	}
	ev.ActorChanged()
	r.metrics.Spend(cost)
	r.audit.Record(model.AuditEntry{
		Time: time.Now().UTC(), Kind: model.AuditSpend, Action: string(ev.Action),
		Player: ev.Player, Key: ev.Actor.Key, Cost: cost, Balance: bal - cost,
	})
}

func (r *Reconciler) onDay() {
	switch cash, ok := r.world.ParkCash(); {
	case !ok:
		r.logger.Printf("warn: treasury unreadable, day refill skipped")
	case cash <= 0:
		r.setTreasury(r.initial, RefillEmpty)
	}
	if r.world.Date().Day == 1 {
		r.Standings()
	}
}

// Standings advances every ride's profit checkpoint and broadcasts the ride
// with the largest positive profit since the previous one.
func (r *Reconciler) Standings() (model.Attraction, int64, bool) {
	var best model.Attraction
	var bestDelta int64
	for _, a := range r.rides.All() {
		d := a.Delta()
		r.rides.UpdateCheckpoint(a.ID, a.TotalProfit)
		if d > bestDelta {
			best, bestDelta = a, d
		}
	}
	if bestDelta <= 0 {
		return model.Attraction{}, 0, false
	}
	owner := best.Owner
	if id, ok := r.players.ResolveKey(best.Owner); ok && id.Name != "" {
		owner = id.Name
	}
	r.msg.Broadcast(fmt.Sprintf("%sThis month's most profitable ride is %s%s%s by %s%s%s with a profit of %s%s%s!",
		messenger.Yellow, messenger.White, best.Name, messenger.Yellow,
		messenger.White, owner, messenger.Yellow,
		messenger.Green, FormatMoney(bestDelta), messenger.Yellow))
	rid := best.ID
	r.audit.Record(model.AuditEntry{Time: time.Now().UTC(), Kind: model.AuditStandings, Player: host.ServerPlayer, Key: best.Owner, Ride: &rid, Balance: bestDelta})
	return best, bestDelta, true
}

func (r *Reconciler) onChat(ev *gateway.ChatEvent) {
	cmd, ok := commands.Parse(ev.Message)
	if !ok {
		return
	}
	if _, ok := commands.Match(cmd, "balance", "bal"); !ok {
		return
	}
	if r.limiter != nil && !r.limiter.Allow(ev.Player) {
		return
	}
	var bal int64
	if ev.Actor != nil {
		bal = r.Balance(*ev.Actor)
	}
	r.msg.MessageAfter(r.replyDelay, fmt.Sprintf("%sYour current balance is: %s%s",
		messenger.Yellow, messenger.Green, FormatMoney(bal)), ev.Player)
}

// FormatMoney renders host units, whose last digit is tenths, as dollars.
func FormatMoney(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", float64(v)/10)
}
