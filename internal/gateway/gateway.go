// Package gateway routes host hook events to subscribed handlers.
//
// Handlers run in registration order on the caller's goroutine, which in
// production is the single bridge event loop.
package gateway

import (
	"fmt"

	"parkrivals.io/internal/host"
	"parkrivals.io/internal/model"
)

// Resolver turns a session id into the acting player's identity.
type Resolver interface {
	Resolve(sessionID int) (model.Identity, bool)
}

type (
	ActionHandler   func(*ActionEvent)
	PlayerHandler   func(*PlayerEvent)
	ChatHandler     func(*ChatEvent)
	IntervalHandler func()
)

// ActionEvent is one intercepted game action.
type ActionEvent struct {
	Phase  host.HookKind
	Player int
	// Actor is nil when Player does not resolve to an identity.
	Actor  *model.Identity
	Action host.ActionKind
	Args   host.Args
	Result *host.ActionResult

	denied bool
	stale  bool
}

func (e *ActionEvent) IsQuery() bool { return e.Phase == host.HookActionQuery }

// Deny blocks the action. It has no effect during the execute phase.
func (e *ActionEvent) Deny(title, message string) {
	if !e.IsQuery() {
		return
	}
	e.Result.Error = 1
	e.Result.ErrorTitle = title
	e.Result.ErrorMessage = message
	e.denied = true
}

func (e *ActionEvent) Denied() bool { return e.denied }

// ActorChanged marks Actor out of date after a handler wrote to the
// player store. Later handlers see the identity resolved again.
func (e *ActionEvent) ActorChanged() { e.stale = true }

type PlayerEvent struct {
	Player int
	Actor  *model.Identity
}

type ChatEvent struct {
	Player  int
	Actor   *model.Identity
	Message string
}

type subscription struct {
	id   int
	kind host.HookKind
	fn   any
}

// Subscription removes its handler when unsubscribed.
type Subscription struct {
	g  *Gateway
	id int
}

func (s Subscription) Unsubscribe() {
	if s.g != nil {
		s.g.remove(s.id)
	}
}

type Gateway struct {
	resolver Resolver
	subs     []subscription
	nextID   int
}

func New(r Resolver) *Gateway {
	return &Gateway{resolver: r}
}

// SetResolver replaces the resolver; the directory is built after the gateway.
func (g *Gateway) SetResolver(r Resolver) { g.resolver = r }

// Subscribe registers handler for kind. An unknown kind or a handler whose
// type does not match the kind is a wiring bug and panics.
func (g *Gateway) Subscribe(kind host.HookKind, handler any) Subscription {
	if !host.IsKnownHook(kind) {
		panic(fmt.Sprintf("gateway: unknown hook %q", kind))
	}
	fn := normalize(kind, handler)
	if fn == nil {
		panic(fmt.Sprintf("gateway: handler %T does not fit hook %q", handler, kind))
	}
	g.nextID++
	g.subs = append(g.subs, subscription{id: g.nextID, kind: kind, fn: fn})
	return Subscription{g: g, id: g.nextID}
}

func normalize(kind host.HookKind, h any) any {
	switch kind {
	case host.HookActionQuery, host.HookActionExecute:
		switch f := h.(type) {
		case ActionHandler:
			return f
		case func(*ActionEvent):
			return ActionHandler(f)
		}
	case host.HookIntervalTick, host.HookIntervalDay:
		switch f := h.(type) {
		case IntervalHandler:
			return f
		case func():
			return IntervalHandler(f)
		}
	case host.HookNetworkJoin, host.HookNetworkLeave:
		switch f := h.(type) {
		case PlayerHandler:
			return f
		case func(*PlayerEvent):
			return PlayerHandler(f)
		}
	case host.HookNetworkChat:
		switch f := h.(type) {
		case ChatHandler:
			return f
		case func(*ChatEvent):
			return ChatHandler(f)
		}
	}
	return nil
}

func (g *Gateway) remove(id int) {
	for i, s := range g.subs {
		if s.id == id {
			g.subs = append(g.subs[:i:i], g.subs[i+1:]...)
			return
		}
	}
}

// Count reports the handlers registered for kind.
func (g *Gateway) Count(kind host.HookKind) int {
	n := 0
	for _, s := range g.subs {
		if s.kind == kind {
			n++
		}
	}
	return n
}

// handlers snapshots the list so a handler may unsubscribe mid-dispatch.
func (g *Gateway) handlers(kind host.HookKind) []any {
	var out []any
	for _, s := range g.subs {
		if s.kind == kind {
			out = append(out, s.fn)
		}
	}
	return out
}

func (g *Gateway) resolve(sessionID int) *model.Identity {
	if g.resolver == nil {
		return nil
	}
	id, ok := g.resolver.Resolve(sessionID)
	if !ok {
		return nil
	}
	return &id
}

// DispatchAction runs the action handlers for phase and returns the
// (possibly denied) result. During the query phase, dispatch stops at the
// first denial.
func (g *Gateway) DispatchAction(phase host.HookKind, player int, action host.ActionKind, args host.Args, result host.ActionResult) host.ActionResult {
	return *g.RunAction(phase, player, action, args, result).Result
}

// RunAction is DispatchAction returning the whole event, including any
// arguments a handler replaced.
func (g *Gateway) RunAction(phase host.HookKind, player int, action host.ActionKind, args host.Args, result host.ActionResult) *ActionEvent {
	if args == nil {
		args = host.Args{}
	}
	ev := &ActionEvent{
		Phase:  phase,
		Player: player,
		Action: action,
		Args:   args,
		Result: &result,
	}
	ev.Actor = g.resolve(player)
	for _, h := range g.handlers(phase) {
		if ev.stale {
			ev.Actor = g.resolve(player)
			ev.stale = false
		}
		h.(ActionHandler)(ev)
		if ev.denied {
			break
		}
	}
	return ev
}

func (g *Gateway) DispatchInterval(kind host.HookKind) {
	for _, h := range g.handlers(kind) {
		h.(IntervalHandler)()
	}
}

func (g *Gateway) DispatchPlayer(kind host.HookKind, player int) {
	for _, h := range g.handlers(kind) {
		h.(PlayerHandler)(&PlayerEvent{Player: player, Actor: g.resolve(player)})
	}
}

func (g *Gateway) DispatchChat(player int, message string) {
	for _, h := range g.handlers(host.HookNetworkChat) {
		h.(ChatHandler)(&ChatEvent{Player: player, Actor: g.resolve(player), Message: message})
	}
}
