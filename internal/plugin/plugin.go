// Package plugin wires the competitive rules together. New constructs every
// manager exactly once and registers their hooks in dependency order.
package plugin

import (
	"log"
	"time"

	"parkrivals.io/internal/cheats"
	"parkrivals.io/internal/commands"
	"parkrivals.io/internal/config"
	"parkrivals.io/internal/economy"
	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/messenger"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/permission"
	"parkrivals.io/internal/players"
	"parkrivals.io/internal/rides"
	"parkrivals.io/internal/store"
)

type Options struct {
	Port    host.Port
	Store   store.Store
	Config  config.Config
	Logger  *log.Logger
	Audit   model.Auditor
	Metrics *metrics.Registry
	// Now is the player directory's clock; nil means time.Now.
	Now func() time.Time
}

type Plugin struct {
	Gateway    *gateway.Gateway
	Store      *store.Namespace
	Messenger  *messenger.Messenger
	Players    *players.Directory
	Rides      *rides.Registry
	Permission *permission.Engine
	Economy    *economy.Reconciler
	Cheats     *cheats.Cheater
	Limiter    *commands.Limiter

	logger  *log.Logger
	metrics *metrics.Registry
}

func New(opts Options) *Plugin {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	audit := opts.Audit
	if audit == nil {
		audit = model.NopAuditor{}
	}

	ns := store.NewNamespace(opts.Store, cfg.Storage.Namespace, logger)
	msg := messenger.New(opts.Port, opts.Port, cfg.ConnectDelay())
	dir := players.New(players.Options{
		Sessions:        opts.Port,
		Store:           ns,
		Messenger:       msg,
		AdminPermission: cfg.Permission.AdminPermission,
		Logger:          logger,
		Now:             opts.Now,
	})
	reg := rides.New(rides.Options{
		World:             opts.Port,
		Store:             ns,
		Players:           dir,
		Logger:            logger,
		Audit:             audit,
		RenameMaxAttempts: cfg.Rides.RenameMaxAttempts,
	})
	perm := permission.New(permission.Options{
		World:             opts.Port,
		Players:           dir,
		Rides:             reg,
		Messenger:         msg,
		RestrictedActions: cfg.Permission.RestrictedActions,
		Logger:            logger,
		Audit:             audit,
		Metrics:           opts.Metrics,
	})
	ch := cheats.New(opts.Port, cfg.Cheats, logger)
	lim := commands.NewLimiter(cfg.Commands.RatePerMinute, cfg.Commands.Burst)
	eco := economy.New(economy.Options{
		World:             opts.Port,
		Players:           dir,
		Rides:             reg,
		Messenger:         msg,
		Cheats:            ch,
		Limiter:           lim,
		Logger:            logger,
		Audit:             audit,
		Metrics:           opts.Metrics,
		InitialBalance:    cfg.Economy.InitialBalance,
		ClampRideType:     cfg.Economy.ClampRideType,
		BuildActions:      cfg.Economy.BuildActions,
		BalanceReplyDelay: cfg.BalanceReplyDelay(),
	})

	g := gateway.New(dir)
	dir.Register(g)
	reg.Register(g)
	// Permission before economy: a denied action is never charged.
	perm.Register(g)
	eco.Register(g)
	ch.Register(g)
	g.Subscribe(host.HookNetworkLeave, func(e *gateway.PlayerEvent) { lim.Forget(e.Player) })

	return &Plugin{
		Gateway:    g,
		Store:      ns,
		Messenger:  msg,
		Players:    dir,
		Rides:      reg,
		Permission: perm,
		Economy:    eco,
		Cheats:     ch,
		Limiter:    lim,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Start applies the competitive cheats and adopts the sessions already
// connected. It runs on the event loop each time a host attaches.
func (p *Plugin) Start() {
	p.Cheats.EnableCompetitive()
	n := p.Players.Sync()
	p.metrics.SetOnline(n)
	p.logger.Printf("plugin started: namespace=%s online=%d", p.Store.Name(), n)
}

// Stop zeroes the online gauge when the host goes away. The next Start
// rebuilds the session set.
func (p *Plugin) Stop() {
	p.metrics.SetOnline(0)
	p.logger.Printf("plugin stopped: namespace=%s", p.Store.Name())
}
