// Package cheats issues host cheat actions.
package cheats

import (
	"log"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
)

// Cheat type ids as numbered by the host.
const (
	DisableAllBreakdowns  = 9
	DisableVandalism      = 13
	DisableLittering      = 14
	SetMoney              = 17
	ClearLoan             = 18
	SetGrassLength        = 23
	DisablePlantAging     = 25
	HaveFun               = 38
	SetForcedParkRating   = 39
	DisableRideValueAging = 43
	IgnoreResearchStatus  = 44
)

type Cheater struct {
	world         host.World
	logger        *log.Logger
	onStart       []config.CheatSpec
	grassInterval uint64
}

func New(w host.World, cfg config.Cheats, logger *log.Logger) *Cheater {
	if logger == nil {
		logger = log.Default()
	}
	c := &Cheater{world: w, logger: logger, onStart: cfg.OnStart}
	if cfg.GrassIntervalTicks > 0 {
		c.grassInterval = uint64(cfg.GrassIntervalTicks)
	}
	return c
}

func (c *Cheater) Set(kind, param1, param2 int) {
	c.world.ExecuteAction(host.ActionCheatSet, host.Args{
		"type":   kind,
		"param1": param1,
		"param2": param2,
	}, nil)
}

// SetMoney sets the park treasury to v.
func (c *Cheater) SetMoney(v int64) {
	c.world.ExecuteAction(host.ActionCheatSet, host.Args{
		"type":   SetMoney,
		"param1": v,
		"param2": 0,
	}, nil)
}

// EnableCompetitive applies the configured start-up cheats.
func (c *Cheater) EnableCompetitive() {
	for _, s := range c.onStart {
		c.Set(s.Type, s.P1(), s.Param2)
	}
	c.logger.Printf("cheats enabled: count=%d", len(c.onStart))
}

// Register resets grass length every grassInterval ticks.
func (c *Cheater) Register(g *gateway.Gateway) {
	if c.grassInterval == 0 {
		return
	}
	g.Subscribe(host.HookIntervalTick, func() {
		if c.world.Date().TicksElapsed%c.grassInterval == 0 {
			c.Set(SetGrassLength, 1, 0)
		}
	})
}
