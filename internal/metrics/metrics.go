// Package metrics exposes rules-engine counters for Prometheus.
//
// A nil *Registry is valid and records nothing, so managers built in tests do
// not need one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes.
const (
	OutcomeAllow          = "allow"
	OutcomeDenyRestricted = "deny_restricted"
	OutcomeDenyNotOwned   = "deny_not_owned"
	OutcomeDenyNoPlayer   = "deny_no_player"
	OutcomeDenyCash       = "deny_cash"
)

type Registry struct {
	reg *prometheus.Registry

	decisions    *prometheus.CounterVec
	refills      *prometheus.CounterVec
	spend        prometheus.Counter
	bridgeEvents *prometheus.CounterVec
	online       prometheus.Gauge
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkrivals_decisions_total",
			Help: "Action query decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		refills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkrivals_treasury_refills_total",
			Help: "Park treasury set-money cheats issued, by reason.",
		}, []string{"reason"}),
		spend: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkrivals_spend_total",
			Help: "Money charged to player ledgers, in host units.",
		}),
		bridgeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkrivals_bridge_events_total",
			Help: "Hook events received from the host, by hook.",
		}, []string{"hook"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkrivals_online_players",
			Help: "Players with a live session.",
		}),
	}
	r.reg.MustRegister(
		r.decisions, r.refills, r.spend, r.bridgeEvents, r.online,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) Decision(action, outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(action, outcome).Inc()
}

func (r *Registry) Refill(reason string) {
	if r == nil {
		return
	}
	r.refills.WithLabelValues(reason).Inc()
}

func (r *Registry) Spend(amount int64) {
	if r == nil || amount <= 0 {
		return
	}
	r.spend.Add(float64(amount))
}

func (r *Registry) BridgeEvent(hook string) {
	if r == nil {
		return
	}
	r.bridgeEvents.WithLabelValues(hook).Inc()
}

func (r *Registry) SetOnline(n int) {
	if r == nil {
		return
	}
	r.online.Set(float64(n))
}

// GaugeFunc exposes fn as a gauge read at scrape time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	if r == nil {
		return
	}
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// CounterFunc exposes fn, which must be monotonic, as a counter.
func (r *Registry) CounterFunc(name, help string, fn func() float64) {
	if r == nil {
		return
	}
	r.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, fn))
}
