package plugin

import (
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/host/hosttest"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/permission"
	"parkrivals.io/internal/store/memory"
)

type recorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *recorder) Record(e model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) kinds() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, e := range r.entries {
		out[e.Kind]++
	}
	return out
}

func TestCompetitiveSession(t *testing.T) {
	w := hosttest.New()
	w.AddGroup(host.Group{ID: 0, Name: "Admin", Permissions: []string{"kick_player"}})
	w.AddGroup(host.Group{ID: 1, Name: "Guest", Permissions: []string{"chat"}})
	w.SetCash(200000)
	audit := &recorder{}

	p := New(Options{
		Port:    w,
		Store:   memory.New(),
		Config:  config.Defaults(),
		Logger:  log.New(io.Discard, "", 0),
		Audit:   audit,
		Metrics: metrics.NewRegistry(),
	})
	p.Start()
	w.Flush()
	if n := len(w.ActionsOf(host.ActionCheatSet)); n != 9 {
		t.Fatalf("start cheats: %d", n)
	}

	w.AddPlayer(host.Player{ID: 2, Name: "Ann", Group: 1, PublicKeyHash: "ann"})
	w.AddPlayer(host.Player{ID: 3, Name: "Bob", Group: 1, PublicKeyHash: "bob"})
	p.Gateway.DispatchPlayer(host.HookNetworkJoin, 2)
	p.Gateway.DispatchPlayer(host.HookNetworkJoin, 3)
	w.Advance(time.Second)
	if got := w.MessagesTo(2); len(got) != 1 || !strings.Contains(got[0], "Welcome, {WHITE}Ann") {
		t.Fatalf("welcome: %v", got)
	}

	// Ann builds a ride.
	res := p.Gateway.DispatchAction(host.HookActionQuery, 2, host.ActionRideCreate, host.Args{"rideType": 1}, host.ActionResult{Cost: 5000})
	if res.Failed() {
		t.Fatalf("ridecreate denied: %+v", res)
	}
	rideID := 1
	w.PutRide(host.Ride{ID: rideID, Name: "Merry-Go-Round 1", Type: 1})
	p.Gateway.DispatchAction(host.HookActionExecute, 2, host.ActionRideCreate, host.Args{"rideType": 1}, host.ActionResult{Ride: &rideID})
	w.Flush()
	if r, _ := w.Ride(rideID); r.Name != "Ann Merry-Go-Round 1" {
		t.Fatalf("ride name: %q", r.Name)
	}
	if owner, ok := p.Rides.OwnerOf(rideID); !ok || owner != "ann" {
		t.Fatalf("owner: %q %v", owner, ok)
	}

	// Bob may not touch it, nor the park settings.
	res = p.Gateway.DispatchAction(host.HookActionQuery, 3, host.ActionRideSetPrice, host.Args{"ride": rideID}, host.ActionResult{})
	if res.ErrorTitle != permission.TitleNotOwned {
		t.Fatalf("not-owned: %+v", res)
	}
	res = p.Gateway.DispatchAction(host.HookActionQuery, 3, host.ActionParkSetLoan, host.Args{}, host.ActionResult{})
	if res.ErrorTitle != permission.TitleRestricted {
		t.Fatalf("restricted: %+v", res)
	}
	if got := w.MessagesTo(3); len(got) != 3 {
		t.Fatalf("bob chat: %v", got)
	}

	// A month of profit.
	w.SetProfit(rideID, 3000)
	w.SetDate(host.Date{Day: 1, Month: 2, Year: 1})
	p.Gateway.DispatchInterval(host.HookIntervalDay)
	b := w.Broadcasts()
	if len(b) == 0 || !strings.Contains(b[len(b)-1], "Ann Merry-Go-Round 1") || !strings.Contains(b[len(b)-1], "$300") {
		t.Fatalf("standings: %v", b)
	}

	ann, _ := p.Players.Resolve(2)
	if bal := p.Economy.Balance(ann); bal != 200000-5000+3000 {
		t.Fatalf("balance: %d", bal)
	}

	k := audit.kinds()
	for kind, want := range map[string]int{
		model.AuditSpend:     1,
		model.AuditCreate:    1,
		model.AuditDeny:      2,
		model.AuditStandings: 1,
	} {
		if k[kind] != want {
			t.Fatalf("audit %s: got %d want %d (%v)", kind, k[kind], want, k)
		}
	}
	if k[model.AuditRefill] == 0 {
		t.Fatalf("build top-up not audited: %v", k)
	}
}

func TestStartAdoptsConnectedSessions(t *testing.T) {
	w := hosttest.New()
	w.AddGroup(host.Group{ID: 1, Permissions: []string{"chat"}})
	w.AddPlayer(host.Player{ID: 5, Name: "Cy", Group: 1, PublicKeyHash: "cy"})

	p := New(Options{Port: w, Store: memory.New(), Config: config.Defaults(), Logger: log.New(io.Discard, "", 0)})
	p.Start()
	if _, ok := p.Players.ResolveKey("cy"); !ok {
		t.Fatalf("connected session not adopted")
	}
	if p.Players.Online() != 1 {
		t.Fatalf("online: %d", p.Players.Online())
	}
	p.Stop()
}
