package rides

import (
	"io"
	"log"
	"testing"
	"time"

	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/host/hosttest"
	"parkrivals.io/internal/messenger"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/players"
	"parkrivals.io/internal/store"
	"parkrivals.io/internal/store/memory"
)

type fixture struct {
	w  *hosttest.World
	g  *gateway.Gateway
	p  *players.Directory
	r  *Registry
	ns *store.Namespace
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	lg := log.New(io.Discard, "", 0)
	w := hosttest.New()
	w.AddGroup(host.Group{ID: 1, Permissions: []string{"chat"}})
	ns := store.NewNamespace(memory.New(), "competitive", lg)
	p := players.New(players.Options{Sessions: w, Store: ns, Messenger: messenger.New(w, w, time.Second), Logger: lg})
	r := New(Options{World: w, Store: ns, Players: p, Logger: lg, RenameMaxAttempts: maxAttempts})
	g := gateway.New(p)
	p.Register(g)
	r.Register(g)
	return &fixture{w: w, g: g, p: p, r: r, ns: ns}
}

func (f *fixture) join(id int, name, key string) {
	f.w.AddPlayer(host.Player{ID: id, Name: name, Group: 1, PublicKeyHash: key})
	f.g.DispatchPlayer(host.HookNetworkJoin, id)
}

func (f *fixture) identity(t *testing.T, id int) model.Identity {
	t.Helper()
	ident, ok := f.p.Resolve(id)
	if !ok {
		t.Fatalf("player %d unresolved", id)
	}
	return ident
}

func TestCreateGetDemolishRoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 5, Name: "Merry-Go-Round 1", Type: 3, TotalProfit: 700})

	f.r.Create(f.identity(t, 2), 5)
	a, ok := f.r.Get(5)
	if !ok || a.Owner != "ka" || a.PreviousProfit != 0 || a.TotalProfit != 700 || a.Type != 3 {
		t.Fatalf("Get after create: %+v ok=%v", a, ok)
	}
	if !f.identity(t, 2).Owns(5) {
		t.Fatalf("owner set missing ride")
	}

	f.r.Demolish(5)
	if _, ok := f.r.Get(5); ok {
		t.Fatalf("Get after demolish")
	}
	if f.identity(t, 2).Owns(5) {
		t.Fatalf("owner still claims ride")
	}
	f.r.Demolish(5) // no-op
}

func TestGetRequiresBothSides(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 1, Name: "Slide 1"})
	if _, ok := f.r.Get(1); ok {
		t.Fatalf("live ride without record resolved")
	}
	f.r.Create(f.identity(t, 2), 1)
	f.w.RemoveRide(1)
	if _, ok := f.r.Get(1); ok {
		t.Fatalf("record without live ride resolved")
	}
	if owner, ok := f.r.OwnerOf(1); !ok || owner != "ka" {
		t.Fatalf("OwnerOf: %q %v", owner, ok)
	}
	if _, ok := f.r.Get(-1); ok {
		t.Fatalf("negative id resolved")
	}
}

func TestExecuteCreateNamesRideAfterOwner(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 1, Name: "ann Ride 1"})
	f.w.PutRide(host.Ride{ID: 2, Name: "ann Ride 2"})

	id := 3
	f.w.PutRide(host.Ride{ID: id, Name: "Ride 12"})
	f.g.DispatchAction(host.HookActionExecute, 2, host.ActionRideCreate, host.Args{}, host.ActionResult{Ride: &id})
	f.w.Flush()

	live, _ := f.w.Ride(id)
	if live.Name != "ann Ride 3" {
		t.Fatalf("name: %q", live.Name)
	}
	if got := len(f.w.ActionsOf(host.ActionRideSetName)); got != 3 {
		t.Fatalf("rename attempts: %d", got)
	}
	if owner, _ := f.r.OwnerOf(id); owner != "ka" {
		t.Fatalf("owner: %q", owner)
	}
}

func TestRenameGivesUpAtCap(t *testing.T) {
	f := newFixture(t, 5)
	f.join(2, "ann", "ka")
	f.w.Handle(host.ActionRideSetName, func(*hosttest.World, host.Args) host.ActionResult {
		return host.ActionResult{Error: ErrNameTaken}
	})
	f.w.PutRide(host.Ride{ID: 1, Name: "Ride 1"})
	f.r.Create(f.identity(t, 2), 1)
	f.w.Flush()
	calls := f.w.ActionsOf(host.ActionRideSetName)
	if len(calls) != 5 {
		t.Fatalf("attempts: %d", len(calls))
	}
	if calls[4].Args["name"] != "ann Ride 5" {
		t.Fatalf("last attempt: %v", calls[4].Args["name"])
	}
}

func TestRenameStopsOnOtherErrors(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.Handle(host.ActionRideSetName, func(*hosttest.World, host.Args) host.ActionResult {
		return host.ActionResult{Error: 3}
	})
	f.w.PutRide(host.Ride{ID: 1, Name: "Ride 1"})
	f.r.Create(f.identity(t, 2), 1)
	f.w.Flush()
	if got := len(f.w.ActionsOf(host.ActionRideSetName)); got != 1 {
		t.Fatalf("attempts: %d", got)
	}
}

func TestExecuteIgnoresSentinelsAndFailures(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	id := 4
	f.w.PutRide(host.Ride{ID: id, Name: "Ride 1"})
	for _, player := range []int{host.ServerPlayer, host.NoPlayer} {
		f.g.DispatchAction(host.HookActionExecute, player, host.ActionRideCreate, nil, host.ActionResult{Ride: &id})
	}
	f.g.DispatchAction(host.HookActionExecute, 2, host.ActionRideCreate, nil, host.ActionResult{Error: 1, Ride: &id})
	if _, ok := f.r.OwnerOf(id); ok {
		t.Fatalf("record created for sentinel or failed action")
	}
}

func TestExecuteDemolish(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 8, Name: "Ride 1"})
	f.r.Create(f.identity(t, 2), 8)
	f.w.RemoveRide(8)
	f.g.DispatchAction(host.HookActionExecute, 2, host.ActionRideDemolish, host.Args{"ride": float64(8)}, host.ActionResult{})
	if _, ok := f.r.OwnerOf(8); ok {
		t.Fatalf("record survived demolish")
	}
	if f.identity(t, 2).Owns(8) {
		t.Fatalf("claim survived demolish")
	}
}

func TestUpdateCheckpointAndAll(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 1, Name: "A", TotalProfit: 50})
	f.w.PutRide(host.Ride{ID: 2, Name: "B"})
	f.r.Create(f.identity(t, 2), 1)
	if !f.r.UpdateCheckpoint(1, 50) {
		t.Fatalf("UpdateCheckpoint failed")
	}
	if f.r.UpdateCheckpoint(2, 1) {
		t.Fatalf("checkpoint stored for unrecorded ride")
	}
	all := f.r.All()
	if len(all) != 1 || all[0].PreviousProfit != 50 || all[0].Delta() != 0 {
		t.Fatalf("All: %+v", all)
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("ann", "Merry-Go-Round 12"); got != "ann Merry-Go-Round" {
		t.Fatalf("BaseName: %q", got)
	}
}

func TestStoredReadsRecordsWithoutWorld(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.w.PutRide(host.Ride{ID: 9, Name: "Maze 1", Type: 3})
	f.w.PutRide(host.Ride{ID: 4, Name: "Maze 2", Type: 3})
	f.r.Create(f.identity(t, 2), 9)
	f.r.Create(f.identity(t, 2), 4)
	f.w.RemoveRide(9)

	got, err := Stored(f.ns)
	if err != nil {
		t.Fatalf("Stored: %v", err)
	}
	if len(got) != 2 || got[0].ID != 4 || got[1].ID != 9 || got[1].Owner != "ka" {
		t.Fatalf("stored: %+v", got)
	}
}

func TestServerDemolishFreesReusedID(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.join(3, "bob", "kb")
	id := 5

	f.w.PutRide(host.Ride{ID: id, Name: "Maze 1"})
	f.g.DispatchAction(host.HookActionExecute, 2, host.ActionRideCreate, host.Args{}, host.ActionResult{Ride: &id})
	f.g.DispatchAction(host.HookActionExecute, host.ServerPlayer, host.ActionRideDemolish, host.Args{"ride": id}, host.ActionResult{})
	f.w.RemoveRide(id)
	if _, ok := f.r.OwnerOf(id); ok {
		t.Fatalf("record survived a server demolish")
	}
	if f.identity(t, 2).Owns(id) {
		t.Fatalf("ann kept the claim after a server demolish")
	}

	f.w.PutRide(host.Ride{ID: id, Name: "Maze 1"})
	f.g.DispatchAction(host.HookActionExecute, 3, host.ActionRideCreate, host.Args{}, host.ActionResult{Ride: &id})
	if owner, _ := f.r.OwnerOf(id); owner != "kb" {
		t.Fatalf("record owner: %q", owner)
	}
	if f.identity(t, 2).Owns(id) || !f.identity(t, 3).Owns(id) {
		t.Fatalf("claims: ann=%v bob=%v", f.identity(t, 2).Owns(id), f.identity(t, 3).Owns(id))
	}
}

func TestCreateOverUnseenDemolishMovesClaim(t *testing.T) {
	f := newFixture(t, 0)
	f.join(2, "ann", "ka")
	f.join(3, "bob", "kb")
	f.w.PutRide(host.Ride{ID: 6, Name: "Maze 1"})

	f.r.Create(f.identity(t, 2), 6)
	f.r.Create(f.identity(t, 3), 6)
	if f.identity(t, 2).Owns(6) {
		t.Fatalf("previous owner kept a reused id")
	}
	if owner, _ := f.r.OwnerOf(6); owner != "kb" || !f.identity(t, 3).Owns(6) {
		t.Fatalf("new owner not recorded: %q", owner)
	}

	// Re-creating for the same owner keeps the claim.
	f.r.Create(f.identity(t, 3), 6)
	if !f.identity(t, 3).Owns(6) {
		t.Fatalf("same-owner create dropped the claim")
	}
}
