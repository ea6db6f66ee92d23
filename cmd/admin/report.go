package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"parkrivals.io/internal/economy"
	"parkrivals.io/internal/model"
	"parkrivals.io/internal/persistence/auditlog"
	"parkrivals.io/internal/persistence/snapshot"
	"parkrivals.io/internal/players"
	"parkrivals.io/internal/rides"
)

func playersCmd(args []string, out io.Writer) error {
	fs := newFlagSet("players")
	sf := addStoreFlags(fs)
	asJSON := fs.Bool("json", false, "print one JSON object per player")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, st, err := sf.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ids, err := players.Stored(openNamespace(s, st))
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		for _, id := range ids {
			if err := enc.Encode(id); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tRIDES\tSPENT\tLAST SEEN")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", id.Key, id.Name, len(id.Rides), economy.FormatMoney(id.Spent), lastSeen(id.LastSeen))
	}
	return tw.Flush()
}

func lastSeen(t *time.Time) string {
	if t == nil {
		return "online"
	}
	return humanize.Time(*t)
}

func ridesCmd(args []string, out io.Writer) error {
	fs := newFlagSet("rides")
	sf := addStoreFlags(fs)
	owner := fs.String("owner", "", "only rides owned by this player key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, st, err := sf.open()
	if err != nil {
		return err
	}
	defer s.Close()

	ns := openNamespace(s, st)
	all, err := rides.Stored(ns)
	if err != nil {
		return err
	}
	ids, err := players.Stored(ns)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id.Key] = id.Name
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RIDE\tOWNER\tNAME\tCHECKPOINT")
	for _, a := range all {
		if *owner != "" && a.Owner != *owner {
			continue
		}
		name := names[a.Owner]
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, a.Owner, name, economy.FormatMoney(a.PreviousProfit))
	}
	return tw.Flush()
}

type auditFilter struct {
	kind  string
	key   string
	since time.Time
}

func (f auditFilter) match(e model.AuditEntry) bool {
	if f.kind != "" && e.Kind != f.kind {
		return false
	}
	if f.key != "" && e.Key != f.key {
		return false
	}
	return f.since.IsZero() || !e.Time.Before(f.since)
}

func auditCmd(args []string, out io.Writer) error {
	fs := newFlagSet("audit")
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "only entries of this kind (deny|spend|refill|create|demolish|standings)")
	key := fs.String("key", "", "only entries for this player key")
	since := fs.Duration("since", 0, "only entries newer than this (e.g. 24h)")
	tail := fs.Int("tail", 0, "print only the last n matching entries")
	asJSON := fs.Bool("json", false, "print raw JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := auditFilter{kind: *kind, key: *key}
	if *since > 0 {
		f.since = time.Now().Add(-*since)
	}

	segs, err := auditlog.Segments(filepath.Join(*dataDir, "audit"))
	if err != nil {
		return err
	}
	var matched []model.AuditEntry
	for _, seg := range segs {
		entries, err := auditlog.ReadAll(seg)
		if err != nil {
			// The open segment may end mid-frame while the server runs.
			fmt.Fprintf(os.Stderr, "warn: %s: %v\n", filepath.Base(seg), err)
		}
		for _, e := range entries {
			if f.match(e) {
				matched = append(matched, e)
			}
		}
	}
	if *tail > 0 && len(matched) > *tail {
		matched = matched[len(matched)-*tail:]
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		for _, e := range matched {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tACTION\tKEY\tRIDE\tAMOUNT\tDETAIL")
	for _, e := range matched {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.UTC().Format(time.RFC3339), e.Kind, dash(e.Action), dash(e.Key),
			rideCol(e.Ride), amountCol(e), dash(detailCol(e)))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func rideCol(r *int) string {
	if r == nil {
		return "-"
	}
	return strconv.Itoa(*r)
}

func amountCol(e model.AuditEntry) string {
	switch {
	case e.Cost != 0:
		return economy.FormatMoney(e.Cost)
	case e.Balance != 0:
		return economy.FormatMoney(e.Balance)
	}
	return "-"
}

func detailCol(e model.AuditEntry) string {
	return strings.TrimSpace(strings.Join([]string{e.Title, e.Message}, " "))
}

func snapshotsCmd(args []string, out io.Writer) error {
	fs := newFlagSet("snapshots")
	dataDir := fs.String("data", "./data", "runtime data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths, err := snapshot.List(filepath.Join(*dataDir, "snapshots"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSCOPE\tENTRIES\tSIZE\tCREATED")
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t?\t?\t%v\n", filepath.Base(p), err)
			continue
		}
		size := "?"
		if fi, err := os.Stat(p); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", filepath.Base(p), h.Scope,
			humanize.Comma(int64(h.Entries)), size, humanize.Time(h.CreatedAt))
	}
	return tw.Flush()
}
