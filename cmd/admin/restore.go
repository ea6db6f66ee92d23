package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"parkrivals.io/internal/persistence/snapshot"
)

func restoreCmd(args []string, out io.Writer) error {
	fs := newFlagSet("restore")
	sf := addStoreFlags(fs)
	dataDir := fs.String("data", "./data", "runtime data directory")
	snapPath := fs.String("snapshot", "", "snapshot file (defaults to the latest under -data)")
	prune := fs.Bool("prune", false, "delete keys the snapshot does not contain")
	force := fs.Bool("force", false, "restore even when the snapshot scope differs from the store scope")
	dryRun := fs.Bool("dry-run", false, "print what would be restored and stop")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *snapPath
	if path == "" {
		latest, ok, err := snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no snapshots under %s", filepath.Join(*dataDir, "snapshots"))
		}
		path = latest
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	st, err := sf.storage()
	if err != nil {
		return err
	}
	if snap.Header.Scope != st.Scope && !*force {
		return fmt.Errorf("snapshot scope %q does not match store scope %q (use -force)", snap.Header.Scope, st.Scope)
	}
	fmt.Fprintf(out, "snapshot %s: scope=%s entries=%s taken %s\n", filepath.Base(path),
		snap.Header.Scope, humanize.Comma(int64(snap.Header.Entries)), humanize.Time(snap.Header.CreatedAt))
	if *dryRun {
		return nil
	}

	s, _, err := sf.open()
	if err != nil {
		return err
	}
	defer s.Close()
	written, deleted, err := snapshot.Restore(s, snap, *prune)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "restored %d keys, deleted %d\n", written, deleted)
	return nil
}
