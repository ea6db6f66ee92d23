package main

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"parkrivals.io/internal/persistence/snapshot"
)

func snapshotCmd(args []string, out io.Writer) error {
	fs := newFlagSet("snapshot")
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	local := fs.Bool("local", false, "capture straight from the store instead of asking the server")
	dataDir := fs.String("data", "./data", "runtime data directory (with -local)")
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *local {
		return localSnapshot(sf, *dataDir, out)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, err := http.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// localSnapshot is for a stopped server; a running one should be asked over
// HTTP so the file lands in its own rotation.
func localSnapshot(sf *storeFlags, dataDir string, out io.Writer) error {
	s, st, err := sf.open()
	if err != nil {
		return err
	}
	defer s.Close()
	path, err := snapshot.NewSnapshotter(snapshot.Options{
		Store: s,
		Scope: st.Scope,
		Dir:   filepath.Join(dataDir, "snapshots"),
	}).Once()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}
