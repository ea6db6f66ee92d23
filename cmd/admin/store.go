package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"parkrivals.io/internal/config"
	"parkrivals.io/internal/store"
	"parkrivals.io/internal/store/sqlstore"
)

// storeFlags selects the store to inspect: the server's config file, with
// individual fields overridable on the command line.
type storeFlags struct {
	config    *string
	driver    *string
	dsn       *string
	scope     *string
	namespace *string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	return &storeFlags{
		config:    fs.String("config", "./configs/parkrivals.yaml", "server config (missing file means defaults)"),
		driver:    fs.String("driver", "", "store driver override: sqlite|postgres"),
		dsn:       fs.String("dsn", "", "store DSN override"),
		scope:     fs.String("scope", "", "store scope override"),
		namespace: fs.String("namespace", "", "record namespace override"),
	}
}

func (f *storeFlags) storage() (config.Storage, error) {
	path := *f.config
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Storage{}, err
	}
	st := cfg.Storage
	if *f.driver != "" {
		st.Driver = *f.driver
	}
	if *f.dsn != "" {
		st.DSN = *f.dsn
	}
	if *f.scope != "" {
		st.Scope = *f.scope
	}
	if *f.namespace != "" {
		st.Namespace = *f.namespace
	}
	return st, nil
}

func (f *storeFlags) open() (*sqlstore.Store, config.Storage, error) {
	st, err := f.storage()
	if err != nil {
		return nil, st, err
	}
	if st.Driver == "memory" {
		return nil, st, fmt.Errorf("driver memory keeps nothing on disk; pass -driver and -dsn")
	}
	s, err := sqlstore.Open(st.Driver, st.DSN, st.Scope)
	if err != nil {
		return nil, st, err
	}
	return s, st, nil
}

func openNamespace(s store.Store, st config.Storage) *store.Namespace {
	return store.NewNamespace(s, st.Namespace, log.New(os.Stderr, "[store] ", 0))
}
