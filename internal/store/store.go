// Package store is the persistent key-value layer the managers keep their
// records in. Values are JSON documents addressed by flat string keys.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// ErrCorrupt wraps a record that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt record")

// Store is a synchronous key-value backend.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Has(key string) (bool, error)
	Delete(key string) error
	// GetAll returns every entry whose key starts with prefix.
	GetAll(prefix string) (map[string][]byte, error)
}

// Namespace scopes a Store to one plugin name and splits it into collections.
// A record lives at "<namespace>_<collection>_<key>".
type Namespace struct {
	s      Store
	name   string
	logger *log.Logger
}

func NewNamespace(s Store, name string, logger *log.Logger) *Namespace {
	if logger == nil {
		logger = log.New(log.Writer(), "[store] ", log.LstdFlags)
	}
	return &Namespace{s: s, name: name, logger: logger}
}

func (n *Namespace) Name() string  { return n.name }
func (n *Namespace) Backend() Store { return n.s }

func (n *Namespace) Key(coll, key string) string {
	return n.name + "_" + coll + "_" + key
}

func (n *Namespace) prefix(coll string) string {
	return n.name + "_" + coll + "_"
}

// Get decodes the record into v. It reports false when the record is absent.
func (n *Namespace) Get(coll, key string, v any) (bool, error) {
	full := n.Key(coll, key)
	b, ok, err := n.s.Get(full)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", full, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, full, err)
	}
	return true, nil
}

func (n *Namespace) Set(coll, key string, v any) error {
	full := n.Key(coll, key)
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", full, err)
	}
	if err := n.s.Set(full, b); err != nil {
		return fmt.Errorf("set %s: %w", full, err)
	}
	return nil
}

func (n *Namespace) Has(coll, key string) (bool, error) {
	return n.s.Has(n.Key(coll, key))
}

func (n *Namespace) Delete(coll, key string) error {
	return n.s.Delete(n.Key(coll, key))
}

// Keys lists the record keys of a collection in sorted order.
func (n *Namespace) Keys(coll string) ([]string, error) {
	all, err := n.All(coll)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// All returns the raw records of a collection keyed by record key.
func (n *Namespace) All(coll string) (map[string]json.RawMessage, error) {
	p := n.prefix(coll)
	raw, err := n.s.GetAll(p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll, err)
	}
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		out[strings.TrimPrefix(k, p)] = json.RawMessage(v)
	}
	return out, nil
}

// Load is Get for event handlers: a backend failure is logged and reported as
// a miss, a corrupt record panics.
func (n *Namespace) Load(coll, key string, v any) bool {
	ok, err := n.Get(coll, key, v)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			panic(err)
		}
		n.logger.Printf("warn: store load failed: %v", err)
		return false
	}
	return ok
}

// Save is Set for event handlers: failures are logged.
func (n *Namespace) Save(coll, key string, v any) bool {
	if err := n.Set(coll, key, v); err != nil {
		n.logger.Printf("warn: store save failed: %v", err)
		return false
	}
	return true
}

// Remove is Delete for event handlers: failures are logged.
func (n *Namespace) Remove(coll, key string) {
	if err := n.Delete(coll, key); err != nil {
		n.logger.Printf("warn: store delete failed: coll=%s key=%s err=%v", coll, key, err)
	}
}
