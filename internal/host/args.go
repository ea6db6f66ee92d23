package host

import (
	"fmt"
	"strconv"
	"strings"
)

// Args is a raw action argument payload as decoded from the host.
type Args map[string]any

type jsonNumber interface {
	Float64() (float64, error)
}

func (a Args) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing %s", key)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case jsonNumber:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be number", key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s must be number", key)
	}
}

func (a Args) Int(key string) (int, error) {
	f, err := a.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// IntOK is Int without the error detail.
func (a Args) IntOK(key string) (int, bool) {
	n, err := a.Int(key)
	return n, err == nil
}

func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Clone returns a shallow copy with room for one extra key.
func (a Args) Clone() Args {
	out := make(Args, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Ride returns the ride id carried by the payload, if any.
func (a Args) Ride() (int, bool) {
	return a.IntOK("ride")
}
