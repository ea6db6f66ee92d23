// Package commands parses "!" and "/" prefixed chat commands.
package commands

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Parse strips the command prefix. ok is false for ordinary chat.
func Parse(text string) (string, bool) {
	if text == "" || (text[0] != '!' && text[0] != '/') {
		return "", false
	}
	cmd := strings.TrimSpace(text[1:])
	return cmd, cmd != ""
}

// Match reports whether cmd is one of names, alone or followed by arguments,
// and returns the trimmed arguments.
func Match(cmd string, names ...string) (string, bool) {
	for _, n := range names {
		if cmd == n {
			return "", true
		}
		if strings.HasPrefix(cmd, n+" ") {
			return strings.TrimSpace(cmd[len(n):]), true
		}
	}
	return "", false
}

// Limiter is a per-player token bucket for command replies.
type Limiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	m     map[int]*rate.Limiter
}

func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		m:     map[int]*rate.Limiter{},
	}
}

func (l *Limiter) Allow(player int) bool {
	return l.AllowAt(player, time.Now())
}

func (l *Limiter) AllowAt(player int, now time.Time) bool {
	l.mu.Lock()
	lim, ok := l.m[player]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.m[player] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Forget drops a player's bucket, e.g. on leave.
func (l *Limiter) Forget(player int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, player)
}
