// Package messenger delivers chat lines through the host, immediately or after
// a delay.
package messenger

import (
	"time"

	"parkrivals.io/internal/host"
)

// Chat color tokens understood by the host.
const (
	Red     = "{RED}"
	Yellow  = "{YELLOW}"
	White   = "{WHITE}"
	Green   = "{GREEN}"
	Newline = "{NEWLINE}"
)

type Messenger struct {
	out          host.Messaging
	sched        host.Scheduler
	connectDelay time.Duration
}

func New(out host.Messaging, sched host.Scheduler, connectDelay time.Duration) *Messenger {
	return &Messenger{out: out, sched: sched, connectDelay: connectDelay}
}

func (m *Messenger) Broadcast(msg string) {
	m.out.SendMessage(msg)
}

// Message sends msg privately. With no ids it does nothing.
func (m *Messenger) Message(msg string, players ...int) {
	if len(players) == 0 {
		return
	}
	m.out.SendMessage(msg, players...)
}

// MessageOnConnect waits for the player's client to finish loading the map.
func (m *Messenger) MessageOnConnect(msg string, player int) {
	m.MessageAfter(m.connectDelay, msg, player)
}

func (m *Messenger) MessageAfter(d time.Duration, msg string, player int) {
	m.sched.SetTimeout(d, func() {
		m.out.SendMessage(msg, player)
	})
}
