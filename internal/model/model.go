// Package model holds the value types shared by the player, ride and economy
// managers.
package model

import "time"

// Identity is a durable player record joined with live session data.
type Identity struct {
	// Key is the player's public key hash; it survives reconnects.
	Key       string
	Name      string
	SessionID int
	Group     int
	Rides     []int
	Spent     int64
	LastSeen  *time.Time
}

func (i Identity) Owns(rideID int) bool {
	for _, id := range i.Rides {
		if id == rideID {
			return true
		}
	}
	return false
}

// Attraction is a ride record joined with live world data.
type Attraction struct {
	ID             int
	Owner          string
	PreviousProfit int64

	Name        string
	TotalProfit int64
	Type        int
}

// Delta is the profit made since the last checkpoint.
func (a Attraction) Delta() int64 { return a.TotalProfit - a.PreviousProfit }

// Audit entry kinds.
const (
	AuditDeny      = "deny"
	AuditSpend     = "spend"
	AuditRefill    = "refill"
	AuditCreate    = "create"
	AuditDemolish  = "demolish"
	AuditStandings = "standings"
)

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Time    time.Time `json:"ts"`
	Kind    string    `json:"kind"`
	Action  string    `json:"action,omitempty"`
	Player  int       `json:"player"`
	Key     string    `json:"key,omitempty"`
	Ride    *int      `json:"ride,omitempty"`
	Cost    int64     `json:"cost,omitempty"`
	Balance int64     `json:"balance,omitempty"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Auditor records audit entries. Implementations must not block the caller.
type Auditor interface {
	Record(e AuditEntry)
}

// NopAuditor discards entries.
type NopAuditor struct{}

func (NopAuditor) Record(AuditEntry) {}
