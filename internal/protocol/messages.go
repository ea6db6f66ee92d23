package protocol

import (
	"encoding/json"

	"parkrivals.io/internal/host"
)

// HELLO (host -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	HostName        string `json:"host_name"`
	PluginVersion   string `json:"plugin_version,omitempty"`
	Token           string `json:"token,omitempty"`
}

// WELCOME (server -> host)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	// Hooks lists the hook kinds the host should forward.
	Hooks []string `json:"hooks"`
}

// EVENT (host -> server). Action hooks carry an id and expect a RESULT.
type EventMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version,omitempty"`
	ID              string             `json:"id,omitempty"`
	Hook            string             `json:"hook"`
	Player          int                `json:"player"`
	Action          string             `json:"action,omitempty"`
	Args            map[string]any     `json:"args,omitempty"`
	Result          *host.ActionResult `json:"result,omitempty"`
	Message         string             `json:"message,omitempty"`
}

// RESULT (server -> host)
type ResultMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version,omitempty"`
	ID              string            `json:"id"`
	Result          host.ActionResult `json:"result"`
	// Args is set when the server enriched the action's arguments.
	Args map[string]any `json:"args,omitempty"`
}

// CALL (server -> host)
type CallMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version,omitempty"`
	ID              string          `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// REPLY (host -> server). A null result means "not found".
type ReplyMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version,omitempty"`
	ID              string          `json:"id"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MESSAGE (server -> host). No players means broadcast.
type ChatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Text            string `json:"text"`
	Players         []int  `json:"players,omitempty"`
}

// ERROR (server -> host)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// Call parameters.

type IDParams struct {
	ID int `json:"id"`
}

type TileParams struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ExecuteParams struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

type ParkResult struct {
	Cash int64 `json:"cash"`
}
