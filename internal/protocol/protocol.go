// Package protocol defines the JSON messages exchanged with the host shim
// over the bridge websocket.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeEvent   = "EVENT"
	TypeResult  = "RESULT"
	TypeCall    = "CALL"
	TypeReply   = "REPLY"
	TypeMessage = "MESSAGE"
	TypeError   = "ERROR"
)

// Host query methods the server may CALL.
const (
	MethodPlayers       = "players"
	MethodGroup         = "group"
	MethodRide          = "ride"
	MethodRides         = "rides"
	MethodTile          = "tile"
	MethodPark          = "park"
	MethodDate          = "date"
	MethodExecuteAction = "execute_action"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
