package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"parkrivals.io/internal/host"
	"parkrivals.io/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v so the schema sees exactly what goes on the wire.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	ride := 3
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, HostName: "park-1", PluginVersion: "0.3.0"}},
		{"welcome.schema.json", protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "s1", Hooks: []string{"action.query", "network.chat"}}},
		{"event.schema.json", protocol.EventMsg{
			Type: protocol.TypeEvent, ID: "e1", Hook: "action.query", Player: 2, Action: "trackremove",
			Args: map[string]any{"x": 64, "y": 32, "z": 14}, Result: &host.ActionResult{Cost: 150},
		}},
		{"event.schema.json", protocol.EventMsg{Type: protocol.TypeEvent, Hook: "network.chat", Player: 2, Message: "!bal"}},
		{"event.schema.json", protocol.EventMsg{Type: protocol.TypeEvent, Hook: "interval.day", Player: -1}},
		{"result.schema.json", protocol.ResultMsg{Type: protocol.TypeResult, ID: "e1", Result: host.ActionResult{Error: 1, ErrorTitle: "NOT OWNED", ErrorMessage: "That ride belongs to another player."}}},
		{"result.schema.json", protocol.ResultMsg{Type: protocol.TypeResult, ID: "e2", Result: host.ActionResult{Ride: &ride}}},
		{"call.schema.json", protocol.CallMsg{Type: protocol.TypeCall, ID: "c1", Method: protocol.MethodTile, Params: json.RawMessage(`{"x":1,"y":2}`)}},
		{"call.schema.json", protocol.CallMsg{Type: protocol.TypeCall, ID: "c2", Method: protocol.MethodPlayers}},
		{"reply.schema.json", protocol.ReplyMsg{Type: protocol.TypeReply, ID: "c1", Result: json.RawMessage(`null`)}},
		{"reply.schema.json", protocol.ReplyMsg{Type: protocol.TypeReply, ID: "c1", Error: &protocol.ErrorBody{Code: protocol.ErrNotFound, Message: "no tile"}}},
		{"message.schema.json", protocol.ChatMsg{Type: protocol.TypeMessage, Text: "{YELLOW}hi", Players: []int{2}}},
		{"message.schema.json", protocol.ChatMsg{Type: protocol.TypeMessage, Text: "broadcast"}},
	}
	for _, tc := range cases {
		s := compile(t, tc.schema)
		if err := s.Validate(asJSON(t, tc.msg)); err != nil {
			t.Fatalf("%s: %v", tc.schema, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	cases := []struct {
		schema string
		raw    string
	}{
		{"hello.schema.json", `{"type":"HELLO","protocol_version":"1.0"}`},
		{"event.schema.json", `{"type":"EVENT","hook":"action.query","player":2}`},
		{"event.schema.json", `{"type":"EVENT","hook":"map.save","player":2}`},
		{"event.schema.json", `{"type":"EVENT","hook":"network.chat","player":2}`},
		{"call.schema.json", `{"type":"CALL","id":"c1","method":"teleport"}`},
		{"reply.schema.json", `{"type":"REPLY","id":"c1","error":{"code":"nope","message":"x"}}`},
	}
	for _, tc := range cases {
		var v any
		if err := json.Unmarshal([]byte(tc.raw), &v); err != nil {
			t.Fatalf("bad fixture: %v", err)
		}
		if err := compile(t, tc.schema).Validate(v); err == nil {
			t.Fatalf("%s accepted %s", tc.schema, tc.raw)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := protocol.DecodeBase([]byte(`{"type":"EVENT","protocol_version":"1.0","hook":"interval.tick"}`))
	if err != nil || b.Type != protocol.TypeEvent || b.ProtocolVersion != protocol.Version {
		t.Fatalf("DecodeBase: %+v %v", b, err)
	}
}
