package bridge

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"parkrivals.io/internal/gateway"
	"parkrivals.io/internal/host"
	"parkrivals.io/internal/metrics"
	"parkrivals.io/internal/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	pongWait         = 60 * time.Second
	pingEvery        = 20 * time.Second
	outQueue         = 256
	// maxBacklog bounds unprocessed events; beyond it the host gets E_BUSY.
	maxBacklog = 4096
)

// conn is one attached host shim.
type conn struct {
	ws     *websocket.Conn
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending map[string]func(protocol.ReplyMsg)
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:      ws,
		out:     make(chan []byte, outQueue),
		closed:  make(chan struct{}),
		pending: map[string]func(protocol.ReplyMsg){},
	}
}

func (c *conn) register(id string, fn func(protocol.ReplyMsg)) {
	c.mu.Lock()
	c.pending[id] = fn
	c.mu.Unlock()
}

func (c *conn) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) deliver(r protocol.ReplyMsg) bool {
	c.mu.Lock()
	fn, ok := c.pending[r.ID]
	delete(c.pending, r.ID)
	c.mu.Unlock()
	if ok {
		fn(r)
	}
	return ok
}

func (c *conn) send(v any, wait time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.out <- b:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-timer.C:
		return ErrBusy
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		c.pending = map[string]func(protocol.ReplyMsg){}
		c.mu.Unlock()
	})
}

type Options struct {
	Host    *Host
	Gateway *gateway.Gateway
	Logger  *log.Logger
	Metrics *metrics.Registry

	// Token, when set, must match HELLO.token.
	Token string

	// OnConnect and OnDisconnect run on the event loop.
	OnConnect    func()
	OnDisconnect func()

	// Online reports the online player count after join and leave events.
	Online func() int
}

type Server struct {
	opts     Options
	log      *log.Logger
	upgrader websocket.Upgrader
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		opts: opts,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// The shim is a local process, not a browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		c, ok := s.handshake(ws)
		if !ok {
			return
		}
		defer func() {
			s.opts.Host.detach(c)
			if s.opts.OnDisconnect != nil {
				s.opts.Host.Post(s.opts.OnDisconnect)
			}
			s.log.Printf("bridge: host disconnected")
		}()

		go s.writeLoop(c)
		if s.opts.OnConnect != nil {
			s.opts.Host.Post(s.opts.OnConnect)
		}
		s.readLoop(c)
	}
}

func (s *Server) handshake(ws *websocket.Conn) (*conn, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(ws, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(ws, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(ws, protocol.ErrProtoVersion, "bad protocol_version")
		return nil, false
	}
	if s.opts.Token != "" && hello.Token != s.opts.Token {
		reject(ws, protocol.ErrUnauthorized, "bad token")
		return nil, false
	}

	c := newConn(ws)
	if !s.opts.Host.attach(c) {
		reject(ws, protocol.ErrBusy, "a host is already connected")
		return nil, false
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       uuid.NewString(),
		Hooks:           s.hooks(),
	}
	if err := writeJSON(ws, welcome); err != nil {
		s.opts.Host.detach(c)
		return nil, false
	}
	s.log.Printf("bridge: host connected name=%q plugin=%q session=%s", hello.HostName, hello.PluginVersion, welcome.SessionID)
	return c, true
}

// hooks lists the hook kinds with at least one subscriber.
func (s *Server) hooks() []string {
	var out []string
	for _, k := range host.Hooks() {
		if s.opts.Gateway == nil || s.opts.Gateway.Count(k) > 0 {
			out = append(out, string(k))
		}
	}
	return out
}

func (s *Server) writeLoop(c *conn) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-c.closed:
			return
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(c *conn) {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			s.sendError(c, protocol.ErrProtoBadRequest, "bad json")
			continue
		}
		switch base.Type {
		case protocol.TypeReply:
			var r protocol.ReplyMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad REPLY")
				continue
			}
			if !c.deliver(r) {
				s.log.Printf("warn: reply for unknown call id=%s", r.ID)
			}
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				s.sendError(c, protocol.ErrProtoBadRequest, "bad EVENT")
				continue
			}
			s.enqueueEvent(c, ev)
		default:
			s.sendError(c, protocol.ErrProtoBadRequest, "unexpected type "+base.Type)
		}
	}
}

func (s *Server) enqueueEvent(c *conn, ev protocol.EventMsg) {
	hook := host.HookKind(ev.Hook)
	if !host.IsKnownHook(hook) {
		s.sendError(c, protocol.ErrProtoBadRequest, "unknown hook "+ev.Hook)
		return
	}
	if s.opts.Host.loop.depth() >= maxBacklog {
		s.log.Printf("warn: event backlog full hook=%s id=%s", ev.Hook, ev.ID)
		s.sendError(c, protocol.ErrBusy, "event backlog full")
		return
	}
	s.opts.Metrics.BridgeEvent(ev.Hook)
	s.opts.Host.Post(func() { s.dispatch(c, hook, ev) })
}

// dispatch runs on the event loop.
func (s *Server) dispatch(c *conn, hook host.HookKind, ev protocol.EventMsg) {
	g := s.opts.Gateway
	switch hook {
	case host.HookActionQuery, host.HookActionExecute:
		var in host.ActionResult
		if ev.Result != nil {
			in = *ev.Result
		}
		args := host.Args(ev.Args)
		out := g.RunAction(hook, ev.Player, host.ActionKind(ev.Action), args.Clone(), in)
		if ev.ID == "" {
			return
		}
		res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version, ID: ev.ID, Result: *out.Result}
		if enriched(args, out.Args) {
			res.Args = out.Args
		}
		if err := c.send(res, s.opts.Host.timeout); err != nil && !errors.Is(err, ErrClosed) {
			s.log.Printf("warn: result send failed id=%s err=%v", ev.ID, err)
		}
	case host.HookIntervalTick, host.HookIntervalDay:
		g.DispatchInterval(hook)
	case host.HookNetworkJoin, host.HookNetworkLeave:
		g.DispatchPlayer(hook, ev.Player)
		if s.opts.Online != nil {
			s.opts.Metrics.SetOnline(s.opts.Online())
		}
	case host.HookNetworkChat:
		g.DispatchChat(ev.Player, ev.Message)
	}
}

// enriched reports whether a handler added or changed a numeric argument.
func enriched(before, after host.Args) bool {
	if len(before) != len(after) {
		return true
	}
	for k := range after {
		if _, ok := before[k]; !ok {
			return true
		}
		a, aok := after.IntOK(k)
		b, bok := before.IntOK(k)
		if aok != bok || a != b {
			return true
		}
	}
	return false
}

func (s *Server) sendError(c *conn, code, message string) {
	_ = c.send(protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message}, s.opts.Host.timeout)
}

func reject(ws *websocket.Conn, code, message string) {
	_ = writeJSON(ws, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message})
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}
