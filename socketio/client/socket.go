package client

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/haruntuncay/socket.io-client/pkg/events"
	"github.com/haruntuncay/socket.io-client/pkg/log"
	"github.com/haruntuncay/socket.io-client/socketio/parser"
)

var socketLog = log.NewLog("socket.io-client:socket")

// Ack is the callback shape for an acknowledged emit, invoked either with
// the peer's response data or, when the socket disconnects first, a non-nil
// error. There is no ack timeout.
type Ack func(data []any, err error)

// RESERVED_EVENTS names event names a caller cannot Emit directly, because
// this package emits them itself to describe socket lifecycle.
var RESERVED_EVENTS = map[string]bool{
	"connect":       true,
	"connect_error": true,
	"disconnect":    true,
	"disconnecting": true,
}

// State is a Socket's per-namespace connection state.
type State string

const (
	StateInitial State = "initial"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosed  State = "closed"
)

// Socket is a per-namespace handle onto a Manager's shared connection
// (component H). States: INITIAL -> OPENING -> OPEN -> CLOSED (terminal).
type Socket struct {
	*events.Observable

	io   *Manager
	nsp  string
	opts SocketOptions
	auth map[string]any

	id        atomic.Value // string
	connected atomic.Bool

	receiveBufferMu sync.Mutex
	receiveBuffer   [][]any

	sendBufferMu sync.Mutex
	sendBuffer   []*parser.Packet

	ids  atomic.Uint64
	acks sync.Map // uint64 -> Ack

	subsMu sync.Mutex
	subs   []func()
}

// newSocket constructs a Socket for nsp on io, auto-connecting if io's
// configuration says so.
func newSocket(io *Manager, nsp string, opts SocketOptions) *Socket {
	s := &Socket{
		Observable: events.NewObservable(),
		io:         io,
		nsp:        nsp,
		opts:       opts,
		auth:       opts.Auth,
	}
	s.id.Store("")

	if io.opts.AutoConnect {
		s.Connect()
	}
	return s
}

// Io returns the Manager that owns this Socket.
func (s *Socket) Io() *Manager { return s.io }

// Id returns the session identifier assigned by the server's CONNECT ack,
// or "" before it arrives or after a close clears it.
func (s *Socket) Id() string {
	v, _ := s.id.Load().(string)
	return v
}

// Connected reports whether this namespace has received its CONNECT ack.
func (s *Socket) Connected() bool { return s.connected.Load() }

// Disconnected is the complement of Connected.
func (s *Socket) Disconnected() bool { return !s.connected.Load() }

// Active reports whether the Socket will try to (re)connect when its
// Manager connects or reconnects - true once subEvents has wired it up,
// false after a user-initiated Disconnect or a server DISCONNECT.
func (s *Socket) Active() bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.subs != nil
}

func (s *Socket) subEvents() {
	if s.Active() {
		return
	}

	subs := []func(){
		s.io.On("open", s.onopen).Remove,
		s.io.On("packet", func(args ...any) {
			if len(args) == 0 {
				return
			}
			if p, ok := args[0].(*parser.Packet); ok {
				s.onpacket(p)
			}
		}).Remove,
		s.io.On("error", s.onerror).Remove,
		s.io.On("close", func(args ...any) {
			reason, _ := args[0].(string)
			var description error
			if len(args) > 1 {
				description, _ = args[1].(error)
			}
			s.onclose(reason, description)
		}).Remove,
	}

	s.subsMu.Lock()
	s.subs = subs
	s.subsMu.Unlock()
}

// Connect opens the socket: wires it to Manager events, ensures the
// Manager itself is connecting, and - if the Manager is already OPEN -
// sends this namespace's CONNECT packet immediately.
func (s *Socket) Connect() *Socket {
	if s.connected.Load() {
		return s
	}

	s.subEvents()
	if !s.io.reconnecting.Load() {
		s.io.Open(nil)
	}
	if s.io.ReadyState() == ReadyStateOpen {
		s.onopen()
	}
	return s
}

// Open is an alias for Connect.
func (s *Socket) Open() *Socket { return s.Connect() }

// Send emits a "message" event, mirroring WebSocket.send().
func (s *Socket) Send(args ...any) *Socket {
	s.Emit("message", args...)
	return s
}

// Emit sends a Socket.IO EVENT (or BINARY_EVENT, if any argument contains a
// byte sequence) to this namespace. If the last argument is an Ack, it is
// registered under a freshly allocated ack id and stripped from the data
// sent over the wire.
func (s *Socket) Emit(event string, args ...any) error {
	if RESERVED_EVENTS[event] {
		return errors.New("socketio/client: \"" + event + "\" is a reserved event name")
	}

	data := append([]any{event}, args...)

	p := &parser.Packet{
		Type:      parser.EVENT,
		Namespace: s.nsp,
		Id:        parser.NoAck,
		Data:      any(data),
	}

	if len(data) > 0 {
		if ack, withAck := data[len(data)-1].(Ack); withAck {
			id := s.ids.Add(1) - 1
			socketLog.Debug("emitting packet with ack id %d", id)
			p.Data = any(data[:len(data)-1])
			s.acks.Store(id, ack)
			p.Id = int(id)
		}
	}

	if s.connected.Load() {
		s.packet(p)
	} else {
		s.sendBufferMu.Lock()
		s.sendBuffer = append(s.sendBuffer, p)
		s.sendBufferMu.Unlock()
	}
	return nil
}

// EmitWithAck returns a function that emits event with args plus the
// supplied Ack appended, for `socket.EmitWithAck("x")(func(...){})` style
// call sites.
func (s *Socket) EmitWithAck(event string, args ...any) func(Ack) {
	return func(ack Ack) {
		s.Emit(event, append(args, ack)...)
	}
}

func (s *Socket) packet(p *parser.Packet) {
	p.Namespace = s.nsp
	s.io.packet(p)
}

// onopen is called upon Manager `open`; it sends this namespace's CONNECT
// packet. The wire encoding already omits the namespace text for "/", so
// there is no special case here for the default namespace.
func (s *Socket) onopen(...any) {
	socketLog.Debug("transport is open - connecting")
	var data any
	if s.auth != nil {
		data = s.auth
	}
	s.packet(&parser.Packet{Type: parser.CONNECT, Namespace: s.nsp, Id: parser.NoAck, Data: data})
}

func (s *Socket) onerror(args ...any) {
	if !s.connected.Load() {
		s.Observable.Emit("connect_error", args...)
	}
}

func (s *Socket) onclose(reason string, description error) {
	socketLog.Debug("close (%s)", reason)
	s.connected.Store(false)
	s.id.Store("")
	s.Observable.Emit("disconnect", reason, description)
	s.clearAcks()
}

func (s *Socket) clearAcks() {
	s.acks.Range(func(key, value any) bool {
		id := key.(uint64)
		ack := value.(Ack)

		buffered := false
		s.sendBufferMu.Lock()
		for _, p := range s.sendBuffer {
			if p.Id == int(id) {
				buffered = true
				break
			}
		}
		s.sendBufferMu.Unlock()

		if !buffered {
			s.acks.Delete(id)
			ack(nil, errors.New("socket has been disconnected"))
		}
		return true
	})
}

func (s *Socket) onpacket(p *parser.Packet) {
	if p.Namespace != s.nsp {
		return
	}

	switch p.Type {
	case parser.CONNECT:
		data, _ := p.Data.(map[string]any)
		sid, _ := data["sid"].(string)
		s.onconnect(sid)

	case parser.EVENT, parser.BINARY_EVENT:
		s.onevent(p)

	case parser.ACK, parser.BINARY_ACK:
		s.onack(p)

	case parser.DISCONNECT:
		s.ondisconnect()

	case parser.ERROR:
		s.Observable.Emit("error_packet", p.Data)
	}
}

func (s *Socket) onevent(p *parser.Packet) {
	args, _ := p.Data.([]any)
	socketLog.Debug("emitting event %v", args)

	if p.Id != parser.NoAck {
		socketLog.Debug("attaching ack callback to event")
		args = append(args, s.ack(p.Id))
	}

	if s.connected.Load() {
		s.emitEvent(args)
	} else {
		s.receiveBufferMu.Lock()
		s.receiveBuffer = append(s.receiveBuffer, args)
		s.receiveBufferMu.Unlock()
	}
}

func (s *Socket) emitEvent(args []any) {
	if len(args) == 0 {
		return
	}
	event, _ := args[0].(string)
	s.Observable.Emit(event, args[1:]...)
}

// ack produces a callback that sends a matching ACK (or BINARY_ACK, if the
// response carries a byte sequence) back to the server, at most once.
func (s *Socket) ack(id int) Ack {
	var sent sync.Once
	return func(args []any, _ error) {
		sent.Do(func() {
			socketLog.Debug("sending ack %v", args)
			s.packet(&parser.Packet{Type: parser.ACK, Namespace: s.nsp, Id: id, Data: any(args)})
		})
	}
}

func (s *Socket) onack(p *parser.Packet) {
	if p.Id == parser.NoAck {
		socketLog.Debug("bad ack with no id")
		return
	}
	v, ok := s.acks.LoadAndDelete(uint64(p.Id))
	if !ok {
		socketLog.Debug("bad ack %d", p.Id)
		return
	}
	ack := v.(Ack)
	data, _ := p.Data.([]any)
	ack(data, nil)
}

func (s *Socket) onconnect(sid string) {
	socketLog.Debug("socket connected with id %s", sid)
	s.id.Store(sid)
	s.connected.Store(true)
	s.emitBuffered()
	s.Observable.Emit("connect")
}

func (s *Socket) emitBuffered() {
	s.receiveBufferMu.Lock()
	buffered := s.receiveBuffer
	s.receiveBuffer = nil
	s.receiveBufferMu.Unlock()
	for _, args := range buffered {
		s.emitEvent(args)
	}

	s.sendBufferMu.Lock()
	toSend := s.sendBuffer
	s.sendBuffer = nil
	s.sendBufferMu.Unlock()
	for _, p := range toSend {
		s.packet(p)
	}
}

func (s *Socket) ondisconnect() {
	socketLog.Debug("server disconnect (%s)", s.nsp)
	s.destroy()
	s.onclose("io server disconnect", nil)
}

// destroy unhooks this socket from its Manager so it stops receiving
// fan-out and the Manager stops counting it as active.
func (s *Socket) destroy() {
	s.subsMu.Lock()
	subs := s.subs
	s.subs = nil
	s.subsMu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	s.io.destroy(s)
}

// Disconnect closes this namespace: sends a Socket.IO DISCONNECT if
// currently connected, then unregisters from the Manager. If this was the
// Manager's last active socket, the underlying connection closes too.
func (s *Socket) Disconnect() *Socket {
	if s.connected.Load() {
		socketLog.Debug("performing disconnect (%s)", s.nsp)
		s.packet(&parser.Packet{Type: parser.DISCONNECT, Namespace: s.nsp, Id: parser.NoAck})
	}

	s.destroy()

	if s.connected.Load() {
		s.onclose("io client disconnect", nil)
	}
	return s
}

// Close is an alias for Disconnect.
func (s *Socket) Close() *Socket { return s.Disconnect() }
