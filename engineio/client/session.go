// Package client implements the Engine Session (component F): the state
// machine that owns the current transport, drives the handshake, the
// ping/pong liveness cycle, and the polling-to-websocket probe/upgrade
// protocol.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/transport"
	"github.com/haruntuncay/socket.io-client/pkg/events"
	"github.com/haruntuncay/socket.io-client/pkg/log"
	"github.com/haruntuncay/socket.io-client/pkg/worker"
)

var sessionLog = log.NewLog("engine.io-client:session")

// State is the Engine Session's readyState: INITIAL -> OPENING -> OPEN ->
// {CLOSED (orderly) | ABRUPTLY_CLOSED (error, reconnect-eligible)}.
type State string

const (
	StateInitial        State = "initial"
	StateOpening        State = "opening"
	StateOpen           State = "open"
	StateClosed         State = "closed"
	StateAbruptlyClosed State = "abruptly_closed"
)

type transportFactory func(transport.Options) transport.Transport

// Session is the Engine.IO client state machine. All of its mutable state
// besides id/state (read from arbitrary goroutines via ID/State) is touched
// only from the task submitted to its worker, which serializes every
// mutation coming from the public API and from transport event callbacks
// alike.
type Session struct {
	*events.Observable

	opts           Options
	worker         *worker.Worker
	scheduler      *worker.Scheduler
	transportCtors map[string]transportFactory

	id    atomic.Value // string
	state atomic.Value // State

	// Touched only on the worker goroutine.
	transport        transport.Transport
	transportCleanup func()
	upgrading        bool
	pingInterval     int64
	pingTimeout      int64
	pingTimer        *worker.Timer
	pingTimeoutTimer *worker.Timer
	writeBuffer      []*packet.Packet
}

// New constructs an idle Session. Call Open to start connecting.
func New(opts Options) *Session {
	s := &Session{
		Observable: events.NewObservable(),
		opts:       opts,
		worker:     worker.New(256),
		transportCtors: map[string]transportFactory{
			"polling":   func(o transport.Options) transport.Transport { return transport.NewPolling(o) },
			"websocket": func(o transport.Options) transport.Transport { return transport.NewWebSocket(o) },
		},
	}
	s.scheduler = worker.NewScheduler(s.worker)
	s.id.Store("")
	s.state.Store(StateInitial)
	return s
}

// Worker returns the single-threaded executor that serializes this
// session's state mutation. A Manager owning this session submits its
// connect-timeout callback through the same worker; its reconnect timer
// does not go through it.
func (s *Session) Worker() *worker.Worker { return s.worker }

// SetTransportFactory overrides the constructor used for a given transport
// name, the Go analogue of the teacher's `callFactory`/`webSocketFactory`
// configuration hooks - chiefly useful for tests that inject a stub
// transport without a real socket.
func (s *Session) SetTransportFactory(name string, ctor func(transport.Options) transport.Transport) {
	s.transportCtors[name] = ctor
}

// ID returns the session id assigned by the server's handshake, or "" before
// the handshake completes or after a close clears it.
func (s *Session) ID() string {
	v, _ := s.id.Load().(string)
	return v
}

func (s *Session) setID(id string) { s.id.Store(id) }

// State returns the session's current readyState.
func (s *Session) State() State {
	return s.state.Load().(State)
}

func (s *Session) setState(st State) { s.state.Store(st) }

// Open starts the connection: instantiates the first configured transport
// and calls its Open.
func (s *Session) Open() {
	s.worker.Submit(s.open)
}

func (s *Session) open() {
	if len(s.opts.Transports) == 0 {
		s.Emit("error", errors.New("no transports available"))
		return
	}
	s.setState(StateOpening)
	name := s.opts.Transports[0]
	t := s.createTransport(name)
	if t == nil {
		return
	}
	s.setTransport(t)
	t.Open()
}

func (s *Session) createTransport(name string) transport.Transport {
	ctor, ok := s.transportCtors[name]
	if !ok {
		s.Emit("error", fmt.Errorf("unknown transport %q", name))
		return nil
	}

	query := url.Values{}
	for k, vs := range s.opts.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("EIO", "3")
	query.Set("transport", name)
	if id := s.ID(); id != "" {
		query.Set("sid", id)
	}

	return ctor(transport.Options{
		Secure:            s.opts.Secure,
		Hostname:          s.opts.Hostname,
		Port:              s.opts.Port,
		Path:              s.opts.Path,
		Query:             query,
		ExtraHeaders:      s.opts.ExtraHeaders,
		TimestampRequests: s.opts.TimestampRequests,
		TimestampParam:    s.opts.TimestampParam,
		ForceBase64:       s.opts.ForceBase64,
	})
}

// setTransport detaches listeners from any previous transport, installs t as
// the current one, and attaches the session's listeners to it. Only ever
// called on the worker goroutine.
func (s *Session) setTransport(t transport.Transport) {
	sessionLog.Debug("setting transport %s", t.Name())
	if s.transportCleanup != nil {
		s.transportCleanup()
		s.transportCleanup = nil
	}
	s.transport = t
	s.transportCleanup = s.attachListeners(t)
}

func (s *Session) attachListeners(t transport.Transport) func() {
	hPacket := t.On("packet", func(args ...any) {
		p, ok := args[0].(*packet.Packet)
		if !ok {
			return
		}
		s.worker.Submit(func() { s.onPacket(t, p) })
	})
	hError := t.On("error", func(args ...any) {
		var err error
		if len(args) > 0 {
			err, _ = args[0].(error)
		}
		s.worker.Submit(func() { s.onTransportError(t, err) })
	})
	hClose := t.On("close", func(args ...any) {
		var reason error
		if len(args) > 0 {
			reason, _ = args[0].(error)
		}
		s.worker.Submit(func() { s.onTransportClose(t, reason) })
	})
	hDrain := t.On("drain", func(args ...any) {
		s.worker.Submit(func() { s.onDrain(t) })
	})

	return func() {
		hPacket.Remove()
		hError.Remove()
		hClose.Remove()
		hDrain.Remove()
	}
}

func (s *Session) onPacket(t transport.Transport, p *packet.Packet) {
	if t != s.transport {
		return // a listener from a transport we've since replaced
	}
	s.Emit("packet", p)
	s.Emit("heartbeat")

	switch p.Type {
	case packet.OPEN:
		if s.State() != StateOpening {
			return
		}
		hs, ok := parseHandshake(p.Text)
		if !ok {
			s.fail(errors.New("invalid or incomplete handshake data"))
			return
		}
		s.onHandshake(hs)
	case packet.PONG:
		worker.Cancel(s.pingTimeoutTimer)
		s.pingTimeoutTimer = nil
		s.Emit("pong")
		s.schedulePing()
	}
}

// onHandshake records the session id and ping timing, binds sid onto the
// transport's query so subsequent requests are scoped to this session,
// opens the session, and - if both ends agree on websocket - starts the
// upgrade probe.
func (s *Session) onHandshake(hs Handshake) {
	s.setID(hs.SessionID)
	s.pingInterval = hs.PingInterval
	s.pingTimeout = hs.PingTimeout
	s.transport.SetQueryParam("sid", hs.SessionID)

	s.Emit("handshake", hs)
	s.setState(StateOpen)
	s.Emit("open")
	s.flush()

	if s.State() == StateClosed || s.State() == StateAbruptlyClosed {
		return // an "open" listener closed the session synchronously
	}

	s.schedulePing()

	if s.opts.Upgrade && s.transport.Name() != "websocket" &&
		containsString(hs.Upgrades, "websocket") && containsString(s.opts.Transports, "websocket") {
		s.probe("websocket")
	}
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

func (s *Session) schedulePing() {
	worker.Cancel(s.pingTimer)
	s.pingTimer = s.scheduler.Schedule(time.Duration(s.pingInterval)*time.Millisecond, s.sendPing)
}

func (s *Session) sendPing() {
	if s.State() != StateOpen {
		return
	}
	s.transport.Send([]*packet.Packet{{Type: packet.PING}})
	s.Emit("ping")
	s.pingTimeoutTimer = s.scheduler.Schedule(
		time.Duration(s.pingInterval+s.pingTimeout)*time.Millisecond,
		s.onPingTimeout,
	)
}

func (s *Session) onPingTimeout() {
	if s.State() != StateOpen {
		return
	}
	s.fail(errors.New("didn't receive pong packet in time"))
}

// fail is a protocol-level terminal error decided by the session itself
// (bad handshake, ping timeout) rather than one reported by the transport;
// it closes the transport and transitions to ABRUPTLY_CLOSED, the same as
// any other non-orderly termination, so the Manager's reconnect path picks
// it up.
func (s *Session) fail(err error) {
	s.Emit("error", err)
	if s.transport != nil {
		s.transport.Close()
	}
	s.commonCleanUp(true, err)
}

func (s *Session) onTransportError(t transport.Transport, err error) {
	if t != s.transport {
		return
	}
	s.Emit("error", err)
	t.Close()
	s.commonCleanUp(true, err)
}

func (s *Session) onTransportClose(t transport.Transport, reason error) {
	if t != s.transport {
		return
	}
	abrupt := t.State() == transport.StateAbruptlyClosed
	s.commonCleanUp(abrupt, reason)
}

func (s *Session) onDrain(t transport.Transport) {
	if t != s.transport {
		return
	}
	s.Emit("drain")
}

// commonCleanUp cancels the ping timers, clears sid from the query map
// (spec.md §4.F: "so a future open obtains a fresh session"), transitions
// to CLOSED or ABRUPTLY_CLOSED, and emits the corresponding event. It is
// idempotent: once the session has reached a terminal state, later calls
// (e.g. a transport "close" that fires after a client-initiated Close) are
// no-ops.
func (s *Session) commonCleanUp(abrupt bool, reason error) {
	if s.State() == StateClosed || s.State() == StateAbruptlyClosed {
		return
	}

	worker.Cancel(s.pingTimer)
	worker.Cancel(s.pingTimeoutTimer)
	s.pingTimer, s.pingTimeoutTimer = nil, nil

	if s.opts.Query != nil {
		s.opts.Query.Del("sid")
	}
	s.setID("")

	if abrupt {
		s.setState(StateAbruptlyClosed)
		s.Emit("abruptClose", reason)
	} else {
		s.setState(StateClosed)
		s.Emit("close", reason)
	}
}

// Send enqueues packets for transmission; they are flushed immediately if
// the transport is writable and no upgrade is in progress, or held until it
// is.
func (s *Session) Send(packets []*packet.Packet) {
	s.worker.Submit(func() { s.enqueue(packets) })
}

func (s *Session) enqueue(packets []*packet.Packet) {
	if s.State() == StateClosed || s.State() == StateAbruptlyClosed {
		return
	}
	s.writeBuffer = append(s.writeBuffer, packets...)
	s.flush()
}

func (s *Session) flush() {
	if s.transport == nil || s.upgrading || !s.transport.Writable() {
		return
	}
	if len(s.writeBuffer) == 0 {
		return
	}
	batch := s.writeBuffer
	s.writeBuffer = nil
	s.transport.Send(batch)
}

// Close asks the current transport to close (client-initiated, orderly) and
// tears down the ping timers immediately rather than waiting for the
// transport's own close event to round-trip back.
func (s *Session) Close() {
	s.worker.Submit(s.doClose)
}

func (s *Session) doClose() {
	if s.State() != StateOpening && s.State() != StateOpen {
		return
	}
	t := s.transport
	s.commonCleanUp(false, nil)
	if t != nil {
		t.Close()
	}
}

// Shutdown stops the session's worker, waiting up to timeout for in-flight
// work to finish.
func (s *Session) Shutdown(timeout time.Duration) {
	s.worker.Shutdown(timeout)
}
