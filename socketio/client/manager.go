// Package client implements the Socket.IO application layer on top of an
// Engine Session: the Manager (component G), which owns one session and a
// namespace registry, and Socket (component H), a per-namespace handle.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	engineclient "github.com/haruntuncay/socket.io-client/engineio/client"
	enginepacket "github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/pkg/backoff"
	"github.com/haruntuncay/socket.io-client/pkg/events"
	"github.com/haruntuncay/socket.io-client/pkg/log"
	"github.com/haruntuncay/socket.io-client/socketio/parser"
)

var managerLog = log.NewLog("socket.io-client:manager")

// ReadyState is the Manager's connection state.
type ReadyState string

const (
	ReadyStateClosed  ReadyState = "closed"
	ReadyStateOpening ReadyState = "opening"
	ReadyStateOpen    ReadyState = "open"
)

// Manager owns one Engine Session per spec.md §4.G: it multiplexes
// namespaces onto a single transport connection, fans out decoded packets
// to the Socket registered for each namespace, and drives the reconnect
// backoff loop. The Manager never starts a worker of its own: its
// connect-timeout callback runs on the Engine Session's worker, reached via
// Session.Worker().Submit. Its public methods and event handlers run on the
// calling goroutine, and the reconnect timer's callback runs on the timer's
// own goroutine; neither is routed through that worker.
type Manager struct {
	*events.Observable

	uri  string
	opts ManagerOptions

	session *engineclient.Session

	readyState    atomic.Value // ReadyState
	reconnecting  atomic.Bool
	skipReconnect atomic.Bool

	nspsMu sync.Mutex
	nsps   map[string]*Socket

	subs []func()

	backoff *backoff.Backoff
	decoder *parser.Decoder
}

// New constructs a Manager for uri (scheme://host[:port]) and opens it
// immediately if opts.AutoConnect is set.
func New(uri string, opts ManagerOptions) (*Manager, error) {
	opts = opts.Clone()
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}

	m := &Manager{
		Observable: events.NewObservable(),
		uri:        uri,
		opts:       opts,
		nsps:       make(map[string]*Socket),
		decoder:    parser.NewDecoder(),
	}
	m.readyState.Store(ReadyStateClosed)

	delay := clampReconnectionDelay(opts.ReconnectionDelay)
	m.backoff = backoff.New(delay.Milliseconds(), opts.ReconnectionDelayMax.Milliseconds(), clampRandomizationFactor(opts.RandomizationFactor))

	if opts.AutoConnect {
		m.Open(nil)
	}
	return m, nil
}

// engineOptions builds the Engine Session configuration from the Manager's
// URI and options.
func (m *Manager) engineOptions() (engineclient.Options, error) {
	u, err := url.Parse(m.uri)
	if err != nil {
		return engineclient.Options{}, fmt.Errorf("socketio/client: invalid manager uri %q: %w", m.uri, err)
	}

	eo := engineclient.DefaultOptions()
	eo.Secure = u.Scheme == "https" || u.Scheme == "wss"
	eo.Hostname = u.Hostname()
	eo.Port = u.Port()
	eo.Path = m.opts.Path
	eo.Query = m.opts.Query
	eo.ExtraHeaders = m.opts.ExtraHeaders
	if len(m.opts.Transports) > 0 {
		eo.Transports = m.opts.Transports
	}
	eo.Upgrade = m.opts.Upgrade
	return eo, nil
}

// Session returns the Manager's Engine Session, or nil before the first
// Open.
func (m *Manager) Session() *engineclient.Session { return m.session }

func (m *Manager) ReadyState() ReadyState { return m.readyState.Load().(ReadyState) }

// WillReconnect reports whether a "close" event firing right now would go
// on to trigger a reconnect attempt - true unless reconnection is disabled
// or this close was client-initiated (skipReconnect).
func (m *Manager) WillReconnect() bool {
	return m.opts.Reconnection && !m.skipReconnect.Load()
}

// HasNamespace reports whether a Socket for nsp already exists on this
// Manager, used by the registry lookup to implement the "same namespace
// forces a new Manager" rule.
func (m *Manager) HasNamespace(nsp string) bool {
	if nsp == "" {
		nsp = parser.DefaultNamespace
	}
	m.nspsMu.Lock()
	defer m.nspsMu.Unlock()
	_, ok := m.nsps[nsp]
	return ok
}

// maybeReconnectOnOpen starts the reconnect loop only the first time a
// connection attempt fails, mirroring the teacher's guard against
// double-triggering it once a reconnect attempt is already underway.
func (m *Manager) maybeReconnectOnOpen() {
	if !m.reconnecting.Load() && m.opts.Reconnection && m.backoff.Attempts() == 0 {
		m.reconnect()
	}
}

// Open starts (or reuses) the connection. fn, if non-nil, is called once
// with the outcome of this specific attempt instead of driving the
// Manager's own reconnect loop on failure.
func (m *Manager) Open(fn func(error)) *Manager {
	if m.ReadyState() == ReadyStateOpen || m.ReadyState() == ReadyStateOpening {
		return m
	}

	eo, err := m.engineOptions()
	if err != nil {
		if fn != nil {
			fn(err)
		}
		return m
	}

	managerLog.Debug("opening %s", m.uri)
	m.session = engineclient.New(eo)
	for name, factory := range m.opts.TransportFactories {
		m.session.SetTransportFactory(name, factory)
	}
	m.readyState.Store(ReadyStateOpening)
	m.skipReconnect.Store(false)

	var openHandle events.Handle
	openHandle = m.session.Once("open", func(...any) {
		m.onopen()
		if fn != nil {
			fn(nil)
		}
	})

	onError := func(args ...any) {
		var err error
		if len(args) > 0 {
			err, _ = args[0].(error)
		}
		managerLog.Debug("error: %v", err)
		m.cleanup()
		m.readyState.Store(ReadyStateClosed)
		m.Emit("error", err)
		if fn != nil {
			fn(err)
		} else {
			m.maybeReconnectOnOpen()
		}
	}
	errorHandle := m.session.On("error", onError)
	abruptHandle := m.session.Once("abruptClose", onError)

	m.subs = append(m.subs, openHandle.Remove, errorHandle.Remove, abruptHandle.Remove)

	if m.opts.Timeout != nil {
		timeout := *m.opts.Timeout
		managerLog.Debug("connect attempt will timeout after %v", timeout)
		timer := time.AfterFunc(timeout, func() {
			m.session.Worker().Submit(func() {
				openHandle.Remove()
				onError(errors.New("timeout"))
				m.session.Close()
			})
		})
		m.subs = append(m.subs, func() { timer.Stop() })
	}

	m.session.Open()
	return m
}

// Connect is an alias for Open.
func (m *Manager) Connect(fn func(error)) *Manager { return m.Open(fn) }

func (m *Manager) onopen() {
	managerLog.Debug("open")
	m.cleanup()

	m.readyState.Store(ReadyStateOpen)
	m.Emit("open")

	m.subs = append(m.subs,
		m.session.On("ping", m.onping).Remove,
		m.session.On("packet", m.ondata).Remove,
		m.session.On("error", m.onerror).Remove,
		m.session.On("close", func(args ...any) {
			var reason error
			if len(args) > 0 {
				reason, _ = args[0].(error)
			}
			m.onclose("forced close", reason)
		}).Remove,
		m.session.On("abruptClose", func(args ...any) {
			var reason error
			if len(args) > 0 {
				reason, _ = args[0].(error)
			}
			m.onclose("transport close", reason)
		}).Remove,
		m.decoder.On("decoded", m.ondecoded).Remove,
		m.decoder.On("error", func(args ...any) {
			var err error
			if len(args) > 0 {
				err, _ = args[0].(error)
			}
			m.onclose("parse error", err)
		}).Remove,
	)
}

func (m *Manager) onping(...any) { m.Emit("ping") }

// ondata feeds every MESSAGE-tagged Engine.IO packet into the Socket.IO
// decoder. Non-MESSAGE packets (PING/PONG/OPEN/...) are the Engine
// Session's own concern and are ignored here.
func (m *Manager) ondata(args ...any) {
	if len(args) == 0 {
		return
	}
	p, ok := args[0].(*enginepacket.Packet)
	if !ok || p.Type != enginepacket.MESSAGE {
		return
	}
	// Errors are surfaced through the decoder's own "error" event, which
	// onopen already routes to onclose - calling it again here would fire
	// "close" twice for the same failure.
	if p.IsBinary {
		_ = m.decoder.AddBinary(p.Binary)
	} else {
		_ = m.decoder.AddText(p.Text)
	}
}

func (m *Manager) ondecoded(args ...any) {
	if len(args) == 0 {
		return
	}
	m.Emit("packet", args[0])
}

func (m *Manager) onerror(args ...any) {
	managerLog.Debug("error: %v", args)
	m.Emit("error", args...)
}

// Socket returns the Socket for nsp, creating it if this is the first
// request for that namespace.
func (m *Manager) Socket(nsp string, opts SocketOptions) *Socket {
	if nsp == "" {
		nsp = parser.DefaultNamespace
	}

	m.nspsMu.Lock()
	sock, ok := m.nsps[nsp]
	if !ok {
		sock = newSocket(m, nsp, opts)
		m.nsps[nsp] = sock
	}
	m.nspsMu.Unlock()

	if !ok {
		return sock
	}
	if m.opts.AutoConnect && !sock.Active() {
		sock.Connect()
	}
	return sock
}

// destroy removes sock from the namespace registry and closes the
// connection if it was the last active socket.
func (m *Manager) destroy(sock *Socket) {
	m.nspsMu.Lock()
	if m.nsps[sock.nsp] == sock {
		delete(m.nsps, sock.nsp)
	}
	closeAll := true
	for _, s := range m.nsps {
		if s.Active() {
			closeAll = false
			break
		}
	}
	m.nspsMu.Unlock()

	if closeAll {
		m.close()
	}
}

// packet encodes p via the Socket.IO codec and sends each resulting frame
// as an independent Engine.IO MESSAGE.
func (m *Manager) packet(p *parser.Packet) {
	managerLog.Debug("writing packet %+v", p)
	frames, err := parser.Encode(p)
	if err != nil {
		managerLog.Debug("encode error: %v", err)
		return
	}
	packets := make([]*enginepacket.Packet, 0, len(frames))
	for _, f := range frames {
		if f.IsBinary {
			packets = append(packets, enginepacket.NewBinary(enginepacket.MESSAGE, f.Binary))
		} else {
			packets = append(packets, enginepacket.NewText(enginepacket.MESSAGE, f.Text))
		}
	}
	m.session.Send(packets)
}

func (m *Manager) cleanup() {
	managerLog.Debug("cleanup")
	for _, unsub := range m.subs {
		unsub()
	}
	m.subs = nil
	m.decoder.Destroy()
}

// close is the client-initiated disconnect: no reconnect follows.
func (m *Manager) close() {
	managerLog.Debug("disconnect")
	m.skipReconnect.Store(true)
	m.reconnecting.Store(false)
	m.onclose("forced close", nil)
}

// Disconnect closes the Manager's connection and suppresses reconnection.
func (m *Manager) Disconnect() { m.close() }

func (m *Manager) onclose(reason string, description error) {
	managerLog.Debug("closed due to %s", reason)

	m.cleanup()
	if m.session != nil {
		m.session.Close()
	}
	m.backoff.Reset()
	m.readyState.Store(ReadyStateClosed)
	m.Emit("close", reason, description)

	if m.opts.Reconnection && !m.skipReconnect.Load() {
		m.reconnect()
	}
}

// reconnect schedules the next attempt per spec.md §4.G: with base =
// max(100ms, reconnectDelay), the delay is base * 2^attempts, jittered by
// ±(base*randomizationFactor), clamped to maxReconnectDelay.
func (m *Manager) reconnect() {
	if m.reconnecting.Load() || m.skipReconnect.Load() {
		return
	}

	if float64(m.backoff.Attempts()) >= m.opts.ReconnectionAttempts {
		managerLog.Debug("reconnect failed")
		m.backoff.Reset()
		m.Emit("reconnect_failed")
		m.reconnecting.Store(false)
		return
	}

	delay := m.backoff.Next()
	managerLog.Debug("will wait %dms before reconnect attempt", delay)
	m.reconnecting.Store(true)

	timer := time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		if m.skipReconnect.Load() {
			return
		}
		managerLog.Debug("attempting reconnect")
		m.Emit("reconnect_attempt", m.backoff.Attempts())

		if m.skipReconnect.Load() {
			return
		}

		m.Open(func(err error) {
			if err != nil {
				managerLog.Debug("reconnect attempt error")
				m.reconnecting.Store(false)
				m.reconnect()
				m.Emit("reconnect_error", err)
			} else {
				m.onreconnect()
			}
		})
	})
	m.subs = append(m.subs, func() { timer.Stop() })
}

func (m *Manager) onreconnect() {
	attempt := m.backoff.Attempts()
	m.reconnecting.Store(false)
	m.backoff.Reset()
	m.Emit("reconnect", attempt)
}
