// Package transport implements the two concrete Engine.IO transports
// (components D and E): HTTP long-polling and WebSocket. Both share the
// state machine, URI construction, and packet dispatch defined here.
package transport

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/parser"
	"github.com/haruntuncay/socket.io-client/pkg/events"
)

// State is a transport's readyState.
type State string

const (
	StateInitial        State = "initial"
	StateOpening        State = "opening"
	StateOpen           State = "open"
	StatePausing        State = "pausing"
	StatePaused         State = "paused"
	StateClosed         State = "closed"
	StateAbruptlyClosed State = "abruptly_closed"
)

// Options configures a transport's connection target.
type Options struct {
	Secure            bool
	Hostname          string
	Port              string
	Path              string
	Query             url.Values
	ExtraHeaders      map[string][]string
	TimestampRequests bool
	TimestampParam    string
	ForceBase64       bool
}

// Transport is the common surface both Polling and WebSocket implement.
// It is also an event source: "open", "packet", "drain", "pollComplete",
// "error", "close" fire over its embedded Observable.
type Transport interface {
	On(event string, fn events.Listener) events.Handle
	Once(event string, fn events.Listener) events.Handle
	Emit(event string, args ...any)
	RemoveAllForEvent(event string)

	Name() string
	State() State
	Writable() bool
	SetQueryParam(key, value string)

	Open()
	Close()
	Send(packets []*packet.Packet)
	Pause(onPause func())
	Unpause()
}

// Base holds the state, event emitter, and URI logic shared by every
// transport. Polling and WebSocket embed it and implement their own
// Open/Close/Send/Pause/Unpause.
type Base struct {
	*events.Observable

	opts     Options
	writable atomic.Bool
	state    atomic.Value // State

	mu sync.Mutex
}

// NewBase constructs a Base in StateInitial.
func NewBase(opts Options) *Base {
	b := &Base{Observable: events.NewObservable(), opts: opts}
	b.state.Store(StateInitial)
	return b
}

func (b *Base) Opts() Options { return b.opts }

func (b *Base) Query() url.Values { return b.opts.Query }

// SetQueryParam binds a query parameter directly onto the transport's
// Options so future requests (polling's GET/POST cycle in particular)
// carry it - used to attach `sid` once the handshake assigns one.
func (b *Base) SetQueryParam(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opts.Query == nil {
		b.opts.Query = url.Values{}
	}
	b.opts.Query.Set(key, value)
}

func (b *Base) SetWritable(w bool) { b.writable.Store(w) }

func (b *Base) Writable() bool { return b.writable.Load() }

func (b *Base) State() State { return b.state.Load().(State) }

func (b *Base) SetState(s State) { b.state.Store(s) }

// OnOpen marks the transport open and writable, per the Transport state
// machine's INITIAL -> OPEN transition (entered on receipt of the Engine.IO
// OPEN packet, for polling; on socket establishment, for WebSocket).
func (b *Base) OnOpen() {
	b.SetState(StateOpen)
	b.SetWritable(true)
	b.Emit("open")
}

// OnPacket forwards one decoded packet to listeners.
func (b *Base) OnPacket(p *packet.Packet) {
	b.Emit("packet", p)
}

// OnClose transitions to CLOSED (orderly) and emits "close" with the given
// reason, nil if orderly.
func (b *Base) OnClose(reason error) {
	b.SetState(StateClosed)
	b.Emit("close", reason)
}

// OnAbruptClose transitions to ABRUPTLY_CLOSED and emits "close" with the
// triggering error, matching the transient-transport-error taxonomy of
// spec.md §7: connection refused, timeout, and similar are reconnect-eligible.
func (b *Base) OnAbruptClose(reason error) {
	b.SetState(StateAbruptlyClosed)
	b.Emit("close", reason)
}

// OnError emits a terminal "error" event carrying reason wrapped with
// description, per spec.md §7's permanent-transport-error / protocol-
// violation taxonomy.
func (b *Base) OnError(reason string, description error) {
	if description != nil {
		b.Emit("error", fmt.Errorf("%s: %w", reason, description))
		return
	}
	b.Emit("error", fmt.Errorf("%s", reason))
}

// CreateURI builds the request/dial target for this transport: scheme,
// host[:port], path, and query string.
func (b *Base) CreateURI(scheme string, query url.Values) string {
	host := b.opts.Hostname
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if b.opts.Port != "" && ((b.opts.Secure && b.opts.Port != "443") || (!b.opts.Secure && b.opts.Port != "80")) {
		host += ":" + b.opts.Port
	}
	u := url.URL{Scheme: scheme, Host: host, Path: b.opts.Path}
	if query != nil {
		u.RawQuery = encodeQuery(query)
	}
	return u.String()
}

// queryUnescaper restores the characters spec.md §6 requires left
// unescaped in the query string: "! ' ( ) ~" (Go's url.Values.Encode
// already leaves '~' alone, since it is in net/url's own unreserved set).
var queryUnescaper = strings.NewReplacer("%21", "!", "%27", "'", "%28", "(", "%29", ")")

// encodeQuery renders q the way a Socket.IO client's query string is
// expected on the wire: standard application/x-www-form-urlencoded, except
// "+" is written as "%20" and "! ' ( ) ~" are left unescaped.
func encodeQuery(q url.Values) string {
	return queryUnescaper.Replace(strings.ReplaceAll(q.Encode(), "+", "%20"))
}

// mergedQuery returns a copy of the configured query parameters, suitable
// for appending transport-specific keys (sid, b64, the timestamp cache
// buster) without mutating the shared Options.
func (b *Base) mergedQuery() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := url.Values{}
	for k, vs := range b.opts.Query {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

// DecodeSingle decodes one message-oriented frame (used by WebSocket,
// which never needs the payload framing).
func DecodeSingle(buf []byte, asText bool) (*packet.Packet, error) {
	return parser.DecodePacket(buf, asText)
}
