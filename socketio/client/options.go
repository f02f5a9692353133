package client

import (
	"math"
	"net/url"
	"time"

	"github.com/haruntuncay/socket.io-client/engineio/transport"
)

// ManagerOptions configures a Manager: the engine transports it offers,
// multiplexing, and the reconnect backoff schedule. Defaults follow the
// configuration table verbatim rather than the teacher's own (1000ms/
// 5000ms) choices.
type ManagerOptions struct {
	Path         string
	Query        url.Values
	ExtraHeaders map[string][]string

	Transports []string
	Upgrade    bool

	// Multiplex controls whether Of/socket() shares a Manager across
	// namespaces on the same host[:port]<path>. ForceNew always bypasses
	// the registry regardless of Multiplex.
	Multiplex bool
	ForceNew  bool

	Reconnection         bool
	ReconnectionAttempts float64
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	RandomizationFactor  float64

	// Timeout bounds a single connect attempt; nil disables it, meaning
	// "no timeout beyond ping" per the concurrency model's default.
	Timeout *time.Duration

	// AutoConnect opens a socket as soon as it is created by Socket(nsp, opts).
	AutoConnect bool

	// TransportFactories overrides the constructor used for a named
	// transport, the Go analogue of the builder's `callFactory`/
	// `webSocketFactory` hooks - applied to the Engine Session each time
	// Open constructs one.
	TransportFactories map[string]func(transport.Options) transport.Transport
}

// DefaultManagerOptions returns the configuration table's defaults.
func DefaultManagerOptions() ManagerOptions {
	delay := 500 * time.Millisecond
	max := 10000 * time.Millisecond
	return ManagerOptions{
		Path:                 "/socket.io/",
		Transports:           []string{"polling", "websocket"},
		Upgrade:              true,
		Multiplex:            true,
		Reconnection:         true,
		ReconnectionAttempts: math.Inf(1),
		ReconnectionDelay:    delay,
		ReconnectionDelayMax: max,
		RandomizationFactor:  0.5,
		AutoConnect:          true,
	}
}

// Clone deep-copies the Query/ExtraHeaders/Transports so a later mutation by
// the caller cannot leak into an active Manager.
func (o ManagerOptions) Clone() ManagerOptions {
	clone := o
	if o.Query != nil {
		clone.Query = url.Values{}
		for k, vs := range o.Query {
			clone.Query[k] = append([]string(nil), vs...)
		}
	}
	if o.ExtraHeaders != nil {
		clone.ExtraHeaders = make(map[string][]string, len(o.ExtraHeaders))
		for k, vs := range o.ExtraHeaders {
			clone.ExtraHeaders[k] = append([]string(nil), vs...)
		}
	}
	clone.Transports = append([]string(nil), o.Transports...)
	if o.Timeout != nil {
		t := *o.Timeout
		clone.Timeout = &t
	}
	if o.TransportFactories != nil {
		clone.TransportFactories = make(map[string]func(transport.Options) transport.Transport, len(o.TransportFactories))
		for k, v := range o.TransportFactories {
			clone.TransportFactories[k] = v
		}
	}
	return clone
}

func clampReconnectionDelay(delay time.Duration) time.Duration {
	if delay < 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return delay
}

func clampRandomizationFactor(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// SocketOptions configures one namespace handle.
type SocketOptions struct {
	Auth map[string]any
}

// DefaultSocketOptions returns the zero-value configuration: no auth
// payload.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{}
}
