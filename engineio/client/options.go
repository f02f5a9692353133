package client

import "net/url"

// Options configures an Engine Session: which transports to try and in
// what order, whether to attempt the websocket upgrade, and the connection
// target handed down to every transport it creates.
type Options struct {
	Secure       bool
	Hostname     string
	Port         string
	Path         string
	Query        url.Values
	ExtraHeaders map[string][]string

	// Transports lists the transport names to try, in preference order.
	// The first entry is used to open the session; Upgrade controls
	// whether a websocket probe is attempted when this list and the
	// server's advertised upgrades both include "websocket". No other
	// transport is ever probed.
	Transports []string
	Upgrade    bool

	ForceBase64       bool
	TimestampRequests bool
	TimestampParam    string
}

// DefaultOptions returns the Engine Session's own defaults: long-polling
// first, upgrading to websocket, `t` as the cache-buster query key, and
// `/engine.io/` as the request path. A Manager starts from these and
// overrides Path (default `/socket.io/`), Query, headers, transports and
// Upgrade with its own options.
func DefaultOptions() Options {
	return Options{
		Path:           "/engine.io/",
		Transports:     []string{"polling", "websocket"},
		Upgrade:        true,
		TimestampParam: "t",
	}
}

// Clone returns a deep-enough copy so a Manager can hand Options to a
// Session without the caller's later mutation of the Query/ExtraHeaders
// maps leaking into an active session (spec.md §5's "Config object is
// cloned before being handed to a Manager").
func (o Options) Clone() Options {
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
	return clone
}
