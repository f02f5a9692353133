// Package socketio is a Socket.IO client in Go: real-time, bidirectional,
// event-based communication with a Socket.IO v3 server (Engine.IO protocol
// version 3).
//
// Example usage:
//
//	sock, err := socketio.Of("http://localhost:8080/chat").Socket()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sock.On("connect", func(...any) {
//	    sock.Emit("hello", "world")
//	})
package socketio

import (
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/haruntuncay/socket.io-client/engineio/transport"
	"github.com/haruntuncay/socket.io-client/pkg/log"
	"github.com/haruntuncay/socket.io-client/socketio/client"
)

var clientLog = log.NewLog("socket.io-client")

// Configurator builds a Socket from a target URL, fluently. The URL's path
// component names the Socket.IO namespace to join, per spec.md §6 - it is
// not a request path. The actual HTTP/WebSocket request path comes from
// Path (default "/socket.io/").
type Configurator struct {
	rawURL string
	nsp    string
	opts   client.ManagerOptions
	auth   map[string]any
	err    error
}

// Of begins configuring a connection to rawURL. The URL's path becomes the
// namespace ("/" if empty); scheme, host, and port become the Manager's
// connection target.
func Of(rawURL string) *Configurator {
	c := &Configurator{rawURL: rawURL, opts: client.DefaultManagerOptions()}

	u, err := url.Parse(rawURL)
	if err != nil {
		c.err = fmt.Errorf("socketio: invalid url %q: %w", rawURL, err)
		return c
	}
	c.nsp = u.Path
	if c.nsp == "" {
		c.nsp = "/"
	}
	return c
}

// Path overrides the Socket.IO request path (default "/socket.io/").
func (c *Configurator) Path(p string) *Configurator {
	c.opts.Path = p
	return c
}

// Query adds a query string parameter sent with every handshake/poll.
func (c *Configurator) Query(key, value string) *Configurator {
	if c.opts.Query == nil {
		c.opts.Query = url.Values{}
	}
	c.opts.Query.Add(key, value)
	return c
}

// Header adds an extra HTTP header sent with every request.
func (c *Configurator) Header(key, value string) *Configurator {
	if c.opts.ExtraHeaders == nil {
		c.opts.ExtraHeaders = map[string][]string{}
	}
	c.opts.ExtraHeaders[key] = append(c.opts.ExtraHeaders[key], value)
	return c
}

// NoMultiplex bypasses the shared-Manager registry: this Socket always gets
// its own, private connection.
func (c *Configurator) NoMultiplex() *Configurator {
	c.opts.ForceNew = true
	return c
}

// NoReconnect disables the Manager's automatic reconnect loop.
func (c *Configurator) NoReconnect() *Configurator {
	c.opts.Reconnection = false
	return c
}

// PollingOnly restricts the Manager to HTTP long-polling, never probing for
// a WebSocket upgrade.
func (c *Configurator) PollingOnly() *Configurator {
	c.opts.Transports = []string{"polling"}
	c.opts.Upgrade = false
	return c
}

// WebSocketOnly restricts the Manager to WebSocket, skipping the polling
// handshake entirely.
func (c *Configurator) WebSocketOnly() *Configurator {
	c.opts.Transports = []string{"websocket"}
	c.opts.Upgrade = false
	return c
}

// CallFactory overrides the constructor used for the named transport, the
// Go analogue of the browser client's `transports` option accepting a
// custom implementation.
func (c *Configurator) CallFactory(name string, factory func(transport.Options) transport.Transport) *Configurator {
	if c.opts.TransportFactories == nil {
		c.opts.TransportFactories = map[string]func(transport.Options) transport.Transport{}
	}
	c.opts.TransportFactories[name] = factory
	return c
}

// WebSocketFactory is sugar for CallFactory("websocket", factory).
func (c *Configurator) WebSocketFactory(factory func(transport.Options) transport.Transport) *Configurator {
	return c.CallFactory("websocket", factory)
}

// Auth sets the payload sent with this namespace's CONNECT packet.
func (c *Configurator) Auth(data map[string]any) *Configurator {
	c.auth = data
	return c
}

// Socket resolves (or creates) a Manager for this target and returns the
// Socket for the configured namespace, per the registry rules in spec.md §8
// scenario 6 and §9.
func (c *Configurator) Socket() (*client.Socket, error) {
	if c.err != nil {
		return nil, c.err
	}

	u, err := url.Parse(c.rawURL)
	if err != nil {
		return nil, fmt.Errorf("socketio: invalid url %q: %w", c.rawURL, err)
	}

	path := c.opts.Path
	if path == "" {
		path = "/socket.io/"
	}

	hostname := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}

	managerURI := fmt.Sprintf("%s://%s", u.Scheme, net.JoinHostPort(hostname, port))
	key := net.JoinHostPort(hostname, port) + path

	m, err := lookupManager(key, managerURI, c.nsp, c.opts)
	if err != nil {
		return nil, err
	}

	sockOpts := client.DefaultSocketOptions()
	sockOpts.Auth = c.auth
	return m.Socket(c.nsp, sockOpts), nil
}

// Connect is sugar for Of(rawURL).Socket().
func Connect(rawURL string) (*client.Socket, error) {
	return Of(rawURL).Socket()
}

var (
	registryMu sync.Mutex
	registry   = map[string]*client.Manager{}
)

// lookupManager implements the "one Manager per host[:port]<path>, unless
// forced or already serving this namespace" rule. The registry mutex is
// held across the whole check-then-construct-then-store sequence (not just
// the lookup) so two racing callers for the same key cannot each construct
// and auto-open a duplicate Manager before either notices the other won;
// Manager construction itself is cheap (it starts a session asynchronously
// and returns), so holding the lock across it does not stall unrelated
// keys for long.
func lookupManager(key, managerURI, nsp string, opts client.ManagerOptions) (*client.Manager, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	cached, hasCached := registry[key]
	sameNamespace := hasCached && cached.HasNamespace(nsp)

	// newConnection mirrors the teacher's own condition: force a fresh,
	// uncached Manager when the caller opted out of multiplexing, or when
	// the cached Manager for this key is already serving this exact
	// namespace.
	newConnection := opts.ForceNew || !opts.Multiplex || sameNamespace

	if !newConnection && hasCached {
		clientLog.Debug("reusing cached manager for %s", key)
		return cached, nil
	}

	clientLog.Debug("new manager instance for %s", key)
	m, err := client.New(managerURI, opts)
	if err != nil {
		return nil, err
	}

	if !newConnection {
		registry[key] = m
		registerDeregistration(key, m)
	}
	return m, nil
}

// registerDeregistration removes m from the registry once it reaches a
// terminal close, so a later Of() for the same key gets a fresh Manager.
// A reconnect-eligible abrupt close also fires "close", so deregistration
// only happens when the close is genuinely terminal: client-initiated
// (skipReconnect already set) or reconnection is disabled; "reconnect_failed"
// (retries exhausted) always deregisters.
func registerDeregistration(key string, m *client.Manager) {
	var closeHandle, failHandle func()
	deregister := func() {
		registryMu.Lock()
		if registry[key] == m {
			delete(registry, key)
		}
		registryMu.Unlock()
		if closeHandle != nil {
			closeHandle()
		}
		if failHandle != nil {
			failHandle()
		}
	}

	closeHandle = m.On("close", func(...any) {
		if !m.WillReconnect() {
			deregister()
		}
	}).Remove
	failHandle = m.On("reconnect_failed", func(...any) {
		deregister()
	}).Remove
}
