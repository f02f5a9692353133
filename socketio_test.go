package socketio

import (
	"testing"

	"github.com/haruntuncay/socket.io-client/socketio/client"
)

func resetRegistry() {
	registryMu.Lock()
	registry = map[string]*client.Manager{}
	registryMu.Unlock()
}

func TestOfInterpretsPathAsNamespace(t *testing.T) {
	c := Of("http://example.com:1234/chat")
	if c.err != nil {
		t.Fatalf("Of: %v", c.err)
	}
	if c.nsp != "/chat" {
		t.Fatalf("nsp = %q, want /chat", c.nsp)
	}
}

func TestOfDefaultsNamespaceToRoot(t *testing.T) {
	c := Of("http://example.com:1234")
	if c.nsp != "/" {
		t.Fatalf("nsp = %q, want /", c.nsp)
	}
}

func TestOfSharesManagerAcrossDistinctNamespaces(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	opts := client.DefaultManagerOptions()
	opts.AutoConnect = false

	m1, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/a", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}
	m1.Socket("/a", client.DefaultSocketOptions())

	m2, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/b", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}

	if m1 != m2 {
		t.Fatal("expected the same Manager to be reused for a second namespace on the same host:port<path>")
	}
	if len(registry) != 1 {
		t.Fatalf("registry size = %d, want 1", len(registry))
	}
}

func TestOfSameNamespaceForcesNewManager(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	opts := client.DefaultManagerOptions()
	opts.AutoConnect = false

	m1, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/a", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}
	m1.Socket("/a", client.DefaultSocketOptions())

	m2, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/a", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}

	if m1 == m2 {
		t.Fatal("a second request for the exact same namespace must get an independent Manager")
	}
}

func TestOfNoMultiplexAlwaysGetsFreshManager(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	opts := client.DefaultManagerOptions()
	opts.AutoConnect = false
	opts.ForceNew = true

	m1, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/a", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}
	m2, err := lookupManager("example.com:80/socket.io/", "http://example.com:80", "/a", opts)
	if err != nil {
		t.Fatalf("lookupManager: %v", err)
	}

	if m1 == m2 {
		t.Fatal("ForceNew must bypass the registry")
	}
	if len(registry) != 0 {
		t.Fatalf("registry size = %d, want 0 with ForceNew", len(registry))
	}
}
