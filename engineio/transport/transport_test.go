package transport

import (
	"strings"
	"testing"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
)

func TestCreateURIDefaultPortOmitted(t *testing.T) {
	b := NewBase(Options{Secure: false, Hostname: "example.com", Port: "80", Path: "/engine.io/"})
	uri := b.CreateURI("http", nil)
	if uri != "http://example.com/engine.io/" {
		t.Fatalf("got %q", uri)
	}
}

func TestCreateURINonDefaultPortKept(t *testing.T) {
	b := NewBase(Options{Secure: true, Hostname: "example.com", Port: "8443", Path: "/engine.io/"})
	uri := b.CreateURI("https", nil)
	if uri != "https://example.com:8443/engine.io/" {
		t.Fatalf("got %q", uri)
	}
}

func TestCreateURIIPv6HostBracketed(t *testing.T) {
	b := NewBase(Options{Hostname: "::1", Port: "3000", Path: "/engine.io/"})
	uri := b.CreateURI("http", nil)
	if !strings.HasPrefix(uri, "http://[::1]:3000") {
		t.Fatalf("got %q", uri)
	}
}

func TestPollingPauseWaitsForWriteInFlight(t *testing.T) {
	p := NewPolling(Options{Hostname: "example.com", Path: "/engine.io/"})
	p.SetState(StateOpen)
	p.SetWritable(false) // simulate a write in flight

	paused := make(chan struct{})
	p.Pause(func() { close(paused) })

	select {
	case <-paused:
		t.Fatal("pause fired before the in-flight write drained")
	default:
	}

	p.SetWritable(true)
	p.runPauseWaiters()

	select {
	case <-paused:
	default:
		t.Fatal("pause never fired after drain")
	}
}

func TestPollingPauseImmediateWhenIdle(t *testing.T) {
	p := NewPolling(Options{Hostname: "example.com", Path: "/engine.io/"})
	p.SetState(StateOpen)
	p.SetWritable(true)

	paused := false
	p.Pause(func() { paused = true })
	if !paused {
		t.Fatal("expected immediate pause when nothing in flight")
	}
	if p.State() != StatePaused {
		t.Fatalf("got state %v, want paused", p.State())
	}
}

func TestWebSocketBuffersBeforeOpen(t *testing.T) {
	w := NewWebSocket(Options{Hostname: "example.com", Path: "/engine.io/"})
	// Not open yet: Send should buffer rather than attempt a nil-conn write.
	w.Send([]*packet.Packet{packet.NewText(packet.MESSAGE, "hi")})
	if len(w.buffered) != 1 {
		t.Fatalf("expected 1 buffered packet, got %d", len(w.buffered))
	}
}
