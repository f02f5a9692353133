package client

import (
	"testing"
	"time"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/transport"
)

// fakeTransport is a stand-in transport driven entirely by direct method
// calls from the test, so the session's reaction to packets/open/close can
// be exercised without a real socket.
type fakeTransport struct {
	*transport.Base
	name        string
	sent        [][]*packet.Packet
	pauseCalled bool
}

func newFakeTransport(name string, opts transport.Options) *fakeTransport {
	return &fakeTransport{Base: transport.NewBase(opts), name: name}
}

func (f *fakeTransport) Name() string { return f.name }
func (f *fakeTransport) Open()        { f.OnOpen() }
func (f *fakeTransport) Close()       { f.SetState(transport.StateClosed) }
func (f *fakeTransport) Send(packets []*packet.Packet) {
	f.sent = append(f.sent, packets)
}
func (f *fakeTransport) Pause(onPause func()) {
	f.pauseCalled = true
	f.SetState(transport.StatePaused)
	onPause()
}
func (f *fakeTransport) Unpause() { f.SetState(transport.StateOpen) }

// waitUntil round-trips through the session's worker until cond is true or
// the deadline passes, draining any work the worker itself queues as a
// reaction to what already ran (a single round trip only guarantees tasks
// queued *before* it; nested submits need another pass).
func waitUntil(t *testing.T, s *Session, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		done := make(chan struct{})
		s.worker.Submit(func() { close(done) })
		<-done
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestOptions(upgrade bool, names ...string) Options {
	opts := DefaultOptions()
	opts.Transports = names
	opts.Upgrade = upgrade
	opts.Hostname = "example.com"
	return opts
}

const openHandshake = `{"sid":"s1","pingInterval":25000,"pingTimeout":5000,"upgrades":["websocket"]}`

func TestHandshakeOpensSessionAndBindsSid(t *testing.T) {
	s := New(newTestOptions(false, "polling"))
	var ft *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		ft = newFakeTransport("polling", o)
		return ft
	})

	s.Open()
	waitUntil(t, s, func() bool { return ft != nil })

	ft.OnPacket(&packet.Packet{Type: packet.OPEN, Text: openHandshake})
	waitUntil(t, s, func() bool { return s.State() == StateOpen })

	if s.ID() != "s1" {
		t.Fatalf("session id = %q, want s1", s.ID())
	}
	if ft.Query().Get("sid") != "s1" {
		t.Fatalf("transport query sid = %q, want s1", ft.Query().Get("sid"))
	}
}

func TestInvalidHandshakeFailsSession(t *testing.T) {
	s := New(newTestOptions(false, "polling"))
	var ft *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		ft = newFakeTransport("polling", o)
		return ft
	})

	s.Open()
	waitUntil(t, s, func() bool { return ft != nil })

	ft.OnPacket(&packet.Packet{Type: packet.OPEN, Text: `{"sid":"s1"}`}) // missing pingInterval etc.
	waitUntil(t, s, func() bool { return s.State() == StateAbruptlyClosed })
}

func TestPingTimeoutFailsSession(t *testing.T) {
	s := New(newTestOptions(false, "polling"))
	var ft *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		ft = newFakeTransport("polling", o)
		return ft
	})

	s.Open()
	waitUntil(t, s, func() bool { return ft != nil })
	ft.OnPacket(&packet.Packet{Type: packet.OPEN, Text: `{"sid":"s1","pingInterval":25000,"pingTimeout":5000,"upgrades":[]}`})
	waitUntil(t, s, func() bool { return s.State() == StateOpen })

	s.worker.Submit(s.onPingTimeout)
	waitUntil(t, s, func() bool { return s.State() == StateAbruptlyClosed })
}

func TestPongCancelsPingTimeout(t *testing.T) {
	s := New(newTestOptions(false, "polling"))
	var ft *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		ft = newFakeTransport("polling", o)
		return ft
	})

	s.Open()
	waitUntil(t, s, func() bool { return ft != nil })
	ft.OnPacket(&packet.Packet{Type: packet.OPEN, Text: `{"sid":"s1","pingInterval":25000,"pingTimeout":5000,"upgrades":[]}`})
	waitUntil(t, s, func() bool { return s.State() == StateOpen })

	s.worker.Submit(s.sendPing)
	waitUntil(t, s, func() bool {
		for _, batch := range ft.sent {
			for _, p := range batch {
				if p.Type == packet.PING {
					return true
				}
			}
		}
		return false
	})

	ft.OnPacket(&packet.Packet{Type: packet.PONG})
	waitUntil(t, s, func() bool { return s.pingTimeoutTimer == nil })
	if s.State() != StateOpen {
		t.Fatalf("state = %v, want open", s.State())
	}
}

func TestProbeUpgradesTransport(t *testing.T) {
	s := New(newTestOptions(true, "polling", "websocket"))
	var pollingFT, wsFT *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		pollingFT = newFakeTransport("polling", o)
		return pollingFT
	})
	s.SetTransportFactory("websocket", func(o transport.Options) transport.Transport {
		wsFT = newFakeTransport("websocket", o)
		return wsFT
	})

	s.Open()
	waitUntil(t, s, func() bool { return pollingFT != nil })

	pollingFT.OnPacket(&packet.Packet{Type: packet.OPEN, Text: openHandshake})
	waitUntil(t, s, func() bool { return wsFT != nil })

	waitUntil(t, s, func() bool {
		for _, batch := range wsFT.sent {
			for _, p := range batch {
				if p.Type == packet.PING && p.Text == "probe" {
					return true
				}
			}
		}
		return false
	})

	wsFT.OnPacket(&packet.Packet{Type: packet.PONG, Text: "probe"})
	waitUntil(t, s, func() bool { return s.transport == wsFT })

	if !pollingFT.pauseCalled {
		t.Fatal("expected old transport to be paused during upgrade")
	}
	if s.upgrading {
		t.Fatal("upgrading flag left set after upgrade completed")
	}

	foundUpgrade := false
	for _, batch := range wsFT.sent {
		for _, p := range batch {
			if p.Type == packet.UPGRADE {
				foundUpgrade = true
			}
		}
	}
	if !foundUpgrade {
		t.Fatal("expected an UPGRADE packet sent over the new transport")
	}
}

func TestFailedProbeLeavesOriginalTransportInPlace(t *testing.T) {
	s := New(newTestOptions(true, "polling", "websocket"))
	var pollingFT, wsFT *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		pollingFT = newFakeTransport("polling", o)
		return pollingFT
	})
	s.SetTransportFactory("websocket", func(o transport.Options) transport.Transport {
		wsFT = newFakeTransport("websocket", o)
		return wsFT
	})

	s.Open()
	waitUntil(t, s, func() bool { return pollingFT != nil })
	pollingFT.OnPacket(&packet.Packet{Type: packet.OPEN, Text: openHandshake})
	waitUntil(t, s, func() bool { return wsFT != nil })
	waitUntil(t, s, func() bool { return len(wsFT.sent) > 0 })

	// Anything other than PONG("probe") aborts the probe.
	wsFT.OnPacket(&packet.Packet{Type: packet.MESSAGE, Text: "not a probe reply"})
	waitUntil(t, s, func() bool { return wsFT.State() == transport.StateClosed })

	if s.transport != pollingFT {
		t.Fatal("original transport should still be current after a failed probe")
	}
	if s.upgrading {
		t.Fatal("upgrading flag should be cleared after a failed probe")
	}
}

func TestCloseIsOrderlyAndClearsSessionID(t *testing.T) {
	s := New(newTestOptions(false, "polling"))
	var ft *fakeTransport
	s.SetTransportFactory("polling", func(o transport.Options) transport.Transport {
		ft = newFakeTransport("polling", o)
		return ft
	})

	s.Open()
	waitUntil(t, s, func() bool { return ft != nil })
	ft.OnPacket(&packet.Packet{Type: packet.OPEN, Text: `{"sid":"s1","pingInterval":25000,"pingTimeout":5000,"upgrades":[]}`})
	waitUntil(t, s, func() bool { return s.State() == StateOpen })

	s.Close()
	waitUntil(t, s, func() bool { return s.State() == StateClosed })
	if s.ID() != "" {
		t.Fatalf("session id = %q, want cleared after close", s.ID())
	}
}
