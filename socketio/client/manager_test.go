package client

import (
	"testing"
	"time"

	enginepacket "github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/transport"
	"github.com/haruntuncay/socket.io-client/socketio/parser"
)

// fakeTransport is a stand-in transport driven entirely by direct method
// calls from the test, mirroring engineio/client's own test double.
type fakeTransport struct {
	*transport.Base
	name string
	sent [][]*enginepacket.Packet
}

func newFakeTransport(name string, opts transport.Options) *fakeTransport {
	return &fakeTransport{Base: transport.NewBase(opts), name: name}
}

func (f *fakeTransport) Name() string { return f.name }
func (f *fakeTransport) Open()        { f.OnOpen() }
func (f *fakeTransport) Close()       { f.SetState(transport.StateClosed) }
func (f *fakeTransport) Send(packets []*enginepacket.Packet) {
	f.sent = append(f.sent, packets)
}
func (f *fakeTransport) Pause(onPause func()) { onPause() }
func (f *fakeTransport) Unpause()             {}

const openHandshake = `{"sid":"s1","pingInterval":25000,"pingTimeout":5000,"upgrades":[]}`

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestManager(t *testing.T) (*Manager, func() *fakeTransport) {
	t.Helper()
	opts := DefaultManagerOptions()
	opts.AutoConnect = false
	opts.Transports = []string{"polling"}
	opts.Upgrade = false

	var ft *fakeTransport
	opts.TransportFactories = map[string]func(transport.Options) transport.Transport{
		"polling": func(o transport.Options) transport.Transport {
			ft = newFakeTransport("polling", o)
			return ft
		},
	}

	m, err := New("http://example.com", opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, func() *fakeTransport { return ft }
}

func TestManagerOpenEmitsOpenOnHandshake(t *testing.T) {
	m, getFT := newTestManager(t)

	opened := false
	m.On("open", func(...any) { opened = true })

	m.Open(nil)
	waitFor(t, func() bool { return getFT() != nil })
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.OPEN, Text: openHandshake})

	waitFor(t, func() bool { return m.ReadyState() == ReadyStateOpen })
	if !opened {
		t.Fatal("expected \"open\" to have been emitted")
	}
}

func TestManagerRoutesMessagePacketsToDecodedPacketEvent(t *testing.T) {
	m, getFT := newTestManager(t)

	var got *parser.Packet
	m.On("packet", func(args ...any) {
		if len(args) > 0 {
			got, _ = args[0].(*parser.Packet)
		}
	})

	m.Open(nil)
	waitFor(t, func() bool { return getFT() != nil })
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.OPEN, Text: openHandshake})
	waitFor(t, func() bool { return m.ReadyState() == ReadyStateOpen })

	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.MESSAGE, Text: `2["hello","world"]`})
	waitFor(t, func() bool { return got != nil })

	if got.Type != parser.EVENT {
		t.Fatalf("packet type = %v, want EVENT", got.Type)
	}
}

func TestManagerIgnoresNonMessageEnginePackets(t *testing.T) {
	m, getFT := newTestManager(t)

	var gotPacket bool
	m.On("packet", func(...any) { gotPacket = true })

	m.Open(nil)
	waitFor(t, func() bool { return getFT() != nil })
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.OPEN, Text: openHandshake})
	waitFor(t, func() bool { return m.ReadyState() == ReadyStateOpen })

	// PING/PONG never reach the Socket.IO decoder.
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.PONG})
	time.Sleep(10 * time.Millisecond)
	if gotPacket {
		t.Fatal("PONG should not be routed to \"packet\"")
	}
}

func TestManagerAbruptCloseTriggersReconnectAttempt(t *testing.T) {
	m, getFT := newTestManager(t)
	m.backoff.SetMin(1)
	m.backoff.SetMax(5)

	attempted := make(chan struct{}, 1)
	m.On("reconnect_attempt", func(...any) {
		select {
		case attempted <- struct{}{}:
		default:
		}
	})

	m.Open(nil)
	waitFor(t, func() bool { return getFT() != nil })
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.OPEN, Text: openHandshake})
	waitFor(t, func() bool { return m.ReadyState() == ReadyStateOpen })

	getFT().SetState(transport.StateAbruptlyClosed)
	getFT().Emit("close", nil)

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reconnect_attempt after abrupt close")
	}
}

func TestManagerClientCloseSkipsReconnect(t *testing.T) {
	m, getFT := newTestManager(t)

	reconnectAttempted := false
	m.On("reconnect_attempt", func(...any) { reconnectAttempted = true })

	m.Open(nil)
	waitFor(t, func() bool { return getFT() != nil })
	getFT().OnPacket(&enginepacket.Packet{Type: enginepacket.OPEN, Text: openHandshake})
	waitFor(t, func() bool { return m.ReadyState() == ReadyStateOpen })

	m.Disconnect()
	waitFor(t, func() bool { return m.ReadyState() == ReadyStateClosed })

	time.Sleep(20 * time.Millisecond)
	if reconnectAttempted {
		t.Fatal("client-initiated close must not reconnect")
	}
	if m.WillReconnect() {
		t.Fatal("WillReconnect should be false after a client-initiated close")
	}
}
