package client

import (
	"errors"
	"fmt"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/transport"
	"github.com/haruntuncay/socket.io-client/pkg/events"
)

// multiHandle removes more than one registration as a single events.Handle.
type multiHandle []events.Handle

func (m multiHandle) Remove() {
	for _, h := range m {
		h.Remove()
	}
}

// probeAttempt tracks the bookkeeping for one in-flight upgrade probe: the
// auxiliary transport being tested, whether it has already been abandoned,
// and the handles that need removing on either success or failure.
type probeAttempt struct {
	transport          transport.Transport
	failed             bool
	packetHandle       events.Handle
	sessionCloseHandle events.Handle
}

// probe constructs an auxiliary transport of the given name, sends it a
// PING("probe") once it opens, and upgrades to it on a matching
// PONG("probe") - or abandons it on any other outcome. Only ever called on
// the worker goroutine.
func (s *Session) probe(name string) {
	sessionLog.Debug(`probing transport "%s"`, name)
	t := s.createTransport(name)
	if t == nil {
		return
	}

	pa := &probeAttempt{transport: t}
	s.Emit("upgradeAttempt", name)

	t.Once("open", func(...any) {
		s.worker.Submit(func() { s.onProbeOpen(pa) })
	})
	t.Once("error", func(args ...any) {
		var err error
		if len(args) > 0 {
			err, _ = args[0].(error)
		}
		s.worker.Submit(func() { s.onProbeFail(pa, fmt.Errorf("[%s] probe error: %w", name, err)) })
	})
	t.Once("close", func(...any) {
		s.worker.Submit(func() { s.onProbeFail(pa, fmt.Errorf("[%s] probe transport closed", name)) })
	})
	onSessionClose := func(...any) {
		s.worker.Submit(func() { s.onProbeFail(pa, errors.New("session closed during probe")) })
	}
	closeHandle := s.Once("close", onSessionClose)
	abruptHandle := s.Once("abruptClose", onSessionClose)
	pa.sessionCloseHandle = multiHandle{closeHandle, abruptHandle}

	t.Open()
}

func (s *Session) onProbeOpen(pa *probeAttempt) {
	if pa.failed {
		return
	}
	sessionLog.Debug(`probe transport "%s" opened`, pa.transport.Name())
	pa.transport.Send([]*packet.Packet{{Type: packet.PING, Text: "probe"}})
	pa.packetHandle = pa.transport.Once("packet", func(args ...any) {
		p, ok := args[0].(*packet.Packet)
		if !ok {
			return
		}
		s.worker.Submit(func() { s.onProbePacket(pa, p) })
	})
}

func (s *Session) onProbePacket(pa *probeAttempt, p *packet.Packet) {
	if pa.failed {
		return
	}
	if p.Type == packet.PONG && !p.IsBinary && p.Text == "probe" {
		s.onProbeSuccess(pa)
		return
	}
	s.onProbeFail(pa, fmt.Errorf("[%s] probe error: unexpected reply", pa.transport.Name()))
}

func (s *Session) onProbeSuccess(pa *probeAttempt) {
	if pa.failed || s.State() != StateOpen {
		s.onProbeFail(pa, errors.New("probe succeeded after the session stopped accepting an upgrade"))
		return
	}

	sessionLog.Debug(`probe transport "%s" pong`, pa.transport.Name())
	s.upgrading = true
	s.Emit("upgrading", pa.transport.Name())

	old := s.transport
	sessionLog.Debug(`pausing current transport "%s"`, old.Name())
	old.Pause(func() {
		s.worker.Submit(func() { s.finishUpgrade(pa, old) })
	})
}

func (s *Session) finishUpgrade(pa *probeAttempt, old transport.Transport) {
	if pa.failed {
		return
	}
	if s.State() == StateClosed || s.State() == StateAbruptlyClosed {
		return
	}

	pa.sessionCloseHandle.Remove()
	sessionLog.Debug("changing transport and sending upgrade packet")
	s.setTransport(pa.transport)
	pa.transport.Send([]*packet.Packet{{Type: packet.UPGRADE}})

	s.upgrading = false
	s.Emit("upgrade", pa.transport.Name())
	s.flush()
}

func (s *Session) onProbeFail(pa *probeAttempt, err error) {
	if pa.failed {
		return
	}
	pa.failed = true
	sessionLog.Debug("upgrade probe failed: %v", err)

	if pa.packetHandle != nil {
		pa.packetHandle.Remove()
	}
	if pa.sessionCloseHandle != nil {
		pa.sessionCloseHandle.Remove()
	}
	pa.transport.Close()

	if s.upgrading {
		s.upgrading = false
		if s.transport != nil {
			s.transport.Unpause()
		}
	}

	s.Emit("upgradeError", err)
}
