package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/parser"
	"github.com/haruntuncay/socket.io-client/pkg/log"
	"resty.dev/v3"
)

var pollingLog = log.NewLog("engine.io-client:polling")

// Polling is the HTTP long-polling transport: a single in-flight GET whose
// response body is the next payload, and a single in-flight POST whose
// body is an encoded payload of queued outgoing packets.
type Polling struct {
	*Base

	client *resty.Client

	polling    atomic.Bool
	sendMu     sync.Mutex
	sendBuffer []*packet.Packet

	pauseMu      sync.Mutex
	pauseWaiters []func()
}

// NewPolling constructs an idle Polling transport.
func NewPolling(opts Options) *Polling {
	client := resty.New()
	client.SetTimeout(20 * time.Second)
	p := &Polling{
		Base:   NewBase(opts),
		client: client,
	}
	return p
}

func (p *Polling) Name() string { return "polling" }

// Open starts the first poll cycle.
func (p *Polling) Open() {
	p.SetState(StateOpening)
	p.poll()
}

func (p *Polling) poll() {
	pollingLog.Debug("polling")
	p.polling.Store(true)
	p.Emit("poll")
	go p.doPoll()
}

func (p *Polling) doPoll() {
	resp, err := p.client.R().SetContext(context.Background()).
		SetHeaderMultiValues(p.opts.ExtraHeaders).
		Get(p.uri())
	if err != nil {
		p.OnAbruptClose(fmt.Errorf("fetch read error: %w", err))
		return
	}

	if resp.StatusCode() >= 300 {
		p.OnError("fetch read error", fmt.Errorf("unexpected status %d", resp.StatusCode()))
		return
	}

	p.onData(resp.Bytes(), isTextContentType(resp.Header().Get("Content-Type")))
}

func isTextContentType(ct string) bool {
	return ct == "" || bytes.HasPrefix([]byte(ct), []byte("text/plain"))
}

func (p *Polling) onData(data []byte, asText bool) {
	var (
		packets []*packet.Packet
		err     error
	)
	if asText {
		packets, err = parser.DecodeTextPayload(string(data))
	} else {
		packets, err = parser.DecodePayload(data)
	}
	if err != nil {
		p.OnError("parser error", err)
		return
	}

	for _, pk := range packets {
		p.onPacket(pk)
	}

	if p.State() == StateClosed {
		return
	}

	p.polling.Store(false)
	p.Emit("pollComplete")

	if p.State() == StateOpen {
		p.poll()
	} else {
		pollingLog.Debug("ignoring poll - transport state %q", p.State())
	}
}

func (p *Polling) onPacket(pk *packet.Packet) {
	if p.State() == StateOpening && pk.Type == packet.OPEN {
		p.OnOpen()
		p.flush()
	}
	if pk.Type == packet.CLOSE {
		p.OnClose(fmt.Errorf("transport closed by the server"))
		return
	}
	p.OnPacket(pk)
}

// Send enqueues packets in the send buffer. If the write channel is
// available, the whole buffer is drained as one POST; otherwise the
// packets wait until the in-flight POST returns and flushes the buffer
// that accumulated behind it.
func (p *Polling) Send(packets []*packet.Packet) {
	if p.State() != StateOpen && p.State() != StatePausing {
		pollingLog.Debug("transport is not open, discarding packets")
		return
	}

	p.sendMu.Lock()
	p.sendBuffer = append(p.sendBuffer, packets...)
	p.sendMu.Unlock()

	if p.Writable() {
		p.flush()
	}
}

// Flush forces a write cycle (a NOOP if the buffer is otherwise empty), so
// a caller can force a round trip without user-visible data to send.
func (p *Polling) Flush() {
	p.sendMu.Lock()
	empty := len(p.sendBuffer) == 0
	p.sendMu.Unlock()
	if empty {
		p.Send([]*packet.Packet{{Type: packet.NOOP}})
		return
	}
	if p.Writable() {
		p.flush()
	}
}

func (p *Polling) flush() {
	p.sendMu.Lock()
	if !p.Writable() || len(p.sendBuffer) == 0 {
		p.sendMu.Unlock()
		return
	}
	batch := p.sendBuffer
	p.sendBuffer = nil
	p.sendMu.Unlock()

	p.SetWritable(false)
	go p.write(batch)
}

func (p *Polling) write(packets []*packet.Packet) {
	data := parser.EncodePayload(packets)
	contentType := "text/plain; charset=UTF-8"
	if hasBinary(packets) {
		contentType = "application/octet-stream"
	}

	resp, err := p.client.R().SetContext(context.Background()).
		SetHeaderMultiValues(p.opts.ExtraHeaders).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post(p.uri())
	if err != nil {
		p.OnAbruptClose(fmt.Errorf("fetch write error: %w", err))
		return
	}
	if resp.StatusCode() >= 300 {
		p.OnError("fetch write error", fmt.Errorf("unexpected status %d", resp.StatusCode()))
		return
	}

	p.SetWritable(true)
	p.Emit("drain")
	p.runPauseWaiters()

	p.sendMu.Lock()
	pending := len(p.sendBuffer) > 0
	p.sendMu.Unlock()
	if pending {
		p.flush()
	}
}

func hasBinary(packets []*packet.Packet) bool {
	for _, pk := range packets {
		if pk.IsBinary {
			return true
		}
	}
	return false
}

// Pause waits until no write is in flight and the transport is writable,
// then marks the transport paused and invokes onPause. Unlike a busy-wait
// on writability, waiters are woken by signal (drain/pollComplete), never
// polled.
func (p *Polling) Pause(onPause func()) {
	p.SetState(StatePausing)

	pause := func() {
		pollingLog.Debug("paused")
		p.SetState(StatePaused)
		onPause()
	}

	needPoll := p.polling.Load()
	needWrite := !p.Writable()
	if !needPoll && !needWrite {
		pause()
		return
	}

	var remaining atomic.Int32
	remaining.Store(0)
	if needPoll {
		remaining.Add(1)
	}
	if needWrite {
		remaining.Add(1)
	}

	done := func() {
		if remaining.Add(-1) == 0 {
			pause()
		}
	}

	if needPoll {
		p.Once("pollComplete", func(...any) { done() })
	}
	if needWrite {
		p.addPauseWaiter(done)
	}
}

func (p *Polling) addPauseWaiter(fn func()) {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	p.pauseWaiters = append(p.pauseWaiters, fn)
}

func (p *Polling) runPauseWaiters() {
	p.pauseMu.Lock()
	waiters := p.pauseWaiters
	p.pauseWaiters = nil
	p.pauseMu.Unlock()
	for _, fn := range waiters {
		fn()
	}
}

// Unpause restores writability and flushes any packets queued while paused.
func (p *Polling) Unpause() {
	p.SetState(StateOpen)
	p.SetWritable(true)
	p.flush()
}

// Close sends a CLOSE packet (deferring until open if the handshake is
// still in flight) and tears down the HTTP client.
func (p *Polling) Close() {
	defer p.client.Close()

	cleanup := func(...any) {
		pollingLog.Debug("writing close packet")
		p.Send([]*packet.Packet{{Type: packet.CLOSE}})
	}
	if p.State() == StateOpen {
		cleanup()
	} else {
		p.Once("open", cleanup)
	}
}

func (p *Polling) uri() string {
	scheme := "http"
	if p.opts.Secure {
		scheme = "https"
	}
	query := p.mergedQuery()
	if p.opts.TimestampRequests {
		query.Set(p.opts.TimestampParam, randomString())
	}
	if p.opts.ForceBase64 && !query.Has("sid") {
		query.Set("b64", "1")
	}
	return p.CreateURI(scheme, query)
}

func randomString() string {
	var b [10]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
