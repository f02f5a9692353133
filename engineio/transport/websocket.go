package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"
	"github.com/haruntuncay/socket.io-client/engineio/packet"
	"github.com/haruntuncay/socket.io-client/engineio/parser"
	"github.com/haruntuncay/socket.io-client/pkg/log"
)

var websocketLog = log.NewLog("engine.io-client:websocket")

// WebSocket is the full-duplex transport: one connection, text frames
// carrying text packets and binary frames carrying binary packets.
// Packets sent before the socket is OPEN are buffered and replayed on OPEN.
type WebSocket struct {
	*Base

	dialer *ws.Dialer
	conn   *ws.Conn
	connMu sync.Mutex

	bufferMu sync.Mutex
	buffered []*packet.Packet
}

// NewWebSocket constructs an idle WebSocket transport.
func NewWebSocket(opts Options) *WebSocket {
	return &WebSocket{
		Base:   NewBase(opts),
		dialer: &ws.Dialer{Proxy: http.ProxyFromEnvironment},
	}
}

func (w *WebSocket) Name() string { return "websocket" }

// Open dials the WebSocket connection and, once established, starts the
// read loop and replays any buffered packets.
func (w *WebSocket) Open() {
	w.SetState(StateOpening)

	headers := http.Header{}
	for k, vs := range w.opts.ExtraHeaders {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	conn, _, err := w.dialer.Dial(w.uri(), headers)
	if err != nil {
		w.Emit("error", fmt.Errorf("websocket dial: %w", err))
		return
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	go w.readLoop()

	w.OnOpen()
	w.flushBuffer()
}

func (w *WebSocket) readLoop() {
	for {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()
		if conn == nil {
			return
		}

		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err) || errors.Is(err, net.ErrClosed) {
				w.OnAbruptClose(fmt.Errorf("websocket connection closed: %w", err))
			} else {
				w.OnError("websocket read error", err)
			}
			return
		}

		switch mt {
		case ws.TextMessage:
			p, err := parser.DecodePacket(data, true)
			if err != nil {
				w.OnError("parser error", err)
				continue
			}
			if p.Type == packet.CLOSE {
				w.OnClose(fmt.Errorf("transport closed by the server"))
				return
			}
			w.OnPacket(p)
		case ws.BinaryMessage:
			p, err := parser.DecodePacket(data, false)
			if err != nil {
				w.OnError("parser error", err)
				continue
			}
			w.OnPacket(p)
		case ws.CloseMessage:
			w.OnClose(nil)
			return
		}
	}
}

// Send transmits packets immediately if OPEN, or buffers them for replay
// on the next successful Open.
func (w *WebSocket) Send(packets []*packet.Packet) {
	if w.State() != StateOpen {
		w.bufferMu.Lock()
		w.buffered = append(w.buffered, packets...)
		w.bufferMu.Unlock()
		return
	}
	w.write(packets)
}

func (w *WebSocket) flushBuffer() {
	w.bufferMu.Lock()
	batch := w.buffered
	w.buffered = nil
	w.bufferMu.Unlock()
	if len(batch) > 0 {
		w.write(batch)
	}
}

func (w *WebSocket) write(packets []*packet.Packet) {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	if conn == nil {
		return
	}

	for _, p := range packets {
		frame := parser.EncodePacket(p)
		mt := ws.TextMessage
		if p.IsBinary {
			mt = ws.BinaryMessage
		}
		if err := conn.WriteMessage(mt, frame); err != nil {
			if errors.Is(err, net.ErrClosed) {
				w.OnAbruptClose(fmt.Errorf("websocket write: %w", err))
			} else {
				w.OnError("websocket write error", err)
			}
			return
		}
	}
	w.Emit("drain")
}

// Pause is a no-op for WebSocket: it is never the transport being paused
// during an upgrade, only ever the upgrade target.
func (w *WebSocket) Pause(onPause func()) {
	onPause()
}

// Unpause is a no-op for WebSocket, for the same reason Pause is.
func (w *WebSocket) Unpause() {}

// Close sends an Engine.IO CLOSE frame when the client initiates closing,
// then tears down the connection.
func (w *WebSocket) Close() {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()
	if conn == nil {
		return
	}
	if w.State() == StateOpen {
		_ = conn.WriteMessage(ws.TextMessage, parser.EncodePacket(&packet.Packet{Type: packet.CLOSE}))
	}
	_ = conn.Close()
}

func (w *WebSocket) uri() string {
	scheme := "ws"
	if w.opts.Secure {
		scheme = "wss"
	}
	query := w.mergedQuery()
	if w.opts.TimestampRequests {
		query.Set(w.opts.TimestampParam, randomString())
	}
	if w.opts.ForceBase64 {
		query.Set("b64", "1")
	}
	return w.CreateURI(scheme, query)
}
