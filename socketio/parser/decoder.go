package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/haruntuncay/socket.io-client/pkg/events"
)

// Decoder turns a stream of text/binary frames back into Packets. It is
// stateful: a BINARY_EVENT or BINARY_ACK header frame puts the decoder into
// a "reconstructing" mode where it expects exactly AttachmentSize raw
// binary frames before the next text frame is accepted. It emits "decoded"
// with the completed *Packet, or "error" with the error that forced it to
// give up.
//
// Decoder is not safe for concurrent use; callers serialize Add calls
// themselves (the engine session's worker does this upstream).
type Decoder struct {
	*events.Observable

	pending     *Packet
	attachments [][]byte
}

// NewDecoder returns an idle decoder.
func NewDecoder() *Decoder {
	return &Decoder{Observable: events.NewObservable()}
}

// AddText feeds one text frame (the header of every packet, binary or not)
// into the decoder.
func (d *Decoder) AddText(s string) error {
	if d.pending != nil {
		err := fmt.Errorf("socketio/parser: got text frame while reconstructing a binary packet")
		d.Emit("error", err)
		return err
	}
	p, err := decodeHeader(s)
	if err != nil {
		d.Emit("error", err)
		return err
	}
	if p.Type == BINARY_EVENT || p.Type == BINARY_ACK {
		if p.AttachmentSize == 0 {
			d.Emit("decoded", p)
			return nil
		}
		d.pending = p
		d.attachments = make([][]byte, 0, p.AttachmentSize)
		return nil
	}
	d.Emit("decoded", p)
	return nil
}

// AddBinary feeds one raw attachment frame into the decoder. It is only
// valid while a BINARY_EVENT/BINARY_ACK header is pending reconstruction.
// Once the declared attachment count has arrived, the pending packet's
// placeholders are substituted and "decoded" fires.
func (d *Decoder) AddBinary(data []byte) error {
	if d.pending == nil {
		err := errors.New("socketio/parser: got binary frame while not reconstructing a packet")
		d.Emit("error", err)
		return err
	}

	d.attachments = append(d.attachments, data)
	if len(d.attachments) < d.pending.AttachmentSize {
		return nil
	}

	p := d.pending
	tree, err := reconstruct(p.Data, d.attachments)
	d.pending, d.attachments = nil, nil
	if err != nil {
		d.Emit("error", err)
		return err
	}
	p.Data = tree
	d.Emit("decoded", p)
	return nil
}

// decodeHeader parses a packet's text header: tag digit, optional
// "<n>-" attachment count, optional "<namespace>," and numeric id, then
// trailing JSON data.
func decodeHeader(s string) (*Packet, error) {
	if len(s) == 0 {
		return nil, errors.New("socketio/parser: empty packet")
	}

	t := Type(s[0] - '0')
	if !t.Valid() {
		return nil, fmt.Errorf("socketio/parser: unknown packet type %q", s[0])
	}
	rest := s[1:]

	p := &Packet{Type: t, Namespace: DefaultNamespace, Id: NoAck}

	if t == BINARY_EVENT || t == BINARY_ACK {
		dash := strings.IndexByte(rest, '-')
		if dash < 0 {
			return nil, errors.New("socketio/parser: missing attachment count terminator")
		}
		n, err := strconv.Atoi(rest[:dash])
		if err != nil {
			return nil, fmt.Errorf("socketio/parser: invalid attachment count %q", rest[:dash])
		}
		p.AttachmentSize = n
		rest = rest[dash+1:]
	}

	if strings.HasPrefix(rest, "/") {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			return nil, errors.New("socketio/parser: missing namespace terminator")
		}
		p.Namespace = rest[:comma]
		rest = rest[comma+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return nil, fmt.Errorf("socketio/parser: invalid id %q", rest[:digits])
		}
		p.Id = id
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		var payload any
		if err := json.Unmarshal([]byte(rest), &payload); err != nil {
			return nil, fmt.Errorf("socketio/parser: invalid JSON payload: %w", err)
		}
		if !payloadValid(t, payload) {
			return nil, fmt.Errorf("socketio/parser: payload shape invalid for %s", t)
		}
		p.Data = payload
	}

	return p, nil
}

// Destroy abandons any in-progress binary reconstruction, e.g. because the
// underlying transport closed mid-packet.
func (d *Decoder) Destroy() {
	d.pending = nil
	d.attachments = nil
}

func payloadValid(t Type, payload any) bool {
	switch t {
	case CONNECT:
		_, ok := payload.(map[string]any)
		return ok || payload == nil
	case DISCONNECT:
		return payload == nil
	case EVENT, BINARY_EVENT:
		arr, ok := payload.([]any)
		return ok && len(arr) > 0
	case ACK, BINARY_ACK:
		_, ok := payload.([]any)
		return ok
	case ERROR:
		return true
	}
	return false
}
