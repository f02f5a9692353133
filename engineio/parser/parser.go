// Package parser implements the Engine.IO wire codec: single-packet framing
// used by the WebSocket transport, and length-prefixed payload framing used
// by the polling transport. It targets protocol version 3, the version
// negotiated via the EIO query parameter against a reference Socket.IO v3
// server.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
)

// Protocol is the Engine.IO protocol version this codec speaks.
const Protocol = 3

var (
	ErrTruncated    = errors.New("engineio/parser: truncated payload")
	ErrInvalidType  = errors.New("engineio/parser: invalid packet type")
	ErrInvalidFrame = errors.New("engineio/parser: invalid frame")
)

// EncodePacket produces the single-frame encoding used when sending one
// packet directly over a message-oriented transport (WebSocket). A text
// payload encodes as the ASCII type digit followed by the text; a binary
// payload encodes as the raw type value followed by the bytes.
func EncodePacket(p *packet.Packet) []byte {
	if p.IsBinary {
		out := make([]byte, 1+len(p.Binary))
		out[0] = byte(p.Type)
		copy(out[1:], p.Binary)
		return out
	}
	return append([]byte{p.Type.ByteDigit()}, p.Text...)
}

// DecodePacket is the inverse of EncodePacket. asText selects whether buf
// should be interpreted using the text framing (ASCII digit tag) or the
// binary framing (raw tag byte); a WebSocket transport knows this from the
// frame opcode it received the bytes on.
func DecodePacket(buf []byte, asText bool) (*packet.Packet, error) {
	if len(buf) == 0 {
		return nil, ErrTruncated
	}
	if asText {
		t, err := packet.FromByteDigit(buf[0])
		if err != nil {
			return nil, err
		}
		return packet.NewText(t, string(buf[1:])), nil
	}
	t := packet.Type(buf[0])
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, buf[0])
	}
	body := make([]byte, len(buf)-1)
	copy(body, buf[1:])
	return packet.NewBinary(t, body), nil
}

// EncodePayload frames an ordered sequence of packets for the polling
// transport. Each packet contributes:
//
//	[marker][len-digits-as-raw-bytes][0xFF][type][payload]
//
// marker is 0x00 for a text packet, 0x01 for binary. len-digits are the
// decimal digits of (payload size + 1), one decimal digit per raw byte
// (values 0-9, not ASCII). type is the raw tag value for binary packets or
// its ASCII digit for text packets.
func EncodePayload(packets []*packet.Packet) []byte {
	out := make([]byte, 0, 64*len(packets))
	for _, p := range packets {
		out = append(out, encodeFramedPacket(p)...)
	}
	return out
}

func encodeFramedPacket(p *packet.Packet) []byte {
	body := EncodePacket(p)
	length := len(body) // already includes the type byte/digit

	var frame []byte
	if p.IsBinary {
		frame = append(frame, 0x01)
	} else {
		frame = append(frame, 0x00)
	}
	frame = appendLengthDigits(frame, length)
	frame = append(frame, 0xFF)
	frame = append(frame, body...)
	return frame
}

func appendLengthDigits(dst []byte, n int) []byte {
	digits := strconv.Itoa(n)
	for i := 0; i < len(digits); i++ {
		dst = append(dst, digits[i]-'0')
	}
	return dst
}

// DecodePayload parses a binary-framed payload produced by EncodePayload.
// It never reads past a packet's declared length.
func DecodePayload(data []byte) ([]*packet.Packet, error) {
	var out []*packet.Packet
	for len(data) > 0 {
		if len(data) < 2 {
			return out, ErrTruncated
		}
		marker := data[0]
		if marker != 0x00 && marker != 0x01 {
			return out, fmt.Errorf("%w: unknown marker %d", ErrInvalidFrame, marker)
		}
		data = data[1:]

		length := 0
		consumed := 0
		for {
			if consumed >= len(data) {
				return out, ErrTruncated
			}
			b := data[consumed]
			if b == 0xFF {
				consumed++
				break
			}
			if b > 9 {
				return out, fmt.Errorf("%w: invalid length digit %d", ErrInvalidFrame, b)
			}
			length = length*10 + int(b)
			consumed++
		}
		data = data[consumed:]

		if length < 1 || len(data) < length {
			return out, ErrTruncated
		}
		body := data[:length]
		data = data[length:]

		p, err := DecodePacket(body, marker == 0x00)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DecodeTextPayload parses the legacy all-text payload framing:
// "<decimal-length>:<packet-text>" repeated, where length counts the bytes
// of the packet's own text encoding (tag digit + payload). Implementations
// must accept the binary framing unconditionally and this text framing only
// when the response's content type indicates text.
func DecodeTextPayload(s string) ([]*packet.Packet, error) {
	var out []*packet.Packet
	for len(s) > 0 {
		colon := strings.IndexByte(s, ':')
		if colon < 0 {
			return out, ErrTruncated
		}
		n, err := strconv.Atoi(s[:colon])
		if err != nil {
			return out, fmt.Errorf("%w: bad length %q", ErrInvalidFrame, s[:colon])
		}
		rest := s[colon+1:]
		if n < 1 || len(rest) < n {
			return out, ErrTruncated
		}
		chunk := rest[:n]
		t, err := packet.FromByteDigit(chunk[0])
		if err != nil {
			return out, err
		}
		out = append(out, packet.NewText(t, chunk[1:]))
		s = rest[n:]
	}
	return out, nil
}
