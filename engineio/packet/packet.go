// Package packet defines the Engine.IO packet type: a tag from a closed set
// plus a payload that is either absent, UTF-8 text, or an opaque byte
// sequence.
package packet

import "fmt"

// Type is an Engine.IO packet tag.
type Type byte

const (
	OPEN Type = iota
	CLOSE
	PING
	PONG
	MESSAGE
	UPGRADE
	NOOP
)

var names = [...]string{"open", "close", "ping", "pong", "message", "upgrade", "noop"}

// Valid reports whether t is one of the seven defined tags.
func (t Type) Valid() bool {
	return t <= NOOP
}

func (t Type) String() string {
	if t.Valid() {
		return names[t]
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// ByteDigit returns the ASCII digit used for this tag in text framing, e.g.
// MESSAGE -> '4'.
func (t Type) ByteDigit() byte {
	return '0' + byte(t)
}

// FromByteDigit recovers a Type from its ASCII digit form, subtracting 0x30
// rather than parsing it as a rune so tags >= 10 (none exist today) would
// still decode correctly instead of silently mis-mapping.
func FromByteDigit(b byte) (Type, error) {
	t := Type(b - '0')
	if !t.Valid() {
		return 0, fmt.Errorf("packet: invalid type byte %q", b)
	}
	return t, nil
}

// Packet is a single Engine.IO frame. IsBinary selects the payload field:
// Binary holds the byte sequence when IsBinary is true, Text otherwise.
type Packet struct {
	Type     Type
	IsBinary bool
	Text     string // valid when !IsBinary
	Binary   []byte // valid when IsBinary
}

// Size returns the byte length of the payload: the UTF-8 length of Text, the
// length of Binary, or 0 for an absent payload.
func (p Packet) Size() int {
	if p.IsBinary {
		return len(p.Binary)
	}
	return len(p.Text)
}

// NewText builds a text (non-binary) packet.
func NewText(t Type, text string) *Packet {
	return &Packet{Type: t, Text: text}
}

// NewBinary builds a binary packet.
func NewBinary(t Type, data []byte) *Packet {
	return &Packet{Type: t, IsBinary: true, Binary: data}
}
