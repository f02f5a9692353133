package parser

import (
	"bytes"
	"testing"

	"github.com/haruntuncay/socket.io-client/engineio/packet"
)

func TestEncodeDecodePacketRoundTripText(t *testing.T) {
	p := packet.NewText(packet.MESSAGE, "hello")
	buf := EncodePacket(p)
	got, err := DecodePacket(buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != p.Type || got.Text != p.Text || got.IsBinary {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEncodeDecodePacketRoundTripBinary(t *testing.T) {
	p := packet.NewBinary(packet.MESSAGE, []byte{1, 2, 3})
	buf := EncodePacket(p)
	got, err := DecodePacket(buf, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != p.Type || !bytes.Equal(got.Binary, p.Binary) || !got.IsBinary {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEncodePayloadBinaryFraming(t *testing.T) {
	packets := []*packet.Packet{
		packet.NewText(packet.MESSAGE, "data"),
		packet.NewBinary(packet.MESSAGE, []byte{1, 2, 3}),
		packet.NewText(packet.MESSAGE, ""),
		packet.NewText(packet.MESSAGE, ""),
	}
	got := EncodePayload(packets)
	want := []byte{
		0, 5, 0xFF, 52, 100, 97, 116, 97,
		1, 4, 0xFF, 4, 1, 2, 3,
		0, 1, 0xFF, 52,
		0, 1, 0xFF, 52,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("framing mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	packets := []*packet.Packet{
		packet.NewText(packet.OPEN, `{"sid":"abc"}`),
		packet.NewBinary(packet.MESSAGE, []byte{9, 8, 7, 6}),
		packet.NewText(packet.PING, ""),
	}
	encoded := EncodePayload(packets)
	decoded, err := DecodePayload(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(packets) {
		t.Fatalf("got %d packets, want %d", len(decoded), len(packets))
	}
	for i, p := range packets {
		if decoded[i].Type != p.Type || decoded[i].IsBinary != p.IsBinary {
			t.Fatalf("packet %d mismatch: %+v vs %+v", i, decoded[i], p)
		}
		if p.IsBinary && !bytes.Equal(decoded[i].Binary, p.Binary) {
			t.Fatalf("packet %d binary mismatch", i)
		}
		if !p.IsBinary && decoded[i].Text != p.Text {
			t.Fatalf("packet %d text mismatch", i)
		}
	}
}

func TestDecodePayloadTruncatedLength(t *testing.T) {
	// Marker + two length digits but no 0xFF terminator.
	_, err := DecodePayload([]byte{0, 5, 2})
	if err == nil {
		t.Fatal("expected error for truncated length field")
	}
}

func TestDecodeTextPayloadLegacyForm(t *testing.T) {
	decoded, err := DecodeTextPayload("5:4data1:3")
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d packets, want 2", len(decoded))
	}
	if decoded[0].Type != packet.MESSAGE || decoded[0].Text != "data" {
		t.Fatalf("first packet mismatch: %+v", decoded[0])
	}
	if decoded[1].Type != packet.PONG || decoded[1].Text != "" {
		t.Fatalf("second packet mismatch: %+v", decoded[1])
	}
}

func TestInvalidTagByteIsFatal(t *testing.T) {
	if _, err := DecodePacket([]byte{'9'}, true); err == nil {
		t.Fatal("expected error for invalid tag")
	}
	if _, err := DecodePacket([]byte{9}, false); err == nil {
		t.Fatal("expected error for invalid tag")
	}
}
