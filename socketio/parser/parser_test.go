package parser

import (
	"bytes"
	"testing"
)

func TestEncodePrimaryFrame(t *testing.T) {
	p := &Packet{Type: EVENT, Namespace: DefaultNamespace, Id: NoAck, Data: []any{"hello", float64(1)}}
	frames, err := Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	want := `2["hello",1]`
	if frames[0].Text != want {
		t.Fatalf("got %q, want %q", frames[0].Text, want)
	}
}

func TestEncodeWithNamespaceAndId(t *testing.T) {
	p := &Packet{Type: ACK, Namespace: "/chat", Id: 12, Data: []any{"ok"}}
	frames, err := Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	want := `3/chat,12["ok"]`
	if frames[0].Text != want {
		t.Fatalf("got %q, want %q", frames[0].Text, want)
	}
}

func TestDecodeIgnoresSeparatorsInsideStrings(t *testing.T) {
	d := NewDecoder()
	var got *Packet
	d.On("decoded", func(args ...any) { got = args[0].(*Packet) })
	if err := d.AddText(`2["a,b/c,d"]`); err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a decoded packet")
	}
	arr := got.Data.([]any)
	if arr[0].(string) != "a,b/c,d" {
		t.Fatalf("payload mangled: %v", arr)
	}
	if got.Namespace != DefaultNamespace {
		t.Fatalf("namespace mis-detected: %q", got.Namespace)
	}
}

func TestDecodeMissingNamespaceTerminatorIsError(t *testing.T) {
	d := NewDecoder()
	if err := d.AddText(`2/chat["hi"]`); err == nil {
		t.Fatal("expected error: namespace present with no comma terminator")
	}
}

func TestBinaryEventRoundTrip(t *testing.T) {
	original := &Packet{
		Type:      EVENT,
		Namespace: DefaultNamespace,
		Id:        NoAck,
		Data:      []any{"upload", []byte{1, 2, 3}, map[string]any{"chunk": []byte{4, 5}}},
	}
	frames, err := Encode(original)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3 (1 header + 2 attachments)", len(frames))
	}
	if frames[0].IsBinary {
		t.Fatal("frame 0 should be the text header")
	}

	d := NewDecoder()
	var got *Packet
	d.On("decoded", func(args ...any) { got = args[0].(*Packet) })
	if err := d.AddText(frames[0].Text); err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("should not decode until all attachments arrive")
	}
	if err := d.AddBinary(frames[1].Binary); err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("should not decode after only 1 of 2 attachments")
	}
	if err := d.AddBinary(frames[2].Binary); err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected decoded packet after final attachment")
	}
	if got.Type != BINARY_EVENT {
		t.Fatalf("got type %v, want BINARY_EVENT", got.Type)
	}
	arr := got.Data.([]any)
	if arr[0].(string) != "upload" {
		t.Fatalf("leading element mangled: %v", arr)
	}
	if !bytes.Equal(arr[1].([]byte), []byte{1, 2, 3}) {
		t.Fatalf("attachment 0 mismatch: %v", arr[1])
	}
	chunk := arr[2].(map[string]any)["chunk"].([]byte)
	if !bytes.Equal(chunk, []byte{4, 5}) {
		t.Fatalf("attachment 1 mismatch: %v", chunk)
	}
}

func TestSecondBinaryHeaderBeforeAttachmentsIsError(t *testing.T) {
	d := NewDecoder()
	if err := d.AddText(`51-["a",{"_placeholder":true,"num":0}]`); err != nil {
		t.Fatal(err)
	}
	if err := d.AddText(`51-["b",{"_placeholder":true,"num":0}]`); err == nil {
		t.Fatal("expected error: text frame while reconstructing a binary packet")
	}
}

func TestRawBinaryWithNoPendingPacketIsError(t *testing.T) {
	d := NewDecoder()
	if err := d.AddBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error: binary frame with nothing pending")
	}
}
