package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// hasBinary reports whether data contains a []byte leaf anywhere in its
// JSON tree, in which case the packet must be promoted to BINARY_EVENT or
// BINARY_ACK and sent as a frame sequence instead of a single string.
func hasBinary(data any) bool {
	switch v := data.(type) {
	case nil:
		return false
	case []byte:
		return true
	case []any:
		for _, item := range v {
			if hasBinary(item) {
				return true
			}
		}
	case map[string]any:
		for _, item := range v {
			if hasBinary(item) {
				return true
			}
		}
	}
	return false
}

// Encode renders p as the frame sequence to hand to the Engine.IO layer:
// a single text frame for packets without attachments, or a text frame
// followed by one binary frame per attachment for BINARY_EVENT/BINARY_ACK.
func Encode(p *Packet) ([]Frame, error) {
	if p.Type == EVENT || p.Type == ACK {
		if hasBinary(p.Data) {
			if p.Type == EVENT {
				p.Type = BINARY_EVENT
			} else {
				p.Type = BINARY_ACK
			}
			return encodeAsBinary(p)
		}
	}
	head, err := encodeHeader(p)
	if err != nil {
		return nil, err
	}
	return []Frame{{Text: head}}, nil
}

// Frame is one wire frame of an encoded Socket.IO packet: either text
// (IsBinary false) or a raw attachment (IsBinary true).
type Frame struct {
	Text     string
	Binary   []byte
	IsBinary bool
}

func encodeAsBinary(p *Packet) ([]Frame, error) {
	tree, attachments := deconstruct(p.Data)
	withCount := *p
	withCount.Data = tree
	withCount.AttachmentSize = len(attachments)

	head, err := encodeHeader(&withCount)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(attachments)+1)
	frames = append(frames, Frame{Text: head})
	for _, a := range attachments {
		frames = append(frames, Frame{Binary: a, IsBinary: true})
	}
	return frames, nil
}

// encodeHeader renders the text header of a packet: tag digit, optional
// "<n>-" attachment count, optional "<namespace>," and id, then JSON data.
func encodeHeader(p *Packet) (string, error) {
	var b strings.Builder
	b.WriteByte('0' + byte(p.Type))

	if p.Type == BINARY_EVENT || p.Type == BINARY_ACK {
		b.WriteString(strconv.Itoa(p.AttachmentSize))
		b.WriteByte('-')
	}

	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}

	if p.Id != NoAck {
		b.WriteString(strconv.Itoa(p.Id))
	}

	if p.Data != nil {
		raw, err := json.Marshal(p.Data)
		if err != nil {
			return "", err
		}
		b.Write(raw)
	}

	return b.String(), nil
}
