package parser

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// placeholder is the wire shape of a binary-attachment reference inside a
// JSON data tree. WeaklyTypedInput lets mapstructure accept "num" as either
// a json.Unmarshal float64 or a plain int, since reconstruct() may also run
// over a tree built by something other than encoding/json.
type placeholder struct {
	Placeholder bool `mapstructure:"_placeholder"`
	Num         int  `mapstructure:"num"`
}

func asPlaceholder(v any) (*placeholder, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if flag, ok := m["_placeholder"].(bool); !ok || !flag {
		return nil, false
	}

	var ph placeholder
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &ph,
	})
	if err != nil || decoder.Decode(m) != nil {
		return nil, false
	}
	return &ph, true
}

// deconstruct replaces every []byte leaf in data with a numbered placeholder
// object, walking JSON arrays left to right and JSON objects in Go map
// iteration order, which is unspecified, so the numbering of several leaves
// inside one object is not fixed. The returned attachments are ordered to
// match the placeholder numbering so the first leaf found receives num=0.
func deconstruct(data any) (tree any, attachments [][]byte) {
	tree = walkDeconstruct(data, &attachments)
	return tree, attachments
}

func walkDeconstruct(data any, attachments *[][]byte) any {
	switch v := data.(type) {
	case []byte:
		num := len(*attachments)
		*attachments = append(*attachments, v)
		return map[string]any{"_placeholder": true, "num": num}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = walkDeconstruct(item, attachments)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = walkDeconstruct(item, attachments)
		}
		return out
	default:
		return data
	}
}

// reconstruct is the inverse of deconstruct: every placeholder object in
// data is replaced by the entry of attachments at the placeholder's num
// index.
func reconstruct(data any, attachments [][]byte) (any, error) {
	out, err := walkReconstruct(data, attachments)
	return out, err
}

func walkReconstruct(data any, attachments [][]byte) (any, error) {
	switch v := data.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := walkReconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		if ph, ok := asPlaceholder(v); ok {
			if ph.Num < 0 || ph.Num >= len(attachments) {
				return nil, fmt.Errorf("socketio/parser: placeholder num %d out of range (%d attachments)", ph.Num, len(attachments))
			}
			return attachments[ph.Num], nil
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := walkReconstruct(item, attachments)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return data, nil
	}
}
