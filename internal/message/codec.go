// Package message defines how application values are turned into the byte
// payloads a connection fragments into frames, and the demo game messages.
package message

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Codec serializes messages of type M.
type Codec[M any] interface {
	Marshal(m M) ([]byte, error)
	Unmarshal(data []byte) (M, error)
}

// JSON encodes any JSON-serializable type.
type JSON[M any] struct{}

func (JSON[M]) Marshal(m M) ([]byte, error) {
	return json.Marshal(m)
}

func (JSON[M]) Unmarshal(data []byte) (M, error) {
	var m M
	err := json.Unmarshal(data, &m)
	return m, err
}

// Raw carries byte slices as they are. Marshal copies, so the caller may
// reuse its buffer as soon as Send returns.
type Raw struct{}

func (Raw) Marshal(m []byte) ([]byte, error) {
	return bytes.Clone(m), nil
}

func (Raw) Unmarshal(data []byte) ([]byte, error) {
	return data, nil
}
