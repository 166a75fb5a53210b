// Package json provides JSON serialization backed by goccy/go-json with
// pooled buffers for the per-record encode path.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is the decoded representation of JSON numbers when decoders are
// configured with UseNumber.
type Number = gojson.Number

// RawMessage is an already encoded JSON value
type RawMessage = gojson.RawMessage

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetDecoder returns a decoder reading from r that keeps numbers as Number,
// so integer identifiers and floats round-trip with their original text.
func GetDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// UnmarshalNumber decodes data into v keeping numbers as Number
func UnmarshalNumber(data []byte, v interface{}) error {
	return GetDecoder(bytes.NewReader(data)).Decode(v)
}

// MarshalCompact encodes v without insignificant whitespace, without HTML
// escaping and without a trailing newline. Map keys are sorted.
func MarshalCompact(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}
