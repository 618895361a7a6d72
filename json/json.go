// Package json provides a JSON codec for graft plain data.
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/zoobzio/graft"
)

// errTrailingData reports input left over after the first JSON value.
var errTrailingData = errors.New("json: trailing data after value")

// jsonCodec implements graft.Codec for JSON.
type jsonCodec struct{}

// New returns a JSON codec. Numbers are parsed as json.Number so that
// 64-bit integers survive the trip.
func New() graft.Codec {
	return &jsonCodec{}
}

// ContentType returns the MIME type for JSON.
func (c *jsonCodec) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (c *jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a single JSON value into v.
func (c *jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return nil
}
