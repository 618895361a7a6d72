// Package bson provides a BSON codec for graft plain data.
package bson

import (
	"errors"
	"fmt"

	"github.com/zoobzio/graft"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
)

// ErrNotDocument is returned when the root of the plain data is not an
// object. BSON can only carry documents at the top level.
var ErrNotDocument = errors.New("bson: root must be an object")

// bsonCodec implements graft.Codec for BSON.
type bsonCodec struct{}

// New returns a BSON codec. Documents decode to bson.M and arrays to
// bson.A, both of which graft reads as objects and arrays.
func New() graft.Codec {
	return &bsonCodec{}
}

// ContentType returns the MIME type for BSON.
func (c *bsonCodec) ContentType() string {
	return "application/bson"
}

// Marshal encodes v as a BSON document.
func (c *bsonCodec) Marshal(v any) ([]byte, error) {
	switch v.(type) {
	case map[string]any, bson.M, bson.D:
		return bson.Marshal(v)
	}
	return nil, fmt.Errorf("%w: got %T", ErrNotDocument, v)
}

// Unmarshal decodes a BSON document into v.
func (c *bsonCodec) Unmarshal(data []byte, v any) error {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(data))
	if err != nil {
		return err
	}
	dec.DefaultDocumentM()

	p, ok := v.(*any)
	if !ok {
		return dec.Decode(v)
	}
	var doc bson.M
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	*p = map[string]any(doc)
	return nil
}
