// Package yaml provides a YAML codec for graft plain data.
package yaml

import (
	"fmt"

	"github.com/zoobzio/graft"
	"gopkg.in/yaml.v3"
)

// yamlCodec implements graft.Codec for YAML.
type yamlCodec struct{}

// New returns a YAML codec. Mappings with non-string keys, such as
// `1: one`, decode to map[string]any keyed by each key's text form, the
// form graft writes for maps with scalar keys.
func New() graft.Codec {
	return &yamlCodec{}
}

// ContentType returns the MIME type for YAML.
func (c *yamlCodec) ContentType() string {
	return "application/yaml"
}

// Marshal encodes v as YAML.
func (c *yamlCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Unmarshal decodes YAML data into v.
func (c *yamlCodec) Unmarshal(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return err
	}
	if p, ok := v.(*any); ok {
		*p = stringKeys(*p)
	}
	return nil
}

// stringKeys rewrites map[any]any mappings as map[string]any.
func stringKeys(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringKeys(v)
		}
		return out
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	}
	return node
}
