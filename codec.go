package graft

// Codec prints and parses plain data in a structured text format.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Marshal encodes a plain-data tree into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v, usually a *any.
	Unmarshal(data []byte, v any) error
}
