package chartsync

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec decodes the raw bytes a feed emits into the payload type the
// transform consumes. A decode failure drops that cycle; the chart keeps
// showing the last applied SeriesSet. Implement this interface for feeds
// that are not JSON or YAML, like CSV exports or a binary metrics wire.
type Codec interface {
	// Unmarshal deserializes one feed emission into a value.
	Unmarshal(data []byte, v any) error

	// ContentType returns the MIME type for observability and debugging.
	ContentType() string
}

// JSONCodec decodes JSON feeds, the common shape for API exports and
// scraper output. It is the default codec.
type JSONCodec struct{}

// Unmarshal deserializes JSON bytes into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ContentType returns the JSON MIME type.
func (JSONCodec) ContentType() string {
	return "application/json"
}

// Ensure JSONCodec implements Codec.
var _ Codec = JSONCodec{}

// YAMLCodec decodes YAML feeds, typically hand-maintained dashboard data
// files.
type YAMLCodec struct{}

// Unmarshal deserializes YAML bytes into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// ContentType returns the YAML MIME type.
func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// Ensure YAMLCodec implements Codec.
var _ Codec = YAMLCodec{}
