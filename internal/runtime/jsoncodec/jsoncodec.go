// Package jsoncodec is the JSON codec shared by batch payloads, emitted lines
// and the stats API. Translations routinely contain '<', '>' and '&', so HTML
// escaping is disabled; everything else matches sonic.ConfigStd.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Encode writes v followed by a newline, suitable for JSON Lines output.
func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return api.NewDecoder(r).Decode(v)
}
