// Package jsoncodec is the JSON surface of relay, backed by sonic in its
// encoding/json-compatible configuration. The mediator core itself never
// serializes requests; the codec serves the stats endpoint and the payloads
// of the notification bridge.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// defaultConfig keeps behavior identical to encoding/json so payloads stay
// interchangeable with stdlib consumers.
var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
