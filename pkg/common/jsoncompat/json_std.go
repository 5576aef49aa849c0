//go:build jsonstd

package jsoncompat

import (
	"encoding/json"
	"io"
)

// Marshal proxies to the standard library when the jsonstd build tag is present.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func MarshalIndent(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

// Unmarshal proxies to the standard library when the jsonstd build tag is present.
func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func NewEncoder(w io.Writer) Encoder { return json.NewEncoder(w) }

func NewDecoder(r io.Reader) Decoder { return json.NewDecoder(r) }
