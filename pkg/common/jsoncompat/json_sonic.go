//go:build !jsonstd

package jsoncompat

import (
	"io"

	"github.com/bytedance/sonic"
)

// std-compatible config keeps map keys sorted so payload dumps are stable.
var api = sonic.ConfigStd

// Marshal proxies to sonic unless the jsonstd build tag is present.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

func MarshalIndent(v any) ([]byte, error) { return api.MarshalIndent(v, "", "  ") }

// Unmarshal proxies to sonic unless the jsonstd build tag is present.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

func NewEncoder(w io.Writer) Encoder { return api.NewEncoder(w) }

func NewDecoder(r io.Reader) Decoder { return api.NewDecoder(r) }
