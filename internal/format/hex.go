package format

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// HexBytes は XML 上で大文字の16進文字列として表現されるバイト列。
type HexBytes []byte

// MarshalText は encoding.TextMarshaler を実装する。
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(hex.EncodeToString(h))), nil
}

// UnmarshalText は encoding.TextUnmarshaler を実装する。
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*h = b
	return nil
}
