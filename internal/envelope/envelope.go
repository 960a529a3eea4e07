// Package envelope は XDP エンベロープのバイナリ形式を提供する。
//
//	"XDP" | flags (1) | header_len (u32 LE) | header | ciphertext
package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"xdp-service/internal/domain"
)

// Flags はエンベロープのフラグを表す。
type Flags byte

const (
	// FlagDataCompressed は平文が暗号化前に圧縮されたことを示す。
	FlagDataCompressed Flags = 1 << 0
	// FlagHeaderCompressed はヘッダーが圧縮されていることを示す。
	FlagHeaderCompressed Flags = 1 << 1
)

// CompressionThreshold を超えるヘッダーと平文は圧縮する。
const CompressionThreshold = 200

const prefixSize = 8

var magic = []byte("XDP")

// Has はフラグが立っているかを返す。
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// Envelope はデコード済みのエンベロープ。
type Envelope struct {
	Flags      Flags
	Header     []byte
	Ciphertext []byte
}

// Encode はエンベロープをシリアライズする。
func Encode(flags Flags, header, ciphertext []byte) []byte {
	out := make([]byte, 0, prefixSize+len(header)+len(ciphertext))
	out = append(out, magic...)
	out = append(out, byte(flags))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, ciphertext...)
	return out
}

// Decode はエンベロープを解析する。返却値は入力のスライスを参照する。
func Decode(data []byte) (*Envelope, error) {
	if len(data) < prefixSize {
		return nil, fmt.Errorf("%w: data is %d bytes, shorter than the %d byte prefix", domain.ErrInvalidFormat, len(data), prefixSize)
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic", domain.ErrInvalidFormat)
	}
	flags := Flags(data[len(magic)])
	headerLen := uint64(binary.LittleEndian.Uint32(data[len(magic)+1 : prefixSize]))
	rest := data[prefixSize:]
	if headerLen > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: header length %d exceeds the %d bytes available", domain.ErrInvalidFormat, headerLen, len(rest))
	}
	if headerLen == uint64(len(rest)) {
		return nil, domain.ErrEmptyCiphertext
	}
	return &Envelope{
		Flags:      flags,
		Header:     rest[:headerLen],
		Ciphertext: rest[headerLen:],
	}, nil
}

// EncodeHeader は必要であればヘッダーを圧縮し、付与すべきフラグとともに返す。
func EncodeHeader(header []byte) ([]byte, Flags, error) {
	if len(header) <= CompressionThreshold {
		return header, 0, nil
	}
	compressed, err := Compress(header)
	if err != nil {
		return nil, 0, fmt.Errorf("compressing header: %w", err)
	}
	return compressed, FlagHeaderCompressed, nil
}

// DecodeHeader はフラグに従ってヘッダーを展開する。
func (e *Envelope) DecodeHeader() ([]byte, error) {
	if !e.Flags.Has(FlagHeaderCompressed) {
		return e.Header, nil
	}
	header, err := Decompress(e.Header, MaxHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing header: %v", domain.ErrInvalidFormat, err)
	}
	return header, nil
}
