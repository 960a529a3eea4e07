package envelope

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"xdp-service/internal/xcrypto"
)

// Compress は gzip で圧縮する。
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing gzip stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// 展開後のサイズの上限。
const (
	MaxHeaderSize = 16 << 20
	MaxDataSize   = 1 << 30
)

// Decompress は gzip を展開する。展開後が limit バイトを超える場合はエラー。
func Decompress(data []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		xcrypto.Zero(buf.Bytes())
		return nil, fmt.Errorf("reading gzip stream: %w", err)
	}
	if n > limit {
		xcrypto.Zero(buf.Bytes())
		return nil, fmt.Errorf("gzip stream expands beyond %d bytes", limit)
	}
	return buf.Bytes(), nil
}

// CompressData はしきい値を超える平文を圧縮し、付与すべきフラグとともに返す。
func CompressData(plaintext []byte) ([]byte, Flags, error) {
	if len(plaintext) <= CompressionThreshold {
		return plaintext, 0, nil
	}
	compressed, err := Compress(plaintext)
	if err != nil {
		return nil, 0, fmt.Errorf("compressing data: %w", err)
	}
	return compressed, FlagDataCompressed, nil
}
