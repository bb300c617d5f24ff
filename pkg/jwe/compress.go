package jwe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	jose "github.com/picatz/jose/v2/pkg"
)

func deflate(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create compression writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to write to compression writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close compression writer: %w", err)
	}
	return buf.Bytes(), nil
}

// inflate decompresses src, failing once the output grows past limit.
func inflate(src []byte, limit int64) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to inflate plaintext: %v", jose.ErrMalformedToken, err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: decompressed plaintext exceeds %d bytes", jose.ErrMalformedToken, limit)
	}
	return out, nil
}
