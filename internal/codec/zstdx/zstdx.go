// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zstdx wraps github.com/klauspost/compress/zstd, the ecosystem's
// standard pure-Go zstd codec, used by the file-filter chain for zstd
// streams.
package zstdx

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// NewReader wraps r as a decompressing reader over a zstd frame stream.
func NewReader(r io.Reader) (*zstd.Decoder, error) {
	return zstd.NewReader(r)
}

// DecodeAll decompresses a single, fully-buffered zstd frame.
func DecodeAll(src []byte) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.DecodeAll(src, nil)
}
