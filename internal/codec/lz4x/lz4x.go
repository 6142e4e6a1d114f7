// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package lz4x wraps github.com/pierrec/lz4/v4, used both by the
// file-filter chain for .lz4 streams and by fsimpl/erofs for per-cluster
// LZ4 block decompression.
package lz4x

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// NewReader wraps r as a decompressing reader over an lz4 frame stream.
func NewReader(r io.Reader) io.Reader {
	return lz4.NewReader(r)
}

// DecodeBlock decompresses a single raw (frameless) LZ4 block of known
// uncompressed size. The block must decode to exactly uncompressedSize
// bytes and src must contain nothing past the final sequence.
func DecodeBlock(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

var errCorrupt = fmt.Errorf("lz4x: corrupt block")

// DecodePartial decompresses a raw LZ4 block into dst, stopping as soon
// as dst is full even when src encodes further sequences, and tolerating
// trailing garbage after the point where dst filled up. Returns the
// number of bytes produced, which is less than len(dst) only when src
// ends first.
//
// EROFS needs these exact semantics (lz4's own
// LZ4_decompress_safe_partial): a compressed pcluster may decode to more
// data than one read wants, and pre-zero-padding-era images pad the
// pcluster's tail with garbage after the final sequence.
// github.com/pierrec/lz4 only exposes whole-block decoding, which
// rejects both cases, so the sequence loop is spelled out here.
func DecodePartial(src, dst []byte) (int, error) {
	var si, di int
	for si < len(src) {
		token := src[si]
		si++

		litLen := int(token >> 4)
		if litLen == 0xF {
			for {
				if si >= len(src) {
					return di, errCorrupt
				}
				b := src[si]
				si++
				litLen += int(b)
				if b != 0xFF {
					break
				}
			}
		}
		if litLen > 0 {
			if si+litLen > len(src) {
				return di, errCorrupt
			}
			n := copy(dst[di:], src[si:si+litLen])
			di += n
			si += litLen
			if n < litLen {
				return di, nil
			}
		}
		if di >= len(dst) {
			return di, nil
		}
		if si >= len(src) {
			// last sequence is literals-only
			return di, nil
		}

		if si+2 > len(src) {
			return di, errCorrupt
		}
		offset := int(src[si]) | int(src[si+1])<<8
		si += 2
		if offset == 0 || offset > di {
			return di, errCorrupt
		}

		matchLen := int(token & 0xF)
		if matchLen == 0xF {
			for {
				if si >= len(src) {
					return di, errCorrupt
				}
				b := src[si]
				si++
				matchLen += int(b)
				if b != 0xFF {
					break
				}
			}
		}
		matchLen += 4

		for ; matchLen > 0; matchLen-- {
			if di >= len(dst) {
				return di, nil
			}
			dst[di] = dst[di-offset]
			di++
		}
	}
	return di, nil
}
