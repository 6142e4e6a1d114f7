// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package gzipx wraps stdlib compress/gzip as a filefilter codec. gzip has
// no dedicated ecosystem decoder beyond the standard library's own
// (DEFLATE-based) implementation, so this is the one codec filter that
// intentionally stays on stdlib rather than reaching for a third-party lib.
package gzipx

import (
	"compress/gzip"
	"io"
)

// NewReader wraps r as a decompressing reader over a gzip member.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
