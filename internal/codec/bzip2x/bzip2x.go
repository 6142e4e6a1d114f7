// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package bzip2x wraps stdlib compress/bzip2. The standard library only
// implements a decoder (no bzip2 encoder), which is all corefs needs for a
// read-only filesystem filter, and no third-party decoder in the example
// pack improves on it.
package bzip2x

import (
	"compress/bzip2"
	"io"
)

// NewReader wraps r as a decompressing reader over a bzip2 stream.
func NewReader(r io.Reader) io.Reader {
	return bzip2.NewReader(r)
}
