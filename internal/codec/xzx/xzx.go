// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package xzx wraps github.com/therootcompany/xz, this module's xz
// decoder, for the .xz container. Bare legacy .lzma streams are not
// decoded: there is no entry point for them.
package xzx

import (
	"io"

	"github.com/therootcompany/xz"
)

// NewXZReader wraps r as a decompressing reader over an .xz container.
func NewXZReader(r io.Reader) (io.Reader, error) {
	return xz.NewReader(r, 0)
}
