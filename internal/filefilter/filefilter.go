// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package filefilter implements the file-filter chain (component E):
// transparent decompression selected by extension or magic, wrapping an
// opened fsreg.Handle with a decoding one. It composes the codecs in
// internal/codec/*.
package filefilter

import (
	"fmt"
	"io"
	gopath "path"
	"strings"

	"github.com/arcfs/corefs/internal/codec/adc"
	"github.com/arcfs/corefs/internal/codec/bzip2x"
	"github.com/arcfs/corefs/internal/codec/gzipx"
	"github.com/arcfs/corefs/internal/codec/lz4x"
	"github.com/arcfs/corefs/internal/codec/lzfse"
	"github.com/arcfs/corefs/internal/codec/lzopx"
	"github.com/arcfs/corefs/internal/codec/xzx"
	"github.com/arcfs/corefs/internal/codec/zstdx"
	"github.com/arcfs/corefs/internal/fsreg"
)

// Rule is one entry in the filter chain: Applicable inspects a file's
// base name and up-to-16-byte header to decide whether Wrap should run
// (magic bytes first, then extension).
type Rule struct {
	Name       string
	Applicable func(name string, header []byte) bool
	// Wrap decompresses the whole of inner eagerly into memory and returns
	// a read-only Handle over the result. Every codec this core wires is a
	// block/stream decoder with no meaningful random-access API of its
	// own, so whole-file decompression (then serving reads from the
	// buffer) is the only correct strategy; none of these codecs can
	// seek within a compressed stream.
	Wrap func(inner *fsreg.Handle) (*fsreg.Handle, error)
}

// HeaderLen is how many header bytes Applicable may inspect.
const HeaderLen = 16

var chain []Rule

func register(r Rule) { chain = append(chain, r) }

// Probe returns the first applicable Rule for name/header, or nil if none
// of the registered filters apply.
func Probe(name string, header []byte) *Rule {
	for i := range chain {
		if chain[i].Applicable(name, header) {
			return &chain[i]
		}
	}
	return nil
}

// memoryHandle adapts a fully-decompressed byte slice to fsreg.Handle via
// a throwaway Format whose Read serves from the buffer.
var memFormat = &fsreg.Format{
	Name: "filefilter-memory",
	Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
		buf := private.([]byte)
		if off < 0 || off >= int64(len(buf)) {
			return 0, io.EOF
		}
		n := copy(p, buf[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	},
	Close: func(any) error { return nil },
}

func memoryHandle(buf []byte) *fsreg.Handle {
	return &fsreg.Handle{Format: memFormat, Size: int64(len(buf))}
}

// MaxDecodedSize caps how much memory a single Wrap call's whole-file
// decompression may use, guarding against a compression-bomb archive
// member. Callers with their own memory budget (corefs.New via Config)
// lower it; the zero value leaves decoding unbounded.
var MaxDecodedSize int64

func wrapDecoder(inner *fsreg.Handle, decode func(r io.Reader) (io.Reader, error)) (*fsreg.Handle, error) {
	sr := io.NewSectionReader(inner, 0, inner.Size)
	r, err := decode(sr)
	if err != nil {
		return nil, fmt.Errorf("filefilter: %w", err)
	}
	limit := r
	if MaxDecodedSize > 0 {
		limit = io.LimitReader(r, MaxDecodedSize+1)
	}
	buf, err := io.ReadAll(limit)
	if err != nil {
		return nil, fmt.Errorf("filefilter: %w", err)
	}
	if MaxDecodedSize > 0 && int64(len(buf)) > MaxDecodedSize {
		return nil, fmt.Errorf("filefilter: decoded size exceeds the %d byte limit", MaxDecodedSize)
	}
	return memoryHandle(buf), nil
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(gopath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func at(header []byte, s string, off int) bool {
	if off+len(s) > len(header) {
		return false
	}
	return string(header[off:off+len(s)]) == s
}

func init() {
	register(Rule{
		Name: "gzip",
		Applicable: func(name string, header []byte) bool {
			return at(header, "\x1f\x8b\x08", 0) || hasExt(name, ".gz", ".gzip", ".tgz")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			return wrapDecoder(inner, func(r io.Reader) (io.Reader, error) { return gzipx.NewReader(r) })
		},
	})

	register(Rule{
		Name: "bzip2",
		Applicable: func(name string, header []byte) bool {
			return (at(header, "BZh", 0) && len(header) > 3 && header[3] >= '0' && header[3] <= '9' &&
				at(header, "\x31\x41\x59\x26\x53\x59", 4)) || hasExt(name, ".bz2", ".bz", ".tbz")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			return wrapDecoder(inner, func(r io.Reader) (io.Reader, error) { return bzip2x.NewReader(r), nil })
		},
	})

	register(Rule{
		Name: "xz",
		Applicable: func(name string, header []byte) bool {
			return at(header, "\xfd7zXZ\x00", 0) || hasExt(name, ".xz", ".txz")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			return wrapDecoder(inner, func(r io.Reader) (io.Reader, error) { return xzx.NewXZReader(r) })
		},
	})

	register(Rule{
		Name: "zstd",
		Applicable: func(name string, header []byte) bool {
			return at(header, "\x28\xb5\x2f\xfd", 0) || hasExt(name, ".zst", ".zstd")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			return wrapDecoder(inner, func(r io.Reader) (io.Reader, error) { return zstdx.NewReader(r) })
		},
	})

	register(Rule{
		Name: "lz4",
		Applicable: func(name string, header []byte) bool {
			return at(header, "\x04\x22\x4d\x18", 0) || hasExt(name, ".lz4")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			return wrapDecoder(inner, func(r io.Reader) (io.Reader, error) { return lz4x.NewReader(r), nil })
		},
	})

	register(Rule{
		Name: "lzop",
		Applicable: func(name string, header []byte) bool {
			return at(header, "\x89\x4c\x5a\x4f\x00\x0d\x0a\x1a\x0a", 0) || hasExt(name, ".lzo")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			raw, err := io.ReadAll(io.NewSectionReader(inner, 0, inner.Size))
			if err != nil {
				return nil, fmt.Errorf("filefilter: %w", err)
			}
			out, err := lzopx.DecodeBlock(raw, nil)
			if err != nil {
				return nil, fmt.Errorf("filefilter: lzop: %w", err)
			}
			return memoryHandle(out), nil
		},
	})

	register(Rule{
		Name: "lzfse",
		Applicable: func(name string, header []byte) bool {
			return at(header, "bvx", 0) || hasExt(name, ".lzfse")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			raw, err := io.ReadAll(io.NewSectionReader(inner, 0, inner.Size))
			if err != nil {
				return nil, fmt.Errorf("filefilter: %w", err)
			}
			out, err := lzfse.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("filefilter: lzfse: %w", err)
			}
			return memoryHandle(out), nil
		},
	})

	register(Rule{
		Name: "adc",
		Applicable: func(name string, header []byte) bool {
			return hasExt(name, ".adc")
		},
		Wrap: func(inner *fsreg.Handle) (*fsreg.Handle, error) {
			raw, err := io.ReadAll(io.NewSectionReader(inner, 0, inner.Size))
			if err != nil {
				return nil, fmt.Errorf("filefilter: %w", err)
			}
			out, err := adc.Decode(raw)
			if err != nil {
				return nil, fmt.Errorf("filefilter: adc: %w", err)
			}
			return memoryHandle(out), nil
		},
	})
}

// ChangeSuffix renames a decoded file: when a filter strips a
// compression suffix, the inner synthetic filename drops it (and, for
// archive-bearing suffixes like .tgz, substitutes the archive's own
// extension), so a downstream probe sees e.g. "foo.tar" instead of
// "foo.tgz".
func ChangeSuffix(s string, rules string) string {
	for _, rule := range strings.Split(rules, " ") {
		from, to, _ := strings.Cut(rule, "=")
		if strings.HasSuffix(s, "_"+from) && len(s) > len(from)+1 {
			return s[:len(s)-len(from)-1] + to
		} else if strings.HasSuffix(s, from) && len(s) > len(from) {
			return s[:len(s)-len(from)] + to
		}
	}
	return s
}
