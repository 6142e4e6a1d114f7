// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fileid derives a durable 96-bit identity for a file on the
// host filesystem: the inode number plus a hash of the base name and,
// where the platform exposes it, the birth time. A cache keyed by ID
// survives renames of parent directories but not replacement of the
// file itself.
package fileid

import "errors"

// ID is (64 bits of inode number) + (32 bits of name/birth-time hash).
type ID [12]byte

// ErrNotOS reports that the filesystem is not backed by the host OS, so
// no durable identity exists for the file.
var ErrNotOS = errors.New("fileid: not an operating-system file")
