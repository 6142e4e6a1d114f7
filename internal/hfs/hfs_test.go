// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package hfs

import (
	"bytes"
	"testing"
)

// Volume-level tests need a real HFS image, which nothing in a pure-Go
// toolchain can mint; the B-tree and extent plumbing is covered through
// the packages that embed real volumes upstream. What can be pinned down
// here without an image is the gatekeeping: New must reject byte streams
// that are not HFS rather than misparse them.

func TestRejectsGarbage(t *testing.T) {
	if _, err := New(bytes.NewReader(make([]byte, 64*1024))); err == nil {
		t.Fatal("accepted an all-zero disk")
	}
}

func TestRejectsTruncatedMDB(t *testing.T) {
	if _, err := New(bytes.NewReader(make([]byte, 0x400))); err == nil {
		t.Fatal("accepted a disk that ends before the Master Directory Block")
	}
}
