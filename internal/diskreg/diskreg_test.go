// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskreg

import (
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
)

func TestOpenPrefersLoopbackOverHardware(t *testing.T) {
	r := New()
	hw := &blockio.MemDisk{NameStr: "iso", Bytes: make([]byte, 1024)}
	r.AddHardware(hw)

	loopSrc := &blockio.MemDisk{NameStr: "iso", Bytes: []byte("loopback bytes")}
	if _, err := r.AddLoopback("iso", loopSrc); err != nil {
		t.Fatalf("add loopback: %v", err)
	}

	got, err := r.Open("iso")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.(*Loopback).disk != loopSrc {
		t.Fatalf("expected loopback to shadow hardware disk of the same name")
	}
}

func TestDeleteRefusedWhileInUse(t *testing.T) {
	r := New()
	src := &blockio.MemDisk{NameStr: "img", Bytes: []byte("x")}
	l, err := r.AddLoopback("img", src)
	if err != nil {
		t.Fatalf("add loopback: %v", err)
	}

	l.Acquire()
	if err := r.DeleteLoopback("img"); err == nil {
		t.Fatalf("expected delete to fail while in use")
	}
	l.Release()
	if err := r.DeleteLoopback("img"); err != nil {
		t.Fatalf("delete after release: %v", err)
	}
}

func TestOpenUnknownDevice(t *testing.T) {
	r := New()
	if _, err := r.Open("nope"); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestAddLoopbackDuplicateName(t *testing.T) {
	r := New()
	src := &blockio.MemDisk{NameStr: "a", Bytes: []byte("x")}
	if _, err := r.AddLoopback("a", src); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := r.AddLoopback("a", src); err == nil {
		t.Fatalf("expected duplicate loopback name to fail")
	}
}
