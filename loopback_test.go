// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoopbackLifecycle(t *testing.T) {
	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	zf, err := zw.Create("inner.txt")
	if err != nil {
		t.Fatal(err)
	}
	zf.Write([]byte("payload"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	fsys := New(fstest.MapFS{}, Config{})
	defer fsys.Close()

	if _, err := fsys.AddLoopback("(loop0)", bytes.NewReader(zbuf.Bytes()), int64(zbuf.Len())); err != nil {
		t.Fatalf("add loopback: %v", err)
	}

	m, err := fsys.MountDevice("(loop0)")
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	data, err := fs.ReadFile(m, "inner.txt")
	if err != nil || string(data) != "payload" {
		t.Fatalf("read through loopback: %q, %v", data, err)
	}

	if err := fsys.DeleteLoopback("(loop0)"); err == nil {
		t.Fatal("delete succeeded while a mount still descends through the loopback")
	}

	if err := m.(io.Closer).Close(); err != nil {
		t.Fatal(err)
	}
	if err := fsys.DeleteLoopback("(loop0)"); err != nil {
		t.Fatalf("delete after close: %v", err)
	}

	if _, err := fsys.MountDevice("(gone)"); err == nil {
		t.Fatal("mounting an unknown device succeeded")
	}
}

// paddedZip builds a zip whose total size is a multiple of 512 (the
// comment field absorbs the slack), so it can fill a partition exactly.
func paddedZip(t *testing.T, name, content string) []byte {
	t.Helper()
	build := func(comment string) []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		if comment != "" {
			zw.SetComment(comment)
		}
		zf, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		zf.Write([]byte(content))
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	base := build("")
	if pad := (512 - len(base)%512) % 512; pad > 0 {
		return build(strings.Repeat("x", pad))
	}
	return base
}

func TestMountPartitionSelector(t *testing.T) {
	zipBytes := paddedZip(t, "inner.txt", "within a partition")

	const startSector = 2048
	img := make([]byte, startSector*512+len(zipBytes))
	ent := img[0x1be:]
	ent[4] = 0x0b
	binary.LittleEndian.PutUint32(ent[8:12], startSector)
	binary.LittleEndian.PutUint32(ent[12:16], uint32(len(zipBytes)/512))
	img[510], img[511] = 0x55, 0xaa
	copy(img[startSector*512:], zipBytes)

	fsys := New(fstest.MapFS{}, Config{})
	defer fsys.Close()
	if _, err := fsys.AddLoopback("(hd0)", bytes.NewReader(img), int64(len(img))); err != nil {
		t.Fatal(err)
	}

	m, err := fsys.MountDevice("(hd0),mbr1")
	if err != nil {
		t.Fatalf("mount with selector: %v", err)
	}
	data, err := fs.ReadFile(m, "inner.txt")
	if err != nil || string(data) != "within a partition" {
		t.Fatalf("read through partition: %q, %v", data, err)
	}
	m.(io.Closer).Close()

	if _, err := fsys.MountDevice("(hd0),mbr9"); err == nil {
		t.Fatal("nonexistent partition number mounted")
	}
	if _, err := fsys.MountDevice("(hd0),nonsense1"); err == nil {
		t.Fatal("unknown partition map name mounted")
	}
	if _, err := fsys.MountDevice("(hd0),mbr"); err == nil {
		t.Fatal("selector with no partition number mounted")
	}
}
