// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"testing"
	"testing/fstest"
	"time"
)

// nestedArchive builds a zip inside a tar inside a gzip, the burrow chain
// the composite FS is expected to descend transparently.
func nestedArchive(t *testing.T) fstest.MapFS {
	t.Helper()
	mtime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	zf, err := zw.Create("hello world.txt")
	if err != nil {
		t.Fatal(err)
	}
	zf.Write([]byte("hello world\n"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var tbuf bytes.Buffer
	tw := tar.NewWriter(&tbuf)
	if err := tw.WriteHeader(&tar.Header{
		Name:    "archive.zip",
		Mode:    0o644,
		Size:    int64(zbuf.Len()),
		ModTime: mtime,
	}); err != nil {
		t.Fatal(err)
	}
	tw.Write(zbuf.Bytes())
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	gw.Write(tbuf.Bytes())
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	return fstest.MapFS{
		"testdata/archive.tgz": &fstest.MapFile{Data: gbuf.Bytes(), ModTime: mtime},
	}
}

func TestFS(t *testing.T) {
	fsys := New(nestedArchive(t), Config{})
	defer fsys.Close()
	fsys.Prefetch()
	err := fstest.TestFS(fsys, "testdata/archive.tgz◆/archive.tar◆/archive.zip◆/hello world.txt")
	if err != nil {
		t.Error(err)
	}
}
