// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	gozip "archive/zip"
	"bytes"
	"encoding/hex"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing"
	"time"
)

// mtime with even seconds, so the DOS-time fallback (2 s resolution)
// agrees with the extended-timestamp field.
var testMtime = time.Date(2023, 11, 5, 10, 30, 42, 0, time.UTC)

type zipEntry struct {
	name    string
	mode    fs.FileMode
	content string
}

func buildZip(t *testing.T, comment string, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)
	if comment != "" {
		if err := w.SetComment(comment); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range entries {
		hdr := &gozip.FileHeader{Name: e.name, Modified: testMtime}
		hdr.SetMode(e.mode)
		if e.mode&fs.ModeType == 0 {
			hdr.Method = gozip.Deflate
		}
		f, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(f, e.content)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestVsStdlib(t *testing.T) {
	data := buildZip(t, "", []zipEntry{
		{"a.txt", 0o644, "alpha"},
		{"dir/", fs.ModeDir | 0o755, ""},
		{"dir/b.txt", 0o644, strings.Repeat("beta", 10000)},
		{"dir/sub/c.bin", 0o600, "\x00\x01\x02\x03"},
	})
	r := bytes.NewReader(data)

	fsys, err := New2(r, r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	stdlib, err := gozip.NewReader(r, int64(len(data)))
	if err != nil {
		t.Fatal("the canonical implementation complains", err)
	}

	for _, f := range stdlib.File {
		name := strings.TrimSuffix(f.Name, "/")

		myinf, err := fs.Lstat(fsys, name)
		if err != nil {
			t.Fatalf("unable to stat %q: %v", f.Name, err)
		}
		if f.Mode()&fs.ModeType != myinf.Mode()&fs.ModeType {
			t.Errorf("mode of %q: expect %s got %s", f.Name, f.Mode(), myinf.Mode())
		}
		if f.UncompressedSize64 != uint64(myinf.Size()) {
			t.Errorf("size of %q: expect %d got %d", f.Name, f.UncompressedSize64, myinf.Size())
		}
		t1 := f.Modified.UTC()
		t2 := myinf.ModTime().UTC()
		tf := "2006-01-02-15:04:05.999999999"
		if !t1.Equal(t2) {
			t.Errorf("mtime of %q: expect %s got %s", f.Name, t1.Format(tf), t2.Format(tf))
		}

		if f.Mode().IsRegular() {
			theirdata, _ := fs.ReadFile(stdlib, f.Name)
			ourdata, err := fs.ReadFile(fsys, name)
			if err != nil {
				t.Errorf("error reading %q: %v", f.Name, err)
			}
			if !bytes.Equal(theirdata, ourdata) {
				t.Errorf("wrong data reading %q", f.Name)
			}
		}
	}
}

func TestPerms(t *testing.T) {
	data := buildZip(t, "", []zipEntry{
		{"noexec", 0o644, "plain"},
		{"exec", 0o755, "#!/bin/sh\n"},
	})
	r := bytes.NewReader(data)
	fsys, err := New2(r, r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"noexec", "exec"} {
		inf, err := fs.Stat(fsys, name)
		if err != nil {
			t.Fatal(err)
		}
		haveExec := inf.Mode()&0o100 != 0
		wantExec := name == "exec"
		if haveExec != wantExec {
			t.Errorf("%q has perms %s", name, inf.Mode())
		}
	}
}

func TestLinks(t *testing.T) {
	data := buildZip(t, "", []zipEntry{
		{"target1", 0o644, "pointed at"},
		{"1", fs.ModeSymlink | 0o777, "target1"},
		{"dir/target2", 0o644, "also pointed at"},
		{"dir/2", fs.ModeSymlink | 0o777, "target2"},
	})
	r := bytes.NewReader(data)
	fsys, err := New2(r, r, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	nlinks := 0
	fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if d.Type() != fs.ModeSymlink {
			return nil
		}
		nlinks++
		target, err := fs.ReadLink(fsys, name)
		if err != nil {
			t.Fatal(err)
		}
		if path.Base(target) != "target"+path.Base(name) {
			t.Errorf("%q: target should not be %q", name, target)
		}
		f, err := fsys.Open(name)
		if err != nil {
			t.Error(err)
		}
		f.Close()
		return nil
	})
	if nlinks != 2 {
		t.Errorf("walked %d symlinks, want 2", nlinks)
	}
}

func TestEOCD(t *testing.T) {
	comments := map[string]string{
		"nocomment":    "",
		"shortcomment": "archive comment",
		"longcomment":  strings.Repeat("x", 4000),
	}
	for name, comment := range comments {
		t.Run(name, func(t *testing.T) {
			fullZip := buildZip(t, comment, []zipEntry{{"f", 0o644, "content"}})

			eocd, err := getEOCD(bytes.NewReader(fullZip), int64(len(fullZip)))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.HasPrefix(eocd, []byte("PK\x05\x06")) {
				t.Fatal("expected EOCD, got", hex.EncodeToString(eocd))
			}
			if !bytes.HasSuffix(fullZip, eocd) {
				t.Fatal("EOCD corrupted")
			}

			// the scan must stay within the EOCD itself
			restricted := bytes.NewReader(eocd)
			eocd, err = getEOCD(restricted, restricted.Size())
			if err != nil {
				t.Fatal("read beyond bounds", err)
			}
			if !bytes.HasPrefix(eocd, []byte("PK\x05\x06")) {
				t.Fatal("expected EOCD, got", hex.EncodeToString(eocd))
			}
		})
	}
}
