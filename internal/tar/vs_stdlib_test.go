// Copyright Elliot Nunn. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Compare this package against the canonical go one

package tar

import (
	gotar "archive/tar"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"testing"
)

// testTars builds a handful of archives with the canonical writer: plain
// files, nested directories, symlinks (relative and absolute), an empty
// archive, and a file large enough to span several 512-byte blocks.
func testTars(t *testing.T) map[string][]byte {
	t.Helper()
	write := func(entries func(*gotar.Writer)) []byte {
		var buf bytes.Buffer
		w := gotar.NewWriter(&buf)
		entries(w)
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	file := func(w *gotar.Writer, name, content string) {
		w.WriteHeader(&gotar.Header{Name: name, Typeflag: gotar.TypeReg, Mode: 0o644, Size: int64(len(content))})
		io.WriteString(w, content)
	}
	return map[string][]byte{
		"flat.tar": write(func(w *gotar.Writer) {
			file(w, "a.txt", "alpha")
			file(w, "b.txt", "bravo")
		}),
		"nested.tar": write(func(w *gotar.Writer) {
			w.WriteHeader(&gotar.Header{Name: "dir/", Typeflag: gotar.TypeDir, Mode: 0o755})
			w.WriteHeader(&gotar.Header{Name: "dir/sub/", Typeflag: gotar.TypeDir, Mode: 0o755})
			file(w, "dir/sub/deep.txt", "down here")
			file(w, "dir/shallow.txt", "up here")
		}),
		"links.tar": write(func(w *gotar.Writer) {
			file(w, "target.txt", "pointed at")
			w.WriteHeader(&gotar.Header{Name: "rel-link", Typeflag: gotar.TypeSymlink, Linkname: "target.txt"})
			w.WriteHeader(&gotar.Header{Name: "abs-link", Typeflag: gotar.TypeSymlink, Linkname: "/target.txt"})
		}),
		"big.tar": write(func(w *gotar.Writer) {
			file(w, "big.bin", strings.Repeat("0123456789abcdef", 1024))
		}),
		"empty.tar": write(func(*gotar.Writer) {}),
	}
}

func TestVsStandardLibrary(t *testing.T) {
	for name, data := range testTars(t) {
		t.Run(name, func(t *testing.T) {
			ourFiles, _ := dumpOurImplementation(bytes.NewReader(data))
			theirFiles, _ := dumpStdlibImplementation(bytes.NewReader(data))

			// if comparableErrorString(theirErr) != comparableErrorString(ourErr) {
			// 	t.Errorf("expected error %v, got %v", theirErr, ourErr)
			// }
			// if theirErr != nil {
			// 	t.Logf("agreed on an error: %v", theirErr)
			// }

			for name, theirValue := range theirFiles {
				ourValue, ok := ourFiles[name]
				if !ok {
					t.Errorf("our implementation missing a %s: %q", strings.SplitN(theirValue, "=", 2)[0], name)
				} else if theirValue != ourValue {
					if len(theirValue) > 100 {
						theirValue = theirValue[:100] + "..."
					}
					if len(ourValue) > 100 {
						ourValue = ourValue[:100] + "..."
					}
					t.Errorf("difference in %q\nexpect: %s\n   got: %s", name, theirValue, ourValue)
				}
			}
		})
	}
}

func dumpOurImplementation(r io.ReaderAt) (files map[string]string, err error) {
	fsys := New(r)
	files = make(map[string]string)
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		fi, err := d.Info()
		if err != nil {
			panic(err)
		}

		switch d.Type() {
		case fs.ModeDir:
			files[name] = "directory"
		case fs.ModeSymlink:
			targ, _ := fsys.(interface{ ReadLink(string) (string, error) }).ReadLink(name)
			files[name] = "link=" + targ
		case 0:
			files[name] = "file=" + strconv.Itoa(int(fi.Size()))
			f, err := fsys.Open(name)
			if err != nil {
				files[name] += "=unopenable(" + comparableErrorString(err) + ")"
				return nil
			}
			defer f.Close()
			data, _ := io.ReadAll(io.LimitReader(f, 10000000))
			files[name] += "=" + hex.EncodeToString(data)
		default:
			panic("bad file type!")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func dumpStdlibImplementation(r io.Reader) (files map[string]string, err error) {
	tar := gotar.NewReader(r)
	files = make(map[string]string)
	for {
		var hdr *gotar.Header
		hdr, err := tar.Next()
		switch err {
		case gotar.ErrInsecurePath:
			err = nil // we don't mind
		case io.EOF:
			return files, nil // done
		case nil:
			// ok
		default:
			return nil, err // uh oh
		}

		// Currently our implementation is UTF8-only
		cleanPath := strings.Trim(hdr.Name, "/")

		switch hdr.Typeflag {
		case gotar.TypeReg, gotar.TypeGNUSparse:
			files[cleanPath] = "file=" + strconv.Itoa(int(hdr.Size))
			if !fs.ValidPath(cleanPath) {
				files[cleanPath] += "=unopenable(" + comparableErrorString(fs.ErrInvalid) + ")"
				continue
			}
			data, _ := io.ReadAll(io.LimitReader(tar, 10000000))
			files[cleanPath] += "=" + hex.EncodeToString(data)
		case gotar.TypeDir:
			files[cleanPath] = "directory"
		case gotar.TypeSymlink:
			l, isAbs := strings.CutPrefix(hdr.Linkname, "/")
			if !isAbs {
				l = path.Join(cleanPath, "..", hdr.Linkname)
			}
			files[cleanPath] = "link=" + l
		}
	}
}

func comparableErrorString(err error) string {
	s := fmt.Sprint(err)
	_, snipped, ok := strings.Cut(s, ": ")
	if ok {
		return snipped
	}
	return s
}
