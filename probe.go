package corefs

import (
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"math"
	gopath "path"
	"strings"

	"github.com/arcfs/corefs/internal/apm"
	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/filefilter"
	"github.com/arcfs/corefs/internal/fskeleton"
	"github.com/arcfs/corefs/internal/fsreg"
	"github.com/arcfs/corefs/internal/fsview"
	"github.com/arcfs/corefs/internal/hfs"
	"github.com/arcfs/corefs/internal/internpath"
	"github.com/arcfs/corefs/internal/partmap"
	"github.com/arcfs/corefs/internal/reader2readerat"
	"github.com/arcfs/corefs/internal/singlefilefs"
	"github.com/arcfs/corefs/internal/sit"
	"github.com/arcfs/corefs/internal/tar"
	"github.com/arcfs/corefs/internal/zipreaderat"
	"github.com/therootcompany/xz"
)

const sizeUnknown = -1 // small negative numbers are most efficient for the disk cache

// singleDecompressedFile presents a stream codec's output as the sole
// file of a one-entry fs.FS named innerName. open runs per fs.FS Open
// call, deferring decompression until the bytes are actually wanted; the
// reader2readerat wrapper layers cached random access over the
// sequential stream. None of
// the stream codecs wired here (gzip, bzip2, xz, and the filefilter chain
// below) offer random access into the compressed form. stat's mtime is
// inherited from the compressed file since none of these formats carry
// their own.
func singleDecompressedFile(innerName string, info fs.FileInfo, open func() (io.Reader, error)) fs.FS {
	return &reader2readerat.FS{FS: &singlefilefs.FS{
		Name:       innerName,
		FileOpener: open,
		ModTime:    info.ModTime(),
		Size:       sizeUnknown,
	}}
}

// probeArchive examines the filename and file header,
// and returns a function returning an fs.FS (which can be expensive to run).
//
// Much ink has been spilt over the problem of determining file types from examining headers.
// The competing requirements of this implementation are:
//   - Minimise seeking to the end of the file, which requires whole-file decompression if compressed
//   - Minimise querying the size of the file, which requires whole-file decompression if gzipped
//   - Leave enough header bytes in the SQLite cache that adding a new file format
//     might not require a very expensive update to every file's cache entry
//   - But also not fill up the cache needlessly
//   - Be sceptical of the file extension, only using it if it brings great savings
func (o path) probeArchive() (fsysGenerator, error) {
	info, err := o.rawStat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, err
	}

	headerReader, err := o.prefetchCachedOpen()
	if err != nil {
		return nil, err
	}
	dataReader := headerReader.withoutCaching()

	// Easy: switch on file extension
	switch gopath.Ext(o.name.Base()) {
	case ".tar":
		return func() (fs.FS, error) { return tar.New2(headerReader, dataReader), nil }, nil
	}

	// Slightly harder: switch on the first 16 bytes
	head := make([]byte, 16)
	n, err := headerReader.ReadAt(head, 0)
	if n != len(head) {
		if err == io.EOF {
			return nil, nil // not an archive
		} else if err != nil {
			return nil, err // an actual problem
		}
	}
	at := func(s string, o int) bool { return string(head[o:][:len(s)]) == s }

	switch {
	case at("StuffIt (c)1997-", 0) || at("S", 0) && at("rLau", 10):
		return func() (fs.FS, error) { return sit.New2(headerReader, dataReader) }, nil
	case at("ER", 0) && // Apple Partition Map
		(at("\x02\x00", 2) || at("\x04\x00", 2) || at("\x08\x00", 2) || at("\x10\x00", 2)): // block sizes
		return func() (fs.FS, error) {
			defer headerReader.stopCaching()
			return apm.New(headerReader)
		}, nil
	case at("\x1f\x8b\x08", 0):
		return func() (fs.FS, error) {
			innerName := changeSuffix(o.name.Base(), ".gz .gzip .tgz=.tar")
			return singleDecompressedFile(innerName, info, func() (io.Reader, error) {
				return gzip.NewReader(io.NewSectionReader(dataReader, 0, math.MaxInt64))
			}), nil
		}, nil
	case at("BZh", 0) && head[3] >= '0' && head[3] <= '9' && at("\x31\x41\x59\x26\x53\x59", 4) &&
		!strings.HasSuffix(o.name.Base(), ".dmg"): // UDIFs have a more complex format, ignore the bzip2 header
		return func() (fs.FS, error) {
			innerName := changeSuffix(o.name.Base(), ".bz .bz2 .bzip2 .tbz=.tar .tb2=.tar")
			return singleDecompressedFile(innerName, info, func() (io.Reader, error) {
				return bzip2.NewReader(io.NewSectionReader(dataReader, 0, math.MaxInt64)), nil
			}), nil
		}, nil
	case at("\xfd7zXZ\x00", 0):
		return func() (fs.FS, error) {
			innerName := changeSuffix(o.name.Base(), ".xz .txz=.tar")
			return singleDecompressedFile(innerName, info, func() (io.Reader, error) {
				return xz.NewReader(io.NewSectionReader(dataReader, 0, math.MaxInt64), xz.DefaultDictMax)
			}), nil
		}, nil
	case at("MZ", 0): // possible self-extracting ZIP, work backward from end to find PK
		// currently only accommodates ZIP headers without a comment field
		stat, err := headerReader.Stat()
		if err != nil {
			return nil, err
		}
		size := stat.Size()

		if size >= 100 { // smallest conceivable self-extracting ZIP
			eocd := make([]byte, 22)
			n, err := headerReader.ReadAt(eocd, size-int64(len(eocd)))
			if n < len(eocd) {
				return nil, err
			}
			if string(eocd[:2]) == "PK" && string(eocd[20:]) == "\x00\x00" {
				goto zip
			}
		}
		break
	zip:
		fallthrough
	case at("PK\x03\x04", 0): // plain zip
		stat, err := headerReader.Stat()
		if err != nil {
			return nil, err
		}
		size := stat.Size()
		return func() (fs.FS, error) {
			defer headerReader.stopCaching()
			r, err := zip.NewReader(headerReader, size)
			if err != nil {
				return nil, err
			}
			// the Archive wrapper gives every opened member io.ReaderAt
			// by reopening and accumulating, instead of round-tripping
			// through the spinner pool
			arch := &zipreaderat.Archive{Reader: r}
			for _, f := range r.File { // hack to make zips fast
				if strings.HasSuffix(f.Name, "/") {
					continue
				}
				ofs, err := f.DataOffset() // get all the metadata we need to read the archive
				if err != nil {
					continue
				}
				o.container.zMu.Lock()
				if o.container.zipLocs == nil {
					o.container.zipLocs = make(map[path]int64)
				}
				o.container.zipLocs[path{o.container, arch, internpath.New(f.Name)}] = ofs
				o.container.zMu.Unlock()
			}
			return arch, nil
		}, nil
	}

	// Hardest: HFS volumes
	// - has no reliable file extension or type code
	// - magic number offset by 1 kb
	// - (unsupported) Disk Copy compression leaves the magic number intact
	// First two bytes of the "boot block" will be blank or Larry Kenyon's initials
	if at("\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00", 0) || // boot blocks truly empty
		at("LK\x60", 0) || // boot blocks on
		at("\x00\x00\x60", 0) { // boot blocks deliberately disabled
		stat, err := o.cookedStat()
		if err != nil {
			return nil, err
		}
		size := stat.Size()
		if size >= 400*1024 { // smallest Mac floppy
			mdb := make([]byte, 128)
			n, _ := headerReader.ReadAt(mdb, 1024)
			drAlBlkSiz := binary.BigEndian.Uint32(mdb[0x14:])
			if n == len(mdb) &&
				string(mdb[:2]) == "BD" && string(mdb[0x7c:0x7e]) != "H+" && // enforce HFS, exclude HFS+ wrapper
				drAlBlkSiz >= 512 && drAlBlkSiz%512 == 0 { // reinforce the fairly weak magic number
				return func() (fs.FS, error) { return hfs.New2(headerReader, dataReader) }, nil
			}
		}
	}
	if gen, err := o.probeRegistries(headerReader, dataReader, info, head); gen != nil || err != nil {
		return gen, err
	}

	headerReader.Close()
	return nil, nil // not an archive
}

// probeRegistries is tried once the hand-written fast paths above (which
// cover the formats the fast path detects cheaply) find
// nothing: the filesystem-module registry, the partition-map registry,
// and the compression-filter chain, in that order. Each is a process-wide
// list that new formats join by importing their package, so extending
// detection never touches this file.
func (o path) probeRegistries(headerReader *cachingFile, dataReader io.ReaderAt, info fs.FileInfo, head []byte) (fsysGenerator, error) {
	size := info.Size()
	if size < 0 {
		stat, err := headerReader.Stat()
		if err != nil {
			return nil, err
		}
		size = stat.Size()
	}
	disk := &blockio.ReaderAtDisk{NameStr: o.name.Base(), R: dataReader, Size: size}

	if format, err := fsreg.Probe(disk); err == nil {
		return func() (fs.FS, error) { return fsview.New(disk, format) }, nil
	}

	if _, parts, err := partmap.ProbeAll(disk); err == nil && parts != nil {
		return func() (fs.FS, error) {
			return partmap.AsFS(parts, func(p *blockio.Partition) (blockio.Disk, error) {
				return blockio.NewSlice(fmt.Sprintf("%s/%d", o.name.Base(), p.Number), p, nil)
			}), nil
		}, nil
	}

	if rule := filefilter.Probe(o.name.Base(), head); rule != nil {
		innerName := changeSuffix(o.name.Base(),
			".gz .gzip .tgz=.tar .bz .bz2 .bzip2 .tbz=.tar .tb2=.tar .xz .txz=.tar "+
				".zst .zstd .tzst=.tar .lz4=.tar .lzo .lzop=.tar .sea .bin=")
		return func() (fs.FS, error) {
			out, err := rule.Wrap(readerAtHandle(dataReader, size))
			if err != nil {
				return nil, err
			}
			fsys := fskeleton.New()
			if err := fsys.CreateReaderAt(innerName, 0, out, out.Size, 0o444, info.ModTime()); err != nil {
				return nil, err
			}
			fsys.NoMore()
			return fsys, nil
		}, nil
	}

	return nil, nil
}

// readerAtHandle wraps a plain io.ReaderAt as a *fsreg.Handle whose Read
// closure captures r directly, for feeding filefilter.Rule.Wrap (which
// expects a Handle, not a bare ReaderAt) a view of an archive file this
// package already has open.
func readerAtHandle(r io.ReaderAt, size int64) *fsreg.Handle {
	format := &fsreg.Format{
		Name: "corefs-bridge",
		Read: func(_ *fsreg.Handle, _ any, p []byte, off int64) (int, error) {
			return r.ReadAt(p, off)
		},
		Close: func(any) error { return nil },
	}
	return &fsreg.Handle{Format: format, Size: size}
}

// changeSuffix is filefilter.ChangeSuffix under the historical local
// name; see there for the Apache "file.tar_.gz" munge it also undoes.
func changeSuffix(s string, suffixes string) string {
	return filefilter.ChangeSuffix(s, suffixes)
}
