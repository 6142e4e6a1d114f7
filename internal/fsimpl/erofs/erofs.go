// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package erofs registers the EROFS (Enhanced Read-Only File System)
// module, following the on-disk format documented in the Linux kernel's
// erofs_fs.h. All five inode data layouts are readable:
// flat plain, flat inline (tail-packing), chunk based (with holes), and
// the two LZ4 Z-cluster compressed forms (full and compacted lcluster
// indices), including big pclusters, inline/interlaced/fragment tail
// pclusters, and zero-padded compressed blocks. The Z-cluster machinery
// lives in zdata.go.
package erofs

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	superOffset = 1024
	magic       = 0xE0F5E1E2
	islotBits   = 5
)

// superblock incompatible-feature bits; an image carrying any other bit
// is refused rather than misread.
const (
	featureZeroPadding  = 0x00000001
	featureBigPCluster  = 0x00000002
	featureChunkedFile  = 0x00000004
	featureZTailpacking = 0x00000010
	featureFragments    = 0x00000020

	featureAll = featureZeroPadding | featureBigPCluster |
		featureChunkedFile | featureZTailpacking | featureFragments
)

const (
	layoutCompact  = 0
	layoutExtended = 1
)

const (
	datalayoutFlatPlain         = 0
	datalayoutCompressedFull    = 1
	datalayoutFlatInline        = 2
	datalayoutCompressedCompact = 3
	datalayoutChunkBased        = 4
)

const (
	chunkFormatBlkbitsMask = 0x001F
	chunkFormatIndexes     = 0x0020

	nullAddr = 0xFFFFFFFF
)

const (
	ftRegFile = 1
	ftDir     = 2
	ftSymlink = 7
)

type superblock struct {
	blkszLog2       uint
	rootNid         uint64
	buildTime       int64
	metaBlkAddr     uint32
	uuid            [16]byte
	volumeName      string
	featureIncompat uint32
	packedNid       uint64
}

func probe(disk blockio.Disk) error {
	buf := make([]byte, 4)
	n, err := disk.ReadAt(buf, superOffset)
	if n < 4 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if binary.LittleEndian.Uint32(buf) != magic {
		return fsreg.ErrUnsupported
	}
	return nil
}

func readSuper(disk blockio.Disk) (superblock, error) {
	buf := make([]byte, 128)
	if _, err := disk.ReadAt(buf, superOffset); err != nil {
		return superblock{}, err
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magic {
		return superblock{}, fmt.Errorf("erofs: bad superblock magic")
	}
	sb := superblock{
		blkszLog2:       uint(buf[12]),
		rootNid:         uint64(binary.LittleEndian.Uint16(buf[14:16])),
		buildTime:       int64(binary.LittleEndian.Uint64(buf[24:32])),
		metaBlkAddr:     binary.LittleEndian.Uint32(buf[40:44]),
		featureIncompat: binary.LittleEndian.Uint32(buf[80:84]),
		packedNid:       binary.LittleEndian.Uint64(buf[96:104]),
	}
	copy(sb.uuid[:], buf[48:64])
	sb.volumeName = strings.TrimRight(string(buf[64:80]), "\x00")
	if sb.blkszLog2 < 9 || sb.blkszLog2 > 16 {
		return superblock{}, fmt.Errorf("erofs: bad log2 block size %d", sb.blkszLog2)
	}
	if unknown := sb.featureIncompat &^ featureAll; unknown != 0 {
		return superblock{}, fmt.Errorf("erofs: unsupported incompat features %#x: %w", unknown, fsreg.ErrUnsupported)
	}
	return sb, nil
}

// inode is the decoded union of the compact and extended on-disk forms.
type inode struct {
	format      uint16
	xattrICount uint16
	mode        uint16
	size        uint64
	union       uint32 // raw_blkaddr / compressed_blocks / chunk info, layout dependent
	mtime       int64
	mtimeSet    bool
	iloc        int64 // byte offset of this inode within the meta area
	ownSize     int64 // 32 (compact) or 64 (extended)
}

func (ino inode) version() int    { return int(ino.format & 0x01) }
func (ino inode) dataLayout() int { return int((ino.format >> 1) & 0x07) }

func iloc(sb superblock, nid uint64) int64 {
	return (int64(sb.metaBlkAddr) << sb.blkszLog2) + int64(nid<<islotBits)
}

func readInode(disk blockio.Disk, sb superblock, nid uint64) (inode, error) {
	addr := iloc(sb, nid)
	head := make([]byte, 32)
	if _, err := disk.ReadAt(head, addr); err != nil {
		return inode{}, err
	}
	format := binary.LittleEndian.Uint16(head[0:2])
	ino := inode{
		format:      format,
		xattrICount: binary.LittleEndian.Uint16(head[2:4]),
		mode:        binary.LittleEndian.Uint16(head[4:6]),
		iloc:        addr,
	}
	if ino.version() == layoutExtended {
		ext := make([]byte, 64)
		if _, err := disk.ReadAt(ext, addr); err != nil {
			return inode{}, err
		}
		ino.size = binary.LittleEndian.Uint64(ext[8:16])
		ino.union = binary.LittleEndian.Uint32(ext[16:20])
		ino.mtime = int64(binary.LittleEndian.Uint64(ext[24:32]))
		ino.mtimeSet = true
		ino.ownSize = 64
	} else {
		ino.size = uint64(binary.LittleEndian.Uint32(head[8:12]))
		ino.union = binary.LittleEndian.Uint32(head[16:20])
		ino.ownSize = 32
	}
	return ino, nil
}

func xattrSize(ino inode) int64 {
	if ino.xattrICount == 0 {
		return 0
	}
	return 12 + int64(ino.xattrICount-1)*4
}

func blockSize(sb superblock) int64 { return 1 << sb.blkszLog2 }

// inodeDataBase is the byte offset immediately after the inode body and
// its inline xattr area, where inline tail data and Z headers live.
func inodeDataBase(ino inode) int64 {
	return ino.iloc + ino.ownSize + xattrSize(ino)
}

func alignUp8(v int64) int64 { return (v + 7) &^ 7 }

func inodeMtime(sb superblock, ino inode) time.Time {
	if ino.mtimeSet {
		return time.Unix(ino.mtime, 0).UTC()
	}
	return time.Unix(sb.buildTime, 0).UTC()
}

// fileHandle carries everything a read against one inode needs; the Z
// header is decoded lazily on the first compressed-layout read.
type fileHandle struct {
	disk blockio.Disk
	sb   superblock
	ino  inode
	zh   *zHeader
}

// rawMap is the resolution of one logical offset of a flat or chunk-based
// inode: [la, la+llen) maps to disk bytes [pa, pa+plen), or is a hole
// when mapped is false.
type rawMap struct {
	la, pa, llen, plen int64
	mapped             bool
}

func (fh *fileHandle) mapRaw(m *rawMap) error {
	if m.la >= int64(fh.ino.size) {
		*m = rawMap{la: m.la}
		return nil
	}
	if fh.ino.dataLayout() == datalayoutChunkBased {
		return fh.mapRawChunk(m)
	}
	return fh.mapRawFlat(m)
}

func (fh *fileHandle) mapRawFlat(m *rawMap) error {
	blksz := blockSize(fh.sb)
	fileSize := int64(fh.ino.size)
	nblocks := (fileSize + blksz - 1) / blksz
	tailpacking := int64(0)
	if fh.ino.dataLayout() == datalayoutFlatInline {
		tailpacking = 1
	}
	lastblk := nblocks - tailpacking

	m.mapped = true
	switch {
	case m.la < lastblk*blksz:
		m.pa = int64(fh.ino.union)*blksz + m.la
		m.plen = lastblk*blksz - m.la
	case tailpacking == 1:
		m.pa = inodeDataBase(fh.ino) + m.la%blksz
		m.plen = fileSize - m.la
		if m.pa%blksz+m.plen > blksz {
			return fmt.Errorf("erofs: inline data crosses a block boundary")
		}
	default:
		return fmt.Errorf("erofs: offset %d beyond flat mapping", m.la)
	}
	m.llen = m.plen
	return nil
}

func (fh *fileHandle) mapRawChunk(m *rawMap) error {
	chunkFormat := uint16(fh.ino.union)
	unit := int64(4)
	if chunkFormat&chunkFormatIndexes != 0 {
		unit = 8
	}
	chunkBits := fh.sb.blkszLog2 + uint(chunkFormat&chunkFormatBlkbitsMask)

	chunkNr := m.la >> chunkBits
	pos := (inodeDataBase(fh.ino) + unit - 1) &^ (unit - 1)
	pos += chunkNr * unit

	blksz := blockSize(fh.sb)
	m.la = chunkNr << chunkBits
	m.plen = int64(1) << chunkBits
	if rest := (int64(fh.ino.size) - m.la + blksz - 1) &^ (blksz - 1); rest < m.plen {
		m.plen = rest
	}

	ent := make([]byte, unit)
	if _, err := fh.disk.ReadAt(ent, pos); err != nil && err != io.EOF {
		return err
	}
	var blkaddr uint32
	if chunkFormat&chunkFormatIndexes != 0 {
		blkaddr = binary.LittleEndian.Uint32(ent[4:8])
	} else {
		blkaddr = binary.LittleEndian.Uint32(ent[0:4])
	}
	if blkaddr == nullAddr {
		m.pa = 0
		m.mapped = false
	} else {
		m.pa = int64(blkaddr) << fh.sb.blkszLog2
		m.mapped = true
	}
	m.llen = m.plen
	return nil
}

// readRaw services reads for the uncompressed layouts, zero-filling
// chunk-based holes.
func (fh *fileHandle) readRaw(p []byte, offset int64) (int, error) {
	var m rawMap
	cur := offset
	end := offset + int64(len(p))
	for cur < end {
		m.la = cur
		if err := fh.mapRaw(&m); err != nil {
			return int(cur - offset), err
		}
		eend := min(end, m.la+m.llen)
		if !m.mapped {
			if m.llen == 0 {
				clear(p[cur-offset:])
				cur = end
				continue
			}
			clear(p[cur-offset : eend-offset])
			cur = eend
			continue
		}
		moff := int64(0)
		if cur > m.la {
			moff = cur - m.la
		}
		if _, err := fh.disk.ReadAt(p[cur-offset:eend-offset], m.pa+moff); err != nil && err != io.EOF {
			return int(cur - offset), err
		}
		cur = eend
	}
	return len(p), nil
}

// pread reads up to len(p) bytes at off, dispatching on the inode's data
// layout. Short reads happen only at EOF.
func (fh *fileHandle) pread(p []byte, off int64) (int, error) {
	size := int64(fh.ino.size)
	if off < 0 {
		return 0, fmt.Errorf("erofs: negative offset")
	}
	if off >= size {
		return 0, io.EOF
	}
	shrunk := false
	if int64(len(p)) > size-off {
		p = p[:size-off]
		shrunk = true
	}
	var n int
	var err error
	switch fh.ino.dataLayout() {
	case datalayoutFlatPlain, datalayoutFlatInline, datalayoutChunkBased:
		n, err = fh.readRaw(p, off)
	case datalayoutCompressedFull, datalayoutCompressedCompact:
		if fh.zh == nil {
			fh.zh, err = readZHeader(fh.disk, fh.sb, fh.ino)
			if err != nil {
				return 0, err
			}
		}
		n, err = fh.readZ(p, off)
	default:
		return 0, fmt.Errorf("erofs: unknown data layout %d", fh.ino.dataLayout())
	}
	if err == nil && shrunk {
		err = io.EOF
	}
	return n, err
}

type node struct {
	nid uint64
	ino inode
}

func buildRoot(disk blockio.Disk) (any, error) {
	sb, err := readSuper(disk)
	if err != nil {
		return nil, err
	}
	ino, err := readInode(disk, sb, sb.rootNid)
	if err != nil {
		return nil, err
	}
	return &node{nid: sb.rootNid, ino: ino}, nil
}

type direntRaw struct {
	nid      uint64
	fileType uint8
	name     string
}

// iterateDirents walks the directory's content block by block; the fixed
// 12-byte dirent records sit at the front of each block, names at the
// back, delimited by the next record's nameoff (or a NUL/end-of-block for
// the final one).
func iterateDirents(disk blockio.Disk, sb superblock, ino inode, yield func(direntRaw) bool) error {
	fh := &fileHandle{disk: disk, sb: sb, ino: ino}
	blksz := blockSize(sb)
	var offset int64
	fsize := int64(ino.size)
	for offset < fsize {
		maxsize := min(blksz, fsize-offset)
		buf := make([]byte, maxsize)
		if _, err := fh.pread(buf, offset); err != nil && err != io.EOF {
			return err
		}
		if len(buf) < 12 {
			break
		}
		firstNameoff := binary.LittleEndian.Uint16(buf[10:12])
		if int64(firstNameoff) < 12 || int64(firstNameoff) > maxsize {
			return fmt.Errorf("erofs: invalid dirent[0].nameoff %d", firstNameoff)
		}
		count := int(firstNameoff) / 12
		for i := 0; i < count; i++ {
			rec := buf[i*12 : i*12+12]
			nameoff := binary.LittleEndian.Uint16(rec[8:10])
			var namelen int
			if i+1 < count {
				nextOff := binary.LittleEndian.Uint16(buf[(i+1)*12+8 : (i+1)*12+10])
				namelen = int(nextOff) - int(nameoff)
			} else {
				end := int64(len(buf))
				for j := int64(nameoff); j < end; j++ {
					if buf[j] == 0 {
						end = j
						break
					}
				}
				namelen = int(end) - int(nameoff)
			}
			if namelen < 0 || int(nameoff)+namelen > len(buf) {
				return fmt.Errorf("erofs: invalid dirent name bounds")
			}
			if !yield(direntRaw{
				nid:      binary.LittleEndian.Uint64(rec[0:8]),
				fileType: rec[10],
				name:     string(buf[nameoff : int(nameoff)+namelen]),
			}) {
				return nil
			}
		}
		offset += maxsize
	}
	return nil
}

func iterateDir(disk blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
	n := private.(*node)
	sb, err := readSuper(disk)
	return func(yield func(fsreg.DirEntryInfo, error) bool) {
		if err != nil {
			yield(fsreg.DirEntryInfo{}, err)
			return
		}
		werr := iterateDirents(disk, sb, n.ino, func(e direntRaw) bool {
			if e.name == "." || e.name == ".." {
				return true
			}
			childIno, ierr := readInode(disk, sb, e.nid)
			if ierr != nil {
				return yield(fsreg.DirEntryInfo{}, ierr)
			}
			d := fsreg.DirEntryInfo{
				Name:      e.name,
				IsDir:     e.fileType == ftDir,
				IsSymlink: e.fileType == ftSymlink,
				Size:      int64(childIno.size),
				MtimeSet:  true,
				Mtime:     inodeMtime(sb, childIno),
				InodeSet:  true,
				Inode:     e.nid,
			}
			return yield(d, nil)
		})
		if werr != nil {
			yield(fsreg.DirEntryInfo{}, werr)
		}
	}
}

func findChild(disk blockio.Disk, sb superblock, dirIno inode, name string) (uint64, uint8, error) {
	var nid uint64
	var ft uint8
	found := false
	err := iterateDirents(disk, sb, dirIno, func(e direntRaw) bool {
		if e.name == name {
			nid, ft = e.nid, e.fileType
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, fmt.Errorf("erofs: %q: %w", name, io.ErrUnexpectedEOF)
	}
	return nid, ft, nil
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:       "erofs",
		Probe:      probe,
		OpenRoot:   buildRoot,
		IterateDir: iterateDir,
		OpenChild: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			sb, err := readSuper(disk)
			if err != nil {
				return nil, err
			}
			nid, ft, err := findChild(disk, sb, n.ino, entry.Name)
			if err != nil {
				return nil, err
			}
			childIno, err := readInode(disk, sb, nid)
			if err != nil {
				return nil, err
			}
			if ft == ftDir {
				return &node{nid: nid, ino: childIno}, nil
			}
			return &fileHandle{disk: disk, sb: sb, ino: childIno}, nil
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh, ok := private.(*fileHandle)
			if !ok {
				return 0, fsreg.ErrUnsupported
			}
			return fh.pread(p, off)
		},
		Close: func(any) error { return nil },
		Readlink: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (string, error) {
			n, ok := private.(*node)
			if !ok {
				return "", fsreg.ErrUnsupported
			}
			sb, err := readSuper(disk)
			if err != nil {
				return "", err
			}
			nid, _, err := findChild(disk, sb, n.ino, entry.Name)
			if err != nil {
				return "", err
			}
			childIno, err := readInode(disk, sb, nid)
			if err != nil {
				return "", err
			}
			fh := &fileHandle{disk: disk, sb: sb, ino: childIno}
			buf := make([]byte, childIno.size)
			if _, err := fh.pread(buf, 0); err != nil && err != io.EOF {
				return "", err
			}
			return string(buf), nil
		},
		UUID: func(disk blockio.Disk) (string, error) {
			sb, err := readSuper(disk)
			if err != nil {
				return "", err
			}
			u := sb.uuid
			return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16]), nil
		},
		Label: func(disk blockio.Disk) (string, error) {
			sb, err := readSuper(disk)
			if err != nil {
				return "", err
			}
			return sb.volumeName, nil
		},
		Mtime: func(disk blockio.Disk) (time.Time, error) {
			sb, err := readSuper(disk)
			if err != nil {
				return time.Time{}, err
			}
			return time.Unix(sb.buildTime, 0).UTC(), nil
		},
	}
}

func init() {
	fsreg.Register(format())
}
