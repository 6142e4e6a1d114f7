// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Z-cluster (compressed extent) decoding: the per-inode Z header, the
// full and compacted lcluster index forms, NONHEAD lookback chains, big
// pclusters, and the back-to-front read loop that resolves a byte range
// into compressed extents and decompresses each one, following the
// z_erofs on-disk format documented in the Linux kernel.

package erofs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/codec/lz4x"
)

const (
	lclusterTypePlain   = 0
	lclusterTypeHead1   = 1
	lclusterTypeNonHead = 2
	lclusterTypeHead2   = 3
)

const (
	adviseCompacted2B        = 0x0001
	adviseBigPCluster1       = 0x0002
	adviseInlinePCluster     = 0x0008
	adviseInterlacedPCluster = 0x0010
	adviseFragmentPCluster   = 0x0020
)

// liD0CBlkCnt marks the first NONHEAD lcluster of a big pcluster, whose
// delta[0] carries the pcluster's compressed block count instead of a
// lookback distance. liPartialRef marks a head whose pcluster holds
// partial decompressed data.
const (
	liD0CBlkCnt  = 1 << 11
	liPartialRef = 1 << 15
)

// Compression formats. LZ4 is the only real algorithm; shifted and
// interlaced are runtime-only forms for plain (stored) lclusters.
const (
	zAlgLZ4        = 0
	zAlgMax        = 1
	zAlgShifted    = zAlgMax
	zAlgInterlaced = zAlgMax + 1
)

const (
	zMapMapped     = 1 << 1
	zMapFullMapped = 1 << 3
	zMapFragment   = 1 << 4
	zMapPartialRef = 1 << 5
)

const fragmentInodeBit = 7 // bit 7 of h_clusterbits: whole file lives in the packed inode

// zHeader is the decoded per-inode z_erofs_map_header plus the tail
// extent state located at header-read time (the FINDTAIL pass), so
// later reads at any offset know whether they land in the tail-packed or
// fragment pcluster without re-walking the index.
type zHeader struct {
	advise            uint16
	algorithmType     [2]uint8
	log2LClusterSize  uint
	idataOff          int64
	idataSize         int64
	tailExtentHeadLcn int64
	fragmentOff       int64
}

func (zh *zHeader) tailpacking() bool { return zh.advise&adviseInlinePCluster != 0 }
func (zh *zHeader) fragment() bool    { return zh.advise&adviseFragmentPCluster != 0 }

// zmap is one resolved extent: logical [la, la+llen) backed by compressed
// bytes [pa, pa+plen), plus the one-block index page cache shared across
// successive resolutions.
type zmap struct {
	la, pa     int64
	llen, plen int64
	flags      uint32
	alg        uint8

	index int64 // block number held in mpage, -1 when empty
	mpage []byte
}

// zrec is the map recorder: the cursor state of one index walk.
type zrec struct {
	disk blockio.Disk
	sb   superblock
	ino  inode
	zh   *zHeader
	m    *zmap

	lcn            int64
	typ, headtype  int
	clusterofs     int64
	delta          [2]uint16
	pblk           int64
	compressedblks int64
	nextpackoff    int64
	partialref     bool
}

func errBadFS(format string, args ...any) error {
	return fmt.Errorf("erofs: "+format, args...)
}

// lclusterFullIndexBase is the byte offset of the lcn=0 entry of an
// inode's full (non-compacted) per-lcluster index array: the Z header,
// then an 8-byte pad, then the 8-byte entries.
func lclusterFullIndexBase(ino inode) int64 {
	return alignUp8(inodeDataBase(ino)) + 8 + 8
}

func (r *zrec) loadIndexBlock(blkno int64) error {
	if r.m.index == blkno && r.m.mpage != nil {
		return nil
	}
	blksz := blockSize(r.sb)
	if r.m.mpage == nil {
		r.m.mpage = make([]byte, blksz)
	}
	if _, err := r.disk.ReadAt(r.m.mpage, blkno<<r.sb.blkszLog2); err != nil && err != io.EOF {
		return err
	}
	r.m.index = blkno
	return nil
}

func (r *zrec) loadClusterFull(lcn int64) error {
	pos := lclusterFullIndexBase(r.ino) + lcn*8
	if err := r.loadIndexBlock(pos >> r.sb.blkszLog2); err != nil {
		return err
	}
	r.nextpackoff = pos + 8
	r.lcn = lcn
	di := r.m.mpage[pos&(blockSize(r.sb)-1):]

	advise := binary.LittleEndian.Uint16(di[0:2])
	typ := int(advise & 0x03)
	switch typ {
	case lclusterTypeNonHead:
		r.clusterofs = 1 << r.zh.log2LClusterSize
		d0 := binary.LittleEndian.Uint16(di[4:6])
		if d0&liD0CBlkCnt != 0 {
			if advise&adviseBigPCluster1 == 0 {
				return errBadFS("bogus big pcluster")
			}
			r.compressedblks = int64(d0 &^ liD0CBlkCnt)
			d0 = 1
		}
		r.delta[0] = d0
		r.delta[1] = binary.LittleEndian.Uint16(di[6:8])
	case lclusterTypePlain, lclusterTypeHead1:
		if advise&liPartialRef != 0 {
			r.partialref = true
		}
		r.clusterofs = int64(binary.LittleEndian.Uint16(di[2:4]))
		r.pblk = int64(binary.LittleEndian.Uint32(di[4:8]))
	default:
		return errBadFS("unsupported lcluster type %d", typ)
	}
	r.typ = typ
	return nil
}

// decodeCompactedBits extracts one packed entry from a compacted index
// group: the low lobits are the clusterofs/delta value, the next two bits
// the lcluster type.
func decodeCompactedBits(lobits uint, lomask uint32, in []byte, pos uint) (lo uint32, typ int) {
	v := binary.LittleEndian.Uint32(in[pos/8:pos/8+4]) >> (pos & 7)
	return v & lomask, int((v >> lobits) & 3)
}

// unpackCompactedIndex decodes the entry at byte position pos of a
// compacted index pack. Each pack is vcnt entries bit-packed into
// (vcnt << amortizedshift) bytes whose final 4 bytes hold the block
// address of the pack's first pcluster; later entries' addresses are
// recovered by replaying the pack's earlier entries (nblk).
func (r *zrec) unpackCompactedIndex(amortizedshift uint, pos int64) error {
	lclusterbits := r.zh.log2LClusterSize
	lomask := uint32(1)<<lclusterbits - 1

	var vcnt uint
	switch {
	case 1<<amortizedshift == 4:
		vcnt = 2
	case 1<<amortizedshift == 2 && lclusterbits == 12:
		vcnt = 16
	default:
		return errBadFS("bad compacted index amortization")
	}

	unit := int64(vcnt << amortizedshift)
	r.nextpackoff = pos&^(unit-1) + unit
	bigPCluster := r.zh.advise&adviseBigPCluster1 != 0
	encodebits := (uint(unit) - 4) * 8 / vcnt
	eofs := uint(pos & (blockSize(r.sb) - 1))
	base := eofs &^ uint(unit-1)
	in := r.m.mpage[base:]
	i := int((eofs - base) >> amortizedshift)

	lo, typ := decodeCompactedBits(lclusterbits, lomask, in, encodebits*uint(i))
	r.typ = typ
	if typ == lclusterTypeNonHead {
		r.clusterofs = 1 << lclusterbits

		if lo&liD0CBlkCnt != 0 {
			if !bigPCluster {
				return errBadFS("bogus big pcluster")
			}
			r.compressedblks = int64(lo &^ liD0CBlkCnt)
			r.delta[0] = 1
			return nil
		} else if i+1 != int(vcnt) {
			r.delta[0] = uint16(lo)
			return nil
		}
		// The last NONHEAD of a pack has no room for its own delta; it is
		// one more than the previous entry's.
		prevLo, prevTyp := decodeCompactedBits(lclusterbits, lomask, in, encodebits*uint(i-1))
		if prevTyp != lclusterTypeNonHead {
			prevLo = 0
		} else if prevLo&liD0CBlkCnt != 0 {
			prevLo = 1
		}
		r.delta[0] = uint16(prevLo + 1)
		return nil
	}

	r.clusterofs = int64(lo)
	r.delta[0] = 0
	var nblk int64
	if !bigPCluster {
		nblk = 1
		for i > 0 {
			i--
			lo, typ = decodeCompactedBits(lclusterbits, lomask, in, encodebits*uint(i))
			if typ == lclusterTypeNonHead {
				i -= int(lo)
			}
			if i >= 0 {
				nblk++
			}
		}
	} else {
		nblk = 0
		for i > 0 {
			i--
			lo, typ = decodeCompactedBits(lclusterbits, lomask, in, encodebits*uint(i))
			if typ == lclusterTypeNonHead {
				if lo&liD0CBlkCnt != 0 {
					i--
					nblk += int64(lo &^ liD0CBlkCnt)
					continue
				}
				if lo <= 1 {
					return errBadFS("bogus lookback in compacted index")
				}
				i -= int(lo) - 2
				continue
			}
			nblk++
		}
	}
	r.pblk = int64(binary.LittleEndian.Uint32(in[unit-4:unit])) + nblk
	return nil
}

func (r *zrec) loadClusterCompact(lcn int64) error {
	blksz := blockSize(r.sb)
	ebase := alignUp8(inodeDataBase(r.ino)) + 8
	totalidx := (int64(r.ino.size) + blksz - 1) >> r.sb.blkszLog2
	lclusterbits := r.zh.log2LClusterSize

	if lclusterbits != 12 || lcn >= totalidx {
		return errBadFS("bad compact index request lcn=%d", lcn)
	}
	r.lcn = lcn

	// A run of 4-byte-amortized entries until 32-byte alignment, then
	// 2-byte-amortized 16-entry groups, then 4-byte again.
	compacted4bInitial := (32 - ebase%32) / 4
	if compacted4bInitial == 32/4 {
		compacted4bInitial = 0
	}
	var compacted2b int64
	if r.zh.advise&adviseCompacted2B != 0 && compacted4bInitial < totalidx {
		compacted2b = (totalidx - compacted4bInitial) &^ 15
	}

	pos := ebase
	var amortizedshift uint
	if lcn < compacted4bInitial {
		amortizedshift = 2
	} else {
		pos += compacted4bInitial * 4
		lcn -= compacted4bInitial
		if lcn < compacted2b {
			amortizedshift = 1
		} else {
			pos += compacted2b * 2
			lcn -= compacted2b
			amortizedshift = 2
		}
	}
	pos += lcn << amortizedshift

	if err := r.loadIndexBlock(pos >> r.sb.blkszLog2); err != nil {
		return err
	}
	return r.unpackCompactedIndex(amortizedshift, pos)
}

func (r *zrec) loadCluster(lcn int64) error {
	switch r.ino.dataLayout() {
	case datalayoutCompressedFull:
		return r.loadClusterFull(lcn)
	case datalayoutCompressedCompact:
		return r.loadClusterCompact(lcn)
	}
	return errBadFS("bad data layout for z map")
}

// extentLookback follows a NONHEAD chain backwards until the extent's
// head lcluster.
func (r *zrec) extentLookback(lookback int64) error {
	for {
		if r.lcn < lookback {
			return errBadFS("bogus lookback distance %d at lcn %d", lookback, r.lcn)
		}
		if err := r.loadCluster(r.lcn - lookback); err != nil {
			return err
		}
		switch r.typ {
		case lclusterTypeNonHead:
			if r.delta[0] == 0 {
				return errBadFS("invalid lookback distance 0")
			}
			lookback = int64(r.delta[0])
		case lclusterTypePlain, lclusterTypeHead1:
			r.headtype = r.typ
			r.m.la = r.lcn<<r.zh.log2LClusterSize | r.clusterofs
			return nil
		default:
			return errBadFS("unknown lcluster type %d", r.typ)
		}
	}
}

// getExtentCompressedLen sets m.plen: one lcluster for ordinary
// pclusters, or CBLKCNT lclusters for big ones (recorded on the head's
// first NONHEAD follower).
func (r *zrec) getExtentCompressedLen() error {
	lclusterbits := r.zh.log2LClusterSize
	if r.headtype == lclusterTypePlain || r.zh.advise&adviseBigPCluster1 == 0 {
		r.m.plen = 1 << lclusterbits
		return nil
	}

	lcn := r.lcn + 1
	if r.compressedblks == 0 {
		if err := r.loadCluster(lcn); err != nil {
			return err
		}
		switch r.typ {
		case lclusterTypePlain, lclusterTypeHead1:
			// A new head directly follows: the pcluster is one lcluster.
			r.compressedblks = 1 << (lclusterbits - r.sb.blkszLog2)
		case lclusterTypeNonHead:
			if r.delta[0] != 1 {
				return errBadFS("bogus CBLKCNT at lcn %d", lcn)
			}
			if r.compressedblks == 0 {
				return errBadFS("missing CBLKCNT at lcn %d", lcn)
			}
		default:
			return errBadFS("missing CBLKCNT at lcn %d", lcn)
		}
	}
	r.m.plen = r.compressedblks << lclusterbits
	return nil
}

const zFindTail = true

// doZMapBlocks resolves the extent containing logical offset la (or, for
// the FINDTAIL pass, the file's final byte) into m.
func doZMapBlocks(disk blockio.Disk, sb superblock, ino inode, zh *zHeader, m *zmap, la int64, findtail bool) error {
	r := &zrec{disk: disk, sb: sb, ino: ino, zh: zh, m: m}
	ztailpacking := zh.tailpacking()
	fragment := zh.fragment()
	fileSize := int64(ino.size)
	bits := zh.log2LClusterSize

	ofs := la
	if findtail {
		ofs = fileSize - 1
	}
	initialLcn := ofs >> bits
	endoff := ofs & (1<<bits - 1)

	if err := r.loadCluster(initialLcn); err != nil {
		return err
	}
	if ztailpacking && findtail {
		zh.idataOff = r.nextpackoff
	}

	m.flags = zMapMapped
	end := (r.lcn + 1) << bits
	switch r.typ {
	case lclusterTypePlain, lclusterTypeHead1:
		if endoff >= r.clusterofs {
			r.headtype = r.typ
			m.la = r.lcn<<bits | r.clusterofs
			if ztailpacking && end > fileSize {
				end = fileSize
			}
			break
		}
		// The head lies in an earlier lcluster; this one's front belongs
		// to the previous extent.
		if r.lcn == 0 {
			return errBadFS("invalid logical cluster 0")
		}
		end = r.lcn<<bits | r.clusterofs
		m.flags |= zMapFullMapped
		r.delta[0] = 1
		if err := r.extentLookback(int64(r.delta[0])); err != nil {
			return err
		}
	case lclusterTypeNonHead:
		if err := r.extentLookback(int64(r.delta[0])); err != nil {
			return err
		}
	default:
		return errBadFS("unknown lcluster type %d", r.typ)
	}

	if r.partialref {
		m.flags |= zMapPartialRef
	}
	m.llen = end - m.la

	if findtail {
		zh.tailExtentHeadLcn = r.lcn
		if fragment && ino.dataLayout() == datalayoutCompressedFull {
			zh.fragmentOff |= r.pblk << 32
		}
	}

	switch {
	case ztailpacking && r.lcn == zh.tailExtentHeadLcn:
		m.pa = zh.idataOff
		m.plen = zh.idataSize
	case fragment && r.lcn == zh.tailExtentHeadLcn:
		m.flags |= zMapFragment
	default:
		m.pa = r.pblk << sb.blkszLog2
		if err := r.getExtentCompressedLen(); err != nil {
			return err
		}
	}

	if r.headtype == lclusterTypePlain {
		if m.llen > m.plen {
			return errBadFS("invalid extent length")
		}
		if zh.advise&adviseInterlacedPCluster != 0 {
			m.alg = zAlgInterlaced
		} else {
			m.alg = zAlgShifted
		}
	} else {
		m.alg = zh.algorithmType[0]
	}
	return nil
}

// zMapBlocksIter is the per-read entry point over doZMapBlocks, handling
// EOF and the whole-file-fragment case.
func (fh *fileHandle) zMapBlocksIter(m *zmap, la int64) error {
	fileSize := int64(fh.ino.size)
	if la >= fileSize {
		m.llen = la + 1 - fileSize
		m.la = fileSize
		m.flags = 0
		return nil
	}
	if fh.zh.fragment() && fh.zh.tailExtentHeadLcn == 0 {
		m.la = 0
		m.llen = fileSize
		m.flags = zMapMapped | zMapFullMapped | zMapFragment
		return nil
	}
	return doZMapBlocks(fh.disk, fh.sb, fh.ino, fh.zh, m, la, !zFindTail)
}

// readZHeader decodes the inode's z_erofs_map_header and runs the
// FINDTAIL pass for inline and fragment tails.
func readZHeader(disk blockio.Disk, sb superblock, ino inode) (*zHeader, error) {
	pos := alignUp8(inodeDataBase(ino))
	buf := make([]byte, 8)
	if _, err := disk.ReadAt(buf, pos); err != nil {
		return nil, err
	}

	zh := &zHeader{}
	clusterBitsRaw := buf[7]
	if clusterBitsRaw>>fragmentInodeBit != 0 {
		// The whole file is stored in the packed inode; the remaining 63
		// bits of the header are the offset into it.
		zh.advise = adviseFragmentPCluster
		zh.fragmentOff = int64(binary.LittleEndian.Uint64(buf) ^ 1<<63)
		zh.tailExtentHeadLcn = 0
		return zh, nil
	}

	zh.advise = binary.LittleEndian.Uint16(buf[4:6])
	zh.algorithmType[0] = buf[6] & 0x0F
	zh.algorithmType[1] = (buf[6] >> 4) & 0x0F
	if zh.algorithmType[0] >= zAlgMax {
		return nil, errBadFS("unsupported compression algorithm %d", zh.algorithmType[0])
	}
	zh.log2LClusterSize = sb.blkszLog2 + uint(clusterBitsRaw&0x7)

	if zh.tailpacking() {
		zh.idataSize = int64(binary.LittleEndian.Uint16(buf[2:4]))
		var m zmap
		m.index = -1
		if err := doZMapBlocks(disk, sb, ino, zh, &m, 0, zFindTail); err != nil {
			return nil, err
		}
	}
	if zh.fragment() {
		zh.fragmentOff = int64(binary.LittleEndian.Uint32(buf[0:4]))
		var m zmap
		m.index = -1
		if err := doZMapBlocks(disk, sb, ino, zh, &m, 0, zFindTail); err != nil {
			return nil, err
		}
	}
	return zh, nil
}

// zDecompress expands one extent's compressed bytes. in holds the whole
// pcluster; out receives decodedLength-decodedSkip bytes, the extent's
// decoded form minus its first decodedSkip bytes.
func zDecompress(sb superblock, alg uint8, in, out []byte, decodedSkip, decodedLength int, interlacedOffset int64) error {
	blksz := blockSize(sb)
	switch alg {
	case zAlgShifted:
		if decodedLength > len(in) {
			return errBadFS("invalid shifted decompress request")
		}
		copy(out, in[decodedSkip:decodedLength])
		return nil

	case zAlgInterlaced:
		// The stored data starts mid-block and wraps around.
		if int64(len(in)) > blksz || int64(decodedLength) > blksz {
			return errBadFS("invalid interlaced decompress request")
		}
		count := decodedLength - decodedSkip
		skip := (interlacedOffset + int64(decodedSkip)) & (blksz - 1)
		rightpart := min(int(blksz-skip), count)
		copy(out, in[skip:skip+int64(rightpart)])
		copy(out[rightpart:], in[:count-rightpart])
		return nil

	case zAlgLZ4:
		inputmargin := 0
		if sb.featureIncompat&featureZeroPadding != 0 {
			// The compressed data is right-aligned within its pcluster;
			// skip the leading zero padding.
			blkmask := int(blksz - 1)
			for in[inputmargin&blkmask] == 0 {
				inputmargin++
				if inputmargin&blkmask == 0 {
					break
				}
			}
			if inputmargin >= len(in) {
				return errBadFS("invalid lz4 inputmargin %d", inputmargin)
			}
		}
		// A pcluster may encode more data than this extent wants (the
		// extent continues past the requested range, or refers to partial
		// decompressed data); DecodePartial stops at decodedLength.
		dst := make([]byte, decodedLength)
		n, err := lz4x.DecodePartial(in[inputmargin:], dst)
		if err != nil || n != decodedLength {
			return errBadFS("lz4 decompress failed: got %d of %d: %v", n, decodedLength, err)
		}
		copy(out, dst[decodedSkip:])
		return nil
	}
	return errBadFS("unknown compression format %d", alg)
}

// readZ services reads for the compressed layouts, walking extents
// back-to-front from the end of the requested range, the only direction
// the index supports cheaply (every byte's extent is found by lookback,
// never lookahead).
func (fh *fileHandle) readZ(p []byte, offset int64) (int, error) {
	m := &zmap{index: -1}
	end := offset + int64(len(p))
	var raw []byte

	for end > offset {
		if err := fh.zMapBlocksIter(m, end-1); err != nil {
			return 0, err
		}

		var length int64
		if end < m.la+m.llen {
			length = end - m.la
		} else {
			length = m.llen
		}

		var skip int64
		if m.la < offset {
			skip = offset - m.la
			end = offset
		} else {
			end = m.la
		}

		if m.flags&zMapMapped == 0 {
			clear(p[end-offset : end-offset+length])
			end = m.la
			continue
		}

		out := p[end-offset : end-offset+length-skip]

		if m.flags&zMapFragment != 0 {
			// The tail lives in the shared packed inode; read it
			// recursively at the recorded fragment offset.
			packedIno, err := readInode(fh.disk, fh.sb, fh.sb.packedNid)
			if err != nil {
				return 0, err
			}
			pfh := &fileHandle{disk: fh.disk, sb: fh.sb, ino: packedIno}
			if _, err := pfh.pread(out, fh.zh.fragmentOff+skip); err != nil && err != io.EOF {
				return 0, err
			}
			continue
		}

		if int64(len(raw)) < m.plen {
			raw = make([]byte, m.plen)
		}
		if _, err := fh.disk.ReadAt(raw[:m.plen], m.pa); err != nil && err != io.EOF {
			return 0, err
		}

		var interlacedOffset int64
		if m.alg == zAlgInterlaced {
			interlacedOffset = m.la & (blockSize(fh.sb) - 1)
		}
		if err := zDecompress(fh.sb, m.alg, raw[:m.plen], out, int(skip), int(length), interlacedOffset); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
