// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package blockio implements the byte-stream substrate: a uniform,
// random-access view over physical disks, disk-filter (RAID/LVM) members,
// partition slices, and loopback-mounted files.
package blockio

import (
	"fmt"
	"io"
)

// ReadHook is invoked once per physical sector read, before the read is
// satisfied, for callers that need to observe the underlying extents (e.g.
// sector-map extraction for a defragmenter). It never mutates buf.
type ReadHook func(sector int64, buf []byte)

// Disk is a named, byte-addressable source. Every byte source in the stack
// — hardware disk, RAID/LVM member array, partition slice, or loopback file
// — implements Disk.
type Disk interface {
	io.ReaderAt
	Name() string
	Sectors() int64
	Log2SectorSize() uint
	// Partition returns the parent slice this disk was cut from, or nil for
	// a disk that is not a partition (a raw disk or a disk-filter array).
	Partition() *Partition
}

// SectorSize is 1<<Log2SectorSize for d.
func SectorSize(d Disk) int64 { return 1 << d.Log2SectorSize() }

// Partition is a contiguous slice of a parent disk.
type Partition struct {
	Parent         Disk
	StartSector    int64
	LengthSectors  int64
	Index          int  // 0-based position within the partition map
	Number         int  // 1-based partition number as named in the selector syntax
	TypeID         string
	Name           string
}

// Validate checks the invariant start+length <= parent.Sectors().
func (p *Partition) Validate() error {
	if p.StartSector < 0 || p.LengthSectors < 0 {
		return fmt.Errorf("blockio: negative partition bounds")
	}
	if p.StartSector+p.LengthSectors > p.Parent.Sectors() {
		return fmt.Errorf("blockio: partition %d exceeds parent disk (start=%d len=%d parent=%d)",
			p.Number, p.StartSector, p.LengthSectors, p.Parent.Sectors())
	}
	return nil
}

// sliceDisk is a Disk that is a contiguous byte-range of a parent Disk.
type sliceDisk struct {
	name string
	part *Partition
	hook ReadHook
}

// NewSlice constructs a Disk representing partition p of its parent. The
// returned Disk's ReadAt is always relative to the partition's own sector 0.
func NewSlice(name string, p *Partition, hook ReadHook) (Disk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &sliceDisk{name: name, part: p, hook: hook}, nil
}

func (s *sliceDisk) Name() string         { return s.name }
func (s *sliceDisk) Log2SectorSize() uint  { return s.part.Parent.Log2SectorSize() }
func (s *sliceDisk) Partition() *Partition { return s.part }

func (s *sliceDisk) Sectors() int64 { return s.part.LengthSectors }

func (s *sliceDisk) ReadAt(p []byte, off int64) (int, error) {
	ss := SectorSize(s)
	limit := s.part.LengthSectors * ss
	if off < 0 || off >= limit {
		return 0, io.EOF
	}
	if off+int64(len(p)) > limit {
		p = p[:limit-off]
	}
	if s.hook != nil {
		hookSectorAligned(s.hook, off, len(p), ss)
	}
	n, err := s.part.Parent.ReadAt(p, s.part.StartSector*ss+off)
	if n < len(p) && err == nil {
		err = io.EOF
	}
	return n, err
}

func hookSectorAligned(hook ReadHook, off int64, n int, sectorSize int64) {
	first := off &^ (sectorSize - 1)
	for sec := first; sec < off+int64(n); sec += sectorSize {
		hook(sec/sectorSize, nil)
	}
}

// MemDisk exposes an in-memory byte slice as a Disk, mainly for tests and
// for fully-decompressed small filesystems (e.g. an inline EROFS tailpack).
type MemDisk struct {
	NameStr    string
	Bytes      []byte
	Log2Sector uint
}

func (m *MemDisk) Name() string          { return m.NameStr }
func (m *MemDisk) Log2SectorSize() uint  { return m.Log2Sector }
func (m *MemDisk) Partition() *Partition { return nil }
func (m *MemDisk) Sectors() int64        { return int64(len(m.Bytes)) >> m.Log2Sector }
func (m *MemDisk) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.Bytes)) {
		return 0, io.EOF
	}
	n := copy(p, m.Bytes[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReaderAtDisk adapts a plain io.ReaderAt (a file-filter output, a loopback
// source) into a Disk with an assumed 512-byte sector size, the convention
// the partition-map readers (internal/partmap, internal/apm) follow for
// byte-addressable sources that have no native sector geometry.
type ReaderAtDisk struct {
	NameStr string
	R       io.ReaderAt
	Size    int64
}

func (r *ReaderAtDisk) Name() string          { return r.NameStr }
func (r *ReaderAtDisk) Log2SectorSize() uint  { return 9 }
func (r *ReaderAtDisk) Partition() *Partition { return nil }

// Sectors rounds up: the final partial sector stays addressable, and a
// read into its missing tail just returns EOF like any short source.
func (r *ReaderAtDisk) Sectors() int64 { return (r.Size + 511) >> 9 }

// ByteSize is the source's exact length, unrounded; consumers that care
// about the true end of the byte stream (a zip's end-of-central-directory
// scan) use this instead of the sector-quantized Sectors.
func (r *ReaderAtDisk) ByteSize() int64 { return r.Size }

func (r *ReaderAtDisk) ReadAt(p []byte, off int64) (int, error) { return r.R.ReadAt(p, off) }
