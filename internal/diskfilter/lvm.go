// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskfilter

import (
	"fmt"
	"io"

	"github.com/arcfs/corefs/internal/blockio"
)

// LVMSegmentType selects how a logical volume's extents map onto its
// physical-volume members.
type LVMSegmentType int

const (
	LVMLinear LVMSegmentType = iota
	LVMStriped
)

// LVMSegment is one contiguous run of a logical volume's address space,
// mapped either linearly onto a single PV or striped across several.
type LVMSegment struct {
	StartExtent int64 // in the LV's address space
	ExtentCount int64
	Type        LVMSegmentType
	Stripes     []LVMStripe // one entry for Linear, N for Striped
	StripeSize  int64       // in extents, for Striped
}

// LVMStripe names one physical-volume extent range backing a segment.
type LVMStripe struct {
	PV          blockio.Disk
	StartExtent int64
}

// LogicalVolume is a Disk assembled from an ordered list of segments, per
// linear and striped LVM segment mapping (RAID and thin-pool LVM segment
// types are out of scope; see Non-goals).
type LogicalVolume struct {
	NameStr      string
	ExtentSize   int64 // bytes
	Segments     []LVMSegment
	Log2Sector   uint
	TotalExtents int64
}

func (l *LogicalVolume) Name() string          { return l.NameStr }
func (l *LogicalVolume) Log2SectorSize() uint  { return l.Log2Sector }
func (l *LogicalVolume) Partition() *blockio.Partition { return nil }
func (l *LogicalVolume) Sectors() int64 {
	return l.TotalExtents * l.ExtentSize >> l.Log2Sector
}

func (l *LogicalVolume) segmentFor(extent int64) (*LVMSegment, bool) {
	for i := range l.Segments {
		s := &l.Segments[i]
		if extent >= s.StartExtent && extent < s.StartExtent+s.ExtentCount {
			return s, true
		}
	}
	return nil, false
}

func (l *LogicalVolume) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		extent := pos / l.ExtentSize
		offInExtent := pos % l.ExtentSize

		seg, ok := l.segmentFor(extent)
		if !ok {
			return total, fmt.Errorf("lvm: no segment covers extent %d", extent)
		}
		localExtent := extent - seg.StartExtent

		var stripe LVMStripe
		var physExtent int64
		var maxRun int64
		switch seg.Type {
		case LVMLinear:
			stripe = seg.Stripes[0]
			physExtent = stripe.StartExtent + localExtent
			maxRun = l.ExtentSize - offInExtent
		case LVMStriped:
			nstripes := int64(len(seg.Stripes))
			stripeRow := localExtent / seg.StripeSize
			stripeCol := stripeRow % nstripes
			stripeLocalExtent := (stripeRow/nstripes)*seg.StripeSize + localExtent%seg.StripeSize
			stripe = seg.Stripes[stripeCol]
			physExtent = stripe.StartExtent + stripeLocalExtent
			maxRun = seg.StripeSize*l.ExtentSize - (localExtent%seg.StripeSize)*l.ExtentSize - offInExtent
		default:
			return total, fmt.Errorf("lvm: unknown segment type")
		}

		toRead := int64(len(p) - total)
		if toRead > maxRun {
			toRead = maxRun
		}
		memberOff := physExtent*l.ExtentSize + offInExtent

		got, err := stripe.PV.ReadAt(p[total:int64(total)+toRead], memberOff)
		total += got
		if err != nil {
			return total, err
		}
		if int64(got) < toRead {
			return total, io.EOF
		}
	}
	return total, nil
}
