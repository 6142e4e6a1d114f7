// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package diskfilter implements the disk-filter layer (component C):
// RAID and LVM arrays that combine several member disks into one logical
// Disk, and an always-unsupported LDM stub.
package diskfilter

import (
	"fmt"
	"io"

	"github.com/arcfs/corefs/internal/blockio"
)

// RAIDLevel identifies a supported software RAID layout.
type RAIDLevel int

const (
	RAID0 RAIDLevel = iota
	RAID1
	RAID4
	RAID5
	RAID6
)

// RAIDArray is a Disk synthesized from striping/mirroring/parity across a
// fixed set of member disks, using the standard md layout formulas.
type RAIDArray struct {
	NameStr     string
	Level       RAIDLevel
	Members     []blockio.Disk
	ChunkSectors int64
	Log2Sector  uint
	// ParityRotation selects left-symmetric (true) vs left-asymmetric
	// (false) parity placement for RAID5/6.
	ParityRotation bool
}

func (a *RAIDArray) Name() string          { return a.NameStr }
func (a *RAIDArray) Log2SectorSize() uint  { return a.Log2Sector }
func (a *RAIDArray) Partition() *blockio.Partition { return nil }

func (a *RAIDArray) Sectors() int64 {
	n := int64(len(a.Members))
	if n == 0 {
		return 0
	}
	minMember := a.Members[0].Sectors()
	for _, m := range a.Members[1:] {
		if s := m.Sectors(); s < minMember {
			minMember = s
		}
	}
	switch a.Level {
	case RAID0:
		return minMember * n
	case RAID1:
		return minMember
	case RAID4, RAID5:
		return minMember * (n - 1)
	case RAID6:
		return minMember * (n - 2)
	default:
		return 0
	}
}

func (a *RAIDArray) ReadAt(p []byte, off int64) (int, error) {
	ss := blockio.SectorSize(a)
	chunkBytes := a.ChunkSectors * ss
	n := int64(len(a.Members))
	if n == 0 || chunkBytes == 0 {
		return 0, fmt.Errorf("raid: array has no members or zero chunk size")
	}

	total := 0
	for total < len(p) {
		dataDisks := n
		if a.Level == RAID4 || a.Level == RAID5 {
			dataDisks = n - 1
		} else if a.Level == RAID6 {
			dataDisks = n - 2
		}

		switch a.Level {
		case RAID1:
			// Every member is a full mirror; read straight from member 0.
			want := len(p) - total
			got, err := a.Members[0].ReadAt(p[total:], off+int64(total))
			total += got
			if err != nil {
				return total, err
			}
			if got < want {
				return total, io.EOF
			}
			continue
		}

		stripeOff := off + int64(total)
		stripeIndex := stripeOff / chunkBytes
		offsetInChunk := stripeOff % chunkBytes
		dataDiskSlot := stripeIndex % dataDisks
		stripeRow := stripeIndex / dataDisks

		diskSlot := dataDiskSlot
		if a.Level == RAID4 || a.Level == RAID5 || a.Level == RAID6 {
			parityDisks := int64(1)
			if a.Level == RAID6 {
				parityDisks = 2
			}
			var paritySlot int64
			if a.Level == RAID4 {
				paritySlot = n - parityDisks // fixed parity disk, never rotates
			} else if a.ParityRotation {
				paritySlot = (n - 1 - stripeRow%n + n) % n
			} else {
				paritySlot = stripeRow % n
			}
			diskSlot = dataDiskSlot
			if diskSlot >= paritySlot {
				diskSlot += parityDisks
			}
		}

		toRead := chunkBytes - offsetInChunk
		if remain := int64(len(p) - total); toRead > remain {
			toRead = remain
		}
		memberOff := stripeRow*chunkBytes + offsetInChunk

		got, err := a.Members[diskSlot].ReadAt(p[total:int64(total)+toRead], memberOff)
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
