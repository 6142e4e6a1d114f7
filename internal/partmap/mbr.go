// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"

	"github.com/arcfs/corefs/internal/blockio"
)

type mbrMap struct{}

func (mbrMap) Name() string { return "mbr" }

const (
	mbrPartTypeExtendedCHS = 0x05
	mbrPartTypeExtendedLBA = 0x0f
	mbrPartTypeGPTProtect  = 0xee
)

// Probe parses a classic DOS Master Boot Record: a 512-byte sector ending
// in the 0x55 0xaa signature, with four 16-byte partition entries at offset
// 0x1be, each entry giving a type byte, an LBA start, and a sector count.
// Extended (logical) partitions are walked via the standard EBR chain.
func (mbrMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	ss := blockio.SectorSize(d)
	sector := make([]byte, ss)
	if _, err := d.ReadAt(sector, 0); err != nil {
		return nil, err
	}
	if sector[510] != 0x55 || sector[511] != 0xaa {
		return nil, fmt.Errorf("mbr: missing boot signature")
	}

	var parts []*blockio.Partition
	num := 1
	for i := 0; i < 4; i++ {
		ent := sector[0x1be+i*16:][:16]
		typ := ent[4]
		if typ == 0 {
			continue
		}
		if typ == mbrPartTypeGPTProtect {
			return nil, fmt.Errorf("mbr: protective MBR, defer to GPT")
		}
		start := int64(binary.LittleEndian.Uint32(ent[8:12]))
		count := int64(binary.LittleEndian.Uint32(ent[12:16]))

		if typ == mbrPartTypeExtendedCHS || typ == mbrPartTypeExtendedLBA {
			ext, err := walkExtended(d, ss, start)
			if err != nil {
				return nil, err
			}
			for _, p := range ext {
				p.Number = num
				num++
				parts = append(parts, p)
			}
			continue
		}

		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   start,
			LengthSectors: count,
			Index:         i,
			Number:        num,
			TypeID:        fmt.Sprintf("%#02x", typ),
		})
		num++
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("mbr: no partition entries")
	}
	return parts, nil
}

// walkExtended follows the singly-linked chain of Extended Boot Records
// that hold DOS logical partitions beyond the four primary slots.
func walkExtended(d blockio.Disk, sectorSize int64, extendedBase int64) ([]*blockio.Partition, error) {
	var parts []*blockio.Partition
	ebrSector := extendedBase
	for {
		sector := make([]byte, sectorSize)
		if _, err := d.ReadAt(sector, ebrSector*sectorSize); err != nil {
			return nil, err
		}
		if sector[510] != 0x55 || sector[511] != 0xaa {
			break
		}
		ent := sector[0x1be:][:16]
		typ := ent[4]
		if typ == 0 {
			break
		}
		start := ebrSector + int64(binary.LittleEndian.Uint32(ent[8:12]))
		count := int64(binary.LittleEndian.Uint32(ent[12:16]))
		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   start,
			LengthSectors: count,
			TypeID:        fmt.Sprintf("%#02x", typ),
		})

		next := sector[0x1ce:][:16]
		if next[4] == 0 {
			break
		}
		ebrSector = extendedBase + int64(binary.LittleEndian.Uint32(next[8:12]))
		if len(parts) > 1<<16 {
			return nil, fmt.Errorf("mbr: extended partition chain too long")
		}
	}
	return parts, nil
}
