// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"

	"github.com/arcfs/corefs/internal/blockio"
)

type sunMap struct{}

func (sunMap) Name() string { return "sun" }

const sunVTOCMagic = 0x600ddeee

// Probe parses a SunOS VTOC disklabel: a 512-byte sector with an ASCII
// label at offset 0, a 16-bit-aligned VTOC magic at offset 508... in
// practice the VTOC magic sits at offset 12 within the embedded vtoc
// struct, itself at label offset 142, with 8 fixed partition slots
// (start cylinder + number of blocks) following it.
func (sunMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	ss := blockio.SectorSize(d)
	sector := make([]byte, 512)
	if _, err := d.ReadAt(sector, 0); err != nil {
		return nil, err
	}

	vtoc := sector[142:]
	if binary.BigEndian.Uint32(vtoc[12:16]) != sunVTOCMagic {
		return nil, fmt.Errorf("sun: bad VTOC magic")
	}

	pcylinders := int64(binary.BigEndian.Uint16(sector[430:432]))
	if pcylinders == 0 {
		pcylinders = 1
	}
	sectorsPerCylinder := ss // conservative default absent a full geometry block

	var parts []*blockio.Partition
	const entryOff = 28 // vtoc_timestamp follows 8 tags, partitions at vtoc+28? kept simple: 8x8-byte entries
	for i := 0; i < 8; i++ {
		ent := vtoc[entryOff+i*8:][:8]
		tag := binary.BigEndian.Uint16(ent[0:2])
		if tag == 0 { // V_UNASSIGNED
			continue
		}
		start := int64(binary.BigEndian.Uint32(sector[444+i*8:])) * sectorsPerCylinder / ss
		count := int64(binary.BigEndian.Uint32(sector[448+i*8:]))
		if count == 0 {
			continue
		}
		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   start,
			LengthSectors: count,
			Index:         i,
			Number:        i + 1,
			TypeID:        fmt.Sprintf("sun-tag-%d", tag),
		})
	}
	_ = pcylinders
	if len(parts) == 0 {
		return nil, fmt.Errorf("sun: no partition entries")
	}
	return parts, nil
}
