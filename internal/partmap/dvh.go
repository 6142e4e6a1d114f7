// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"

	"github.com/arcfs/corefs/internal/blockio"
)

type dvhMap struct{}

func (dvhMap) Name() string { return "dvh" }

const dvhMagic = 0x0be5a941

// Probe parses an SGI IRIX volume header (dvh): a big-endian struct at
// sector 0 beginning with a magic number, followed by a boot-file table and
// a 16-entry partition table, each entry giving a block count, start
// block, and partition type.
func (dvhMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	sector := make([]byte, 512)
	if _, err := d.ReadAt(sector, 0); err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(sector[0:4]) != dvhMagic {
		return nil, fmt.Errorf("dvh: bad magic")
	}

	const partTableOff = 0xd0 // after vd_bootfile[16] and vd_bfile table
	var parts []*blockio.Partition
	for i := 0; i < 16; i++ {
		ent := sector[partTableOff+i*12:][:12]
		numBlocks := int64(binary.BigEndian.Uint32(ent[0:4]))
		firstBlock := int64(binary.BigEndian.Uint32(ent[4:8]))
		ptype := binary.BigEndian.Uint32(ent[8:12])
		if numBlocks == 0 {
			continue
		}
		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   firstBlock,
			LengthSectors: numBlocks,
			Index:         i,
			Number:        i + 1,
			TypeID:        fmt.Sprintf("dvh-type-%d", ptype),
		})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("dvh: no partition entries")
	}
	return parts, nil
}
