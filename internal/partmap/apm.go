// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/arcfs/corefs/internal/blockio"
)

type apmMap struct{}

func (apmMap) Name() string { return "apm" }

// Probe parses an Apple Partition Map: a Driver Descriptor Map ("ER") at
// block 0 followed by a run of 512-byte ("PM") entries, each giving a
// partition's start block, block count, and type string. Adapted from the
// internal/apm package, generalized to blockio.Partition instead
// of a flat fs.FS of section readers.
func (apmMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	ss := blockio.SectorSize(d)
	var ddm [514]byte
	n, _ := d.ReadAt(ddm[:], 0)
	if n < 514 || ddm[0] != 'E' || ddm[1] != 'R' {
		return nil, fmt.Errorf("apm: not an Apple Partition Map")
	}

	sbBlkSize := int64(binary.BigEndian.Uint16(ddm[2:]))
	mapEntryStep := sbBlkSize
	if ddm[512] == 'P' && ddm[513] == 'M' {
		mapEntryStep = 512
	}

	var first [8]byte
	n, _ = d.ReadAt(first[:], mapEntryStep)
	if n < 8 || first[0] != 'P' || first[1] != 'M' {
		return nil, fmt.Errorf("apm: corrupt Apple Partition Map")
	}
	count := int64(binary.BigEndian.Uint32(first[4:8]))
	if count <= 0 || count > 1<<16 {
		return nil, fmt.Errorf("apm: implausible entry count")
	}

	table := make([]byte, count*mapEntryStep)
	if n, _ := d.ReadAt(table, mapEntryStep); int64(n) != int64(len(table)) {
		return nil, fmt.Errorf("apm: truncated Apple Partition Map")
	}

	var parts []*blockio.Partition
	num := 1
	for i := int64(0); i < count; i++ {
		ent := table[i*mapEntryStep:][:512]
		if ent[0] != 'P' || ent[1] != 'M' {
			return nil, fmt.Errorf("apm: corrupt partition map entry %d", i)
		}
		start := int64(binary.BigEndian.Uint32(ent[8:]))
		blocks := int64(binary.BigEndian.Uint32(ent[12:]))
		typeName, _, _ := strings.Cut(string(ent[48:80]), "\x00")
		if typeName == "Apple_Free" {
			continue
		}

		// mapEntryStep is the APM's own block size, which may differ from
		// the disk's native sector size (e.g. a 512-byte shadow map over a
		// 2048-byte optical disk); rescale to native sectors.
		startSectors := start * mapEntryStep / ss
		lengthSectors := blocks * mapEntryStep / ss

		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   startSectors,
			LengthSectors: lengthSectors,
			Index:         int(i),
			Number:        num,
			TypeID:        typeName,
		})
		num++
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("apm: no partition entries")
	}
	return parts, nil
}
