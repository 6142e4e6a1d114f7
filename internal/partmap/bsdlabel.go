// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"

	"github.com/arcfs/corefs/internal/blockio"
)

type bsdlabelMap struct{}

func (bsdlabelMap) Name() string { return "bsdlabel" }

const bsdMagic = 0x82564557

// Probe parses a BSD disklabel: a magic-delimited struct historically
// embedded at byte offset 512 within the first disk sector (inside an MBR
// slice whose type is 0xa5, in the "whole disk as one partition" layout
// this core treats BSD disklabel-bearing disks as using). Offsets follow
// the traditional 4.4BSD disklabel.h layout: two magic numbers bracket a
// fixed header, then an array of 16-byte partition entries starting at
// offset 148.
func (bsdlabelMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	buf := make([]byte, 512+432)
	if _, err := d.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	label := buf[512:]
	if binary.LittleEndian.Uint32(label[0:4]) != bsdMagic {
		return nil, fmt.Errorf("bsdlabel: bad magic")
	}
	if binary.LittleEndian.Uint32(label[132:136]) != bsdMagic {
		return nil, fmt.Errorf("bsdlabel: bad trailing magic")
	}

	npartitions := int(binary.LittleEndian.Uint16(label[138:140]))
	if npartitions <= 0 || npartitions > 22 {
		return nil, fmt.Errorf("bsdlabel: implausible partition count %d", npartitions)
	}

	var parts []*blockio.Partition
	const entryOff = 148
	for i := 0; i < npartitions; i++ {
		ent := label[entryOff+i*16:][:16]
		size := int64(binary.LittleEndian.Uint32(ent[0:4]))
		offset := int64(binary.LittleEndian.Uint32(ent[4:8]))
		fstype := ent[12]
		if size == 0 || fstype == 0 { // FS_UNUSED
			continue
		}
		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   offset,
			LengthSectors: size,
			Index:         i,
			Number:        i + 1,
			TypeID:        fmt.Sprintf("bsd-fstype-%d", fstype),
		})
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("bsdlabel: no partition entries")
	}
	return parts, nil
}
