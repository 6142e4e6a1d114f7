// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/arcfs/corefs/internal/blockio"
)

type gptMap struct{}

func (gptMap) Name() string { return "gpt" }

// gptSignature is "EFI PART".
var gptSignature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// Probe parses a GUID Partition Table header at LBA 1 and its partition
// entry array, per the UEFI specification: a 92-byte header (signature,
// revision, header size, CRC32, entry LBA, entry count, entry size) followed
// by a flat array of fixed-size entries, each holding a type GUID, a unique
// GUID, a first/last LBA, attribute flags, and a UTF-16LE name.
func (gptMap) Probe(d blockio.Disk) ([]*blockio.Partition, error) {
	ss := blockio.SectorSize(d)
	hdr := make([]byte, 92)
	if _, err := d.ReadAt(hdr, ss); err != nil {
		return nil, err
	}
	if [8]byte(hdr[0:8]) != gptSignature {
		return nil, fmt.Errorf("gpt: bad signature")
	}

	entryLBA := int64(binary.LittleEndian.Uint64(hdr[72:80]))
	entryCount := binary.LittleEndian.Uint32(hdr[80:84])
	entrySize := binary.LittleEndian.Uint32(hdr[84:88])
	if entrySize == 0 || entryCount == 0 || entryCount > 1<<20 {
		return nil, fmt.Errorf("gpt: implausible entry table")
	}

	tableBytes := int64(entryCount) * int64(entrySize)
	table := make([]byte, tableBytes)
	if _, err := d.ReadAt(table, entryLBA*ss); err != nil {
		return nil, err
	}

	var parts []*blockio.Partition
	num := 1
	for i := uint32(0); i < entryCount; i++ {
		ent := table[int64(i)*int64(entrySize):][:entrySize]
		typeGUID := ent[0:16]
		if isZero(typeGUID) {
			continue
		}
		firstLBA := int64(binary.LittleEndian.Uint64(ent[32:40]))
		lastLBA := int64(binary.LittleEndian.Uint64(ent[40:48]))
		name := decodeUTF16Name(ent[56:128])

		parts = append(parts, &blockio.Partition{
			Parent:        d,
			StartSector:   firstLBA,
			LengthSectors: lastLBA - firstLBA + 1,
			Index:         int(i),
			Number:        num,
			TypeID:        formatGUID(typeGUID),
			Name:          name,
		})
		num++
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("gpt: no partition entries")
	}
	return parts, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func formatGUID(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		uint16(b[8])<<8|uint16(b[9]),
		b[10:16])
}

func decodeUTF16Name(b []byte) string {
	u16 := make([]uint16, len(b)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(b[i*2:])
		if u16[i] == 0 {
			u16 = u16[:i]
			break
		}
	}
	return string(utf16.Decode(u16))
}
