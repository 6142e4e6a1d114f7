// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package usn parses Windows NTFS Update Sequence Number (USN) journal
// records: variable-length little-endian structures terminated by a
// UTF-16LE file name, as produced by $UsnJrnl:$J and by NTFS change
// journal records embedded in MFT entries.
package usn

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"time"
	"unicode/utf16"

	"github.com/arcfs/corefs/internal/filetimeconv"
)

// headerSize is sizeof(fusn_record_header_t): the fixed portion preceding
// the variable-length UTF-16LE name.
const headerSize = 4 + 2 + 2 + 8 + 8 + 8 + 8 + 4 + 4 + 4 + 4 + 2 + 2

// FileReference is a 48-bit MFT record number plus a 16-bit sequence
// number, packed the way NTFS packs file and parent references.
type FileReference uint64

func (r FileReference) MFT() uint64      { return uint64(r) & 0xffffffffffff }
func (r FileReference) Sequence() uint16 { return uint16(uint64(r) >> 48) }

// Record is one parsed USN journal record.
type Record struct {
	Size                    uint32
	MajorVersion            uint16
	MinorVersion            uint16
	FileReference           FileReference
	ParentFileReference     FileReference
	USN                     int64
	UpdateTime              uint64 // raw FILETIME; use UpdateTimeGo for time.Time
	UpdateReasonFlags       uint32
	UpdateSourceFlags       uint32
	SecurityID              uint32
	FileAttributeFlags      uint32
	Name                    string
}

// UpdateTimeGo converts UpdateTime to a time.Time via filetimeconv.
func (r Record) UpdateTimeGo() time.Time {
	return filetimeconv.ToTime(r.UpdateTime)
}

// Parse parses one USN record from buf: major version must be 2, size
// must be at least the header size, and the name must fit entirely
// within the record.
func Parse(buf []byte) (Record, error) {
	if len(buf) < headerSize {
		return Record{}, fmt.Errorf("usn: record shorter than header (%d < %d)", len(buf), headerSize)
	}

	size := binary.LittleEndian.Uint32(buf[0:4])
	major := binary.LittleEndian.Uint16(buf[4:6])
	minor := binary.LittleEndian.Uint16(buf[6:8])

	if major != 2 {
		return Record{}, fmt.Errorf("usn: unsupported major version %d (only 2 is implemented)", major)
	}
	if int(size) < headerSize {
		return Record{}, fmt.Errorf("usn: record size %d smaller than header %d", size, headerSize)
	}
	if int(size) > len(buf) {
		return Record{}, fmt.Errorf("usn: record size %d exceeds buffer %d", size, len(buf))
	}

	nameSize := binary.LittleEndian.Uint16(buf[56:58])
	nameOffset := binary.LittleEndian.Uint16(buf[58:60])

	if int(nameOffset) < headerSize {
		return Record{}, fmt.Errorf("usn: name offset %d precedes header", nameOffset)
	}
	if int(nameOffset)+int(nameSize) > int(size) {
		return Record{}, fmt.Errorf("usn: name (offset=%d size=%d) exceeds record size %d", nameOffset, nameSize, size)
	}

	nameBytes := buf[nameOffset:][:nameSize]
	u16 := make([]uint16, nameSize/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(nameBytes[i*2:])
	}

	return Record{
		Size:                size,
		MajorVersion:        major,
		MinorVersion:        minor,
		FileReference:       FileReference(binary.LittleEndian.Uint64(buf[8:16])),
		ParentFileReference: FileReference(binary.LittleEndian.Uint64(buf[16:24])),
		USN:                 int64(binary.LittleEndian.Uint64(buf[24:32])),
		UpdateTime:          binary.LittleEndian.Uint64(buf[32:40]),
		UpdateReasonFlags:   binary.LittleEndian.Uint32(buf[40:44]),
		UpdateSourceFlags:   binary.LittleEndian.Uint32(buf[44:48]),
		SecurityID:          binary.LittleEndian.Uint32(buf[48:52]),
		FileAttributeFlags:  binary.LittleEndian.Uint32(buf[52:56]),
		Name:                string(utf16.Decode(u16)),
	}, nil
}

// Iterate walks a sequential stream of USN records (e.g. a $UsnJrnl:$J
// data stream, which is sparse-padded with zero records between journal
// sectors). A run of zero bytes where a record size is expected is treated
// as padding and skipped to the next sector boundary, matching how a real
// NTFS journal reader must tolerate sparse gaps.
func Iterate(r io.Reader, sectorSize int) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		buf := make([]byte, 0, 64*1024)
		tmp := make([]byte, 64*1024)
		pos := 0 // stream offset of buf[0]
		for {
			n, err := r.Read(tmp)
			buf = append(buf, tmp[:n]...)

			for len(buf) >= 4 {
				size := binary.LittleEndian.Uint32(buf[0:4])
				if size == 0 {
					// Padding: skip to the next sector boundary.
					skip := 1
					if sectorSize > 0 {
						skip = sectorSize - pos%sectorSize
					}
					if len(buf) < skip {
						break
					}
					buf = buf[skip:]
					pos += skip
					continue
				}
				if int(size) > len(buf) {
					break // need more data
				}
				rec, perr := Parse(buf[:size])
				buf = buf[size:]
				pos += int(size)
				if perr != nil {
					if !yield(Record{}, perr) {
						return
					}
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}

			if err != nil {
				if err != io.EOF && len(buf) > 0 {
					yield(Record{}, err)
				}
				return
			}
		}
	}
}
