// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"io"
	"iter"

	"github.com/arcfs/corefs/internal/usn"
)

// USNRecord is one parsed NTFS change-journal record; see
// internal/usn.Record for field documentation.
type USNRecord = usn.Record

// ParseUSNRecord parses a single USN v2 record from buf.
func ParseUSNRecord(buf []byte) (USNRecord, error) {
	return usn.Parse(buf)
}

// IterateUSN walks a sequential $UsnJrnl:$J-style stream of USN records,
// skipping the zero-padding runs a sparse journal contains. sectorSize is
// the journal's sector granularity (512 for every real NTFS volume);
// values <= 0 select 512.
func IterateUSN(r io.Reader, sectorSize int) iter.Seq2[USNRecord, error] {
	if sectorSize <= 0 {
		sectorSize = 512
	}
	return usn.Iterate(r, sectorSize)
}
