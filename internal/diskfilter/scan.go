// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskfilter

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/arcfs/corefs/internal/blockio"
)

// Linux md v1.2 superblock: 4 KiB from the start of the member device,
// data area at data_offset sectors.
const (
	mdSuperOffset = 4096
	mdMagic       = 0xa92b4efc
)

const (
	mdRoleSpare  = 0xFFFF
	mdRoleFaulty = 0xFFFE
)

type mdMember struct {
	disk blockio.Disk
	role int
}

type pendingArray struct {
	name      string
	level     RAIDLevel
	rotation  bool
	chunk     int64 // sectors
	raidDisks int
	members   map[int]blockio.Disk // role -> data slice
}

// Scanner accumulates md RAID members observed across raw disks and
// assembles each array once every member has been seen. Members are held
// by array UUID in a flat table, never by back-pointer from an array.
type Scanner struct {
	pending map[[16]byte]*pendingArray
}

func NewScanner() *Scanner {
	return &Scanner{pending: make(map[[16]byte]*pendingArray)}
}

// Observe probes d for a recognized disk-filter superblock. When d
// completes an array, the assembled array is returned; a recognized
// member of a still-partial array returns (nil, true, nil); a disk with
// no disk-filter superblock returns (nil, false, nil).
func (s *Scanner) Observe(d blockio.Disk) (blockio.Disk, bool, error) {
	// LDM is detected (signature at the start of the private region
	// header sector) purely to refuse it by name.
	var sig [8]byte
	if _, err := d.ReadAt(sig[:], 6*512); err == nil {
		if err := ProbeLDM(sig); err == ErrLDMUnsupported {
			return nil, true, err
		}
	}

	sb := make([]byte, 4096)
	if _, err := d.ReadAt(sb, mdSuperOffset); err != nil && err != io.EOF {
		return nil, false, err
	}
	if binary.LittleEndian.Uint32(sb[0:4]) != mdMagic {
		return nil, false, nil
	}
	if binary.LittleEndian.Uint32(sb[4:8]) != 1 {
		return nil, true, fmt.Errorf("diskfilter: unsupported md superblock major version")
	}

	var uuid [16]byte
	copy(uuid[:], sb[16:32])
	setName := strings.TrimRight(string(sb[32:64]), "\x00")
	level := int32(binary.LittleEndian.Uint32(sb[72:76]))
	layout := binary.LittleEndian.Uint32(sb[76:80])
	chunk := int64(binary.LittleEndian.Uint32(sb[88:92]))
	raidDisks := int(binary.LittleEndian.Uint32(sb[92:96]))
	dataOffset := int64(binary.LittleEndian.Uint64(sb[128:136]))
	dataSize := int64(binary.LittleEndian.Uint64(sb[136:144]))
	devNumber := binary.LittleEndian.Uint32(sb[160:164])
	maxDev := binary.LittleEndian.Uint32(sb[220:224])

	if devNumber >= maxDev || 256+2*int(devNumber)+2 > len(sb) {
		return nil, true, fmt.Errorf("diskfilter: md dev_number %d out of range", devNumber)
	}
	role := int(binary.LittleEndian.Uint16(sb[256+2*devNumber:]))
	if role == mdRoleSpare || role == mdRoleFaulty {
		return nil, true, nil // not an active member; nothing to place
	}

	var rl RAIDLevel
	switch level {
	case 0:
		rl = RAID0
	case 1:
		rl = RAID1
	case 4:
		rl = RAID4
	case 5:
		rl = RAID5
	case 6:
		rl = RAID6
	default:
		return nil, true, fmt.Errorf("diskfilter: unsupported md level %d", level)
	}
	var rotation bool
	switch {
	case rl == RAID0, rl == RAID1, rl == RAID4:
		rotation = false
	case layout == 2: // left-symmetric, the md default
		rotation = true
	case layout == 0: // left-asymmetric
		rotation = false
	default:
		return nil, true, fmt.Errorf("diskfilter: unsupported md parity layout %d", layout)
	}

	slice, err := blockio.NewSlice(
		fmt.Sprintf("%s#%d", d.Name(), role),
		&blockio.Partition{Parent: d, StartSector: dataOffset, LengthSectors: dataSize, Number: role + 1, Index: role},
		nil)
	if err != nil {
		return nil, true, err
	}

	pa := s.pending[uuid]
	if pa == nil {
		name := setName
		if name == "" {
			name = fmt.Sprintf("md-%x", uuid[:4])
		}
		pa = &pendingArray{
			name:      name,
			level:     rl,
			rotation:  rotation,
			chunk:     chunk,
			raidDisks: raidDisks,
			members:   make(map[int]blockio.Disk),
		}
		s.pending[uuid] = pa
	}
	pa.members[role] = slice

	if len(pa.members) < pa.raidDisks {
		return nil, true, nil // degraded; reads would need reconstruction
	}

	members := make([]blockio.Disk, pa.raidDisks)
	for i := range members {
		m, ok := pa.members[i]
		if !ok {
			return nil, true, fmt.Errorf("diskfilter: md array %q has duplicate roles", pa.name)
		}
		members[i] = m
	}
	delete(s.pending, uuid)
	return &RAIDArray{
		NameStr:        pa.name,
		Level:          pa.level,
		Members:        members,
		ChunkSectors:   pa.chunk,
		Log2Sector:     9,
		ParityRotation: pa.rotation,
	}, true, nil
}
