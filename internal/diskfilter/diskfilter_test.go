// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskfilter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
)

func member(name string, data []byte) blockio.Disk {
	return &blockio.MemDisk{NameStr: name, Bytes: data, Log2Sector: 9}
}

func pattern(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestRAID0Striping(t *testing.T) {
	const chunk = 512
	m0 := append(pattern('a', chunk), pattern('c', chunk)...)
	m1 := append(pattern('b', chunk), pattern('d', chunk)...)
	a := &RAIDArray{
		NameStr:      "r0",
		Level:        RAID0,
		Members:      []blockio.Disk{member("m0", m0), member("m1", m1)},
		ChunkSectors: 1,
		Log2Sector:   9,
	}
	if got := a.Sectors(); got != 4 {
		t.Fatalf("sectors = %d, want 4", got)
	}

	want := append(append(append(pattern('a', chunk), pattern('b', chunk)...), pattern('c', chunk)...), pattern('d', chunk)...)
	got := make([]byte, 4*chunk)
	if _, err := a.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("striped read mismatch")
	}

	// an unaligned read crossing a stripe boundary
	slice := make([]byte, 600)
	if _, err := a.ReadAt(slice, 300); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(slice, want[300:900]) {
		t.Fatal("unaligned striped read mismatch")
	}
}

func TestRAID1Mirror(t *testing.T) {
	m := pattern('x', 1024)
	a := &RAIDArray{
		NameStr:      "r1",
		Level:        RAID1,
		Members:      []blockio.Disk{member("m0", m), member("m1", m)},
		ChunkSectors: 1,
		Log2Sector:   9,
	}
	if got := a.Sectors(); got != 2 {
		t.Fatalf("sectors = %d, want 2", got)
	}
	buf := make([]byte, 1024)
	if _, err := a.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, m) {
		t.Fatal("mirror read mismatch")
	}
}

// Left-symmetric RAID5 with three members: parity rotates backward one
// slot per stripe row, and data fills the non-parity slots in order.
// Placement for rows 0..2, chunks c0..c5, parity P:
//
//	row 0: [c0 c1 P ]
//	row 1: [c2 P  c3]
//	row 2: [P  c4 c5]
func TestRAID5LeftSymmetricLayout(t *testing.T) {
	const chunk = 512
	ch := func(b byte) []byte { return pattern(b, chunk) }
	par := ch('P')

	m0 := append(append(append([]byte{}, ch('0')...), ch('2')...), par...)
	m1 := append(append(append([]byte{}, ch('1')...), par...), ch('4')...)
	m2 := append(append(append([]byte{}, par...), ch('3')...), ch('5')...)

	a := &RAIDArray{
		NameStr:        "r5",
		Level:          RAID5,
		Members:        []blockio.Disk{member("m0", m0), member("m1", m1), member("m2", m2)},
		ChunkSectors:   1,
		Log2Sector:     9,
		ParityRotation: true,
	}

	var want []byte
	for _, b := range []byte("012345") {
		want = append(want, pattern(b, chunk)...)
	}
	got := make([]byte, len(want))
	if _, err := a.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("raid5 data layout mismatch")
	}
}

// mdMemberImage builds a minimal md v1.2 member: superblock at byte 4096,
// data area at sector dataOffset.
func mdMemberImage(uuid [16]byte, devNumber uint32, role uint16, raidDisks uint32, data []byte) []byte {
	const dataOffset = 16 // sectors
	img := make([]byte, dataOffset*512+len(data))
	sb := img[4096:]
	binary.LittleEndian.PutUint32(sb[0:4], mdMagic)
	binary.LittleEndian.PutUint32(sb[4:8], 1) // major version
	copy(sb[16:32], uuid[:])
	copy(sb[32:64], "testarr")
	binary.LittleEndian.PutUint32(sb[72:76], 0)  // level: RAID0
	binary.LittleEndian.PutUint32(sb[88:92], 8)  // chunk: 8 sectors
	binary.LittleEndian.PutUint32(sb[92:96], raidDisks)
	binary.LittleEndian.PutUint64(sb[128:136], dataOffset)
	binary.LittleEndian.PutUint64(sb[136:144], uint64(len(data)/512))
	binary.LittleEndian.PutUint32(sb[160:164], devNumber)
	binary.LittleEndian.PutUint32(sb[220:224], raidDisks)
	binary.LittleEndian.PutUint16(sb[256+2*devNumber:], role)
	copy(img[dataOffset*512:], data)
	return img
}

func TestScannerAssemblesRAID0(t *testing.T) {
	uuid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	d0 := mdMemberImage(uuid, 0, 0, 2, append(pattern('a', 4096), pattern('c', 4096)...))
	d1 := mdMemberImage(uuid, 1, 1, 2, append(pattern('b', 4096), pattern('d', 4096)...))

	s := NewScanner()
	array, recognized, err := s.Observe(member("d0", d0))
	if err != nil {
		t.Fatal(err)
	}
	if !recognized || array != nil {
		t.Fatalf("first member: recognized=%v array=%v", recognized, array)
	}

	array, recognized, err = s.Observe(member("d1", d1))
	if err != nil {
		t.Fatal(err)
	}
	if !recognized || array == nil {
		t.Fatal("second member did not complete the array")
	}
	if array.Name() != "testarr" {
		t.Fatalf("array name = %q", array.Name())
	}

	want := append(append(append(pattern('a', 4096), pattern('b', 4096)...), pattern('c', 4096)...), pattern('d', 4096)...)
	got := make([]byte, len(want))
	if _, err := array.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("assembled array read mismatch")
	}
}

func TestScannerIgnoresPlainDisk(t *testing.T) {
	s := NewScanner()
	array, recognized, err := s.Observe(member("plain", make([]byte, 64*1024)))
	if err != nil || recognized || array != nil {
		t.Fatalf("plain disk misrecognized: %v %v %v", array, recognized, err)
	}
}
