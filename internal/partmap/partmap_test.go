// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"encoding/binary"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
)

func mbrDisk(t *testing.T) blockio.Disk {
	t.Helper()
	data := make([]byte, 512)
	ent := data[0x1be:]
	ent[4] = 0x83
	binary.LittleEndian.PutUint32(ent[8:12], 2048)
	binary.LittleEndian.PutUint32(ent[12:16], 4096)
	data[510], data[511] = 0x55, 0xaa
	return &blockio.MemDisk{NameStr: "mbr", Bytes: data, Log2Sector: 9}
}

func TestMBRProbe(t *testing.T) {
	m, parts, err := ProbeAll(mbrDisk(t))
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Name() != "mbr" {
		t.Fatalf("wrong map: %v", m)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions", len(parts))
	}
	p := parts[0]
	if p.StartSector != 2048 || p.LengthSectors != 4096 || p.Number != 1 || p.TypeID != "0x83" {
		t.Fatalf("bad partition: %+v", p)
	}
}

// espGUID is the EFI System Partition type GUID
// C12A7328-F81F-11D2-BA4B-00A0C93EC93B in its on-disk mixed-endian form.
var espGUID = []byte{
	0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11,
	0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b,
}

func gptDisk(t *testing.T, protective bool) blockio.Disk {
	t.Helper()
	data := make([]byte, 2048)

	if protective {
		ent := data[0x1be:]
		ent[4] = 0xee
		binary.LittleEndian.PutUint32(ent[8:12], 1)
		binary.LittleEndian.PutUint32(ent[12:16], 0xffffffff)
		data[510], data[511] = 0x55, 0xaa
	}

	hdr := data[512:]
	copy(hdr, "EFI PART")
	binary.LittleEndian.PutUint64(hdr[72:80], 2)   // entry array LBA
	binary.LittleEndian.PutUint32(hdr[80:84], 1)   // entry count
	binary.LittleEndian.PutUint32(hdr[84:88], 128) // entry size

	ent := data[1024:]
	copy(ent[0:16], espGUID)
	binary.LittleEndian.PutUint64(ent[32:40], 2048) // first LBA
	binary.LittleEndian.PutUint64(ent[40:48], 4095) // last LBA
	name := "EFI System Partition"
	for i, c := range name {
		binary.LittleEndian.PutUint16(ent[56+2*i:], uint16(c))
	}

	return &blockio.MemDisk{NameStr: "gpt", Bytes: data, Log2Sector: 9}
}

func TestGPTProbe(t *testing.T) {
	m, parts, err := ProbeAll(gptDisk(t, false))
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Name() != "gpt" {
		t.Fatalf("wrong map: %v", m)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions", len(parts))
	}
	p := parts[0]
	if p.StartSector != 2048 || p.LengthSectors != 2048 {
		t.Fatalf("bad bounds: %+v", p)
	}
	if p.TypeID != "c12a7328-f81f-11d2-ba4b-00a0c93ec93b" {
		t.Fatalf("bad type GUID: %q", p.TypeID)
	}
	if p.Name != "EFI System Partition" {
		t.Fatalf("bad name: %q", p.Name)
	}
}

// A disk carrying both a protective MBR and a GPT must resolve as GPT:
// the MBR prober defers when it sees the 0xee protective type.
func TestProtectiveMBRDefersToGPT(t *testing.T) {
	m, parts, err := ProbeAll(gptDisk(t, true))
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Name() != "gpt" {
		t.Fatalf("wrong map: %v", m)
	}
	if len(parts) != 1 || parts[0].StartSector != 2048 {
		t.Fatalf("bad partitions: %+v", parts)
	}
}
