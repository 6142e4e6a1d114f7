// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package resourcefork

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"testing"
	"testing/fstest"
)

type res struct {
	typ  string // exactly 4 bytes
	id   int16
	name string // "" = unnamed
	data []byte
}

// buildFork lays out a bare resource fork the way ResEdit would: 256-byte
// header zone, data area, then the map with its type list, reference
// lists, and name list.
func buildFork(t *testing.T, rs []res) []byte {
	t.Helper()

	var data bytes.Buffer
	dataOffs := make([]int, len(rs))
	for i, r := range rs {
		dataOffs[i] = data.Len()
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(len(r.data)))
		data.Write(sz[:])
		data.Write(r.data)
	}

	// group references by type, preserving first-appearance order
	var types []string
	byType := make(map[string][]int)
	for i, r := range rs {
		if len(byType[r.typ]) == 0 {
			types = append(types, r.typ)
		}
		byType[r.typ] = append(byType[r.typ], i)
	}

	var names bytes.Buffer
	nameOff := make([]int, len(rs))
	for i, r := range rs {
		if r.name == "" {
			nameOff[i] = -1
			continue
		}
		nameOff[i] = names.Len()
		names.WriteByte(byte(len(r.name)))
		names.WriteString(r.name)
	}

	// type list: count word + 8-byte entries, then 12-byte ref lists
	tl := make([]byte, 2+8*len(types))
	binary.BigEndian.PutUint16(tl[0:2], uint16(len(types)-1)) // 0xFFFF when empty
	for ti, typ := range types {
		refs := byType[typ]
		ent := tl[2+8*ti:]
		copy(ent[0:4], typ)
		binary.BigEndian.PutUint16(ent[4:6], uint16(len(refs)-1))
		binary.BigEndian.PutUint16(ent[6:8], uint16(len(tl)))
		for _, ri := range refs {
			ref := make([]byte, 12)
			binary.BigEndian.PutUint16(ref[0:2], uint16(rs[ri].id))
			binary.BigEndian.PutUint16(ref[2:4], uint16(int16(nameOff[ri])))
			binary.BigEndian.PutUint32(ref[4:8], uint32(dataOffs[ri])&0xffffff)
			tl = append(tl, ref...)
		}
	}

	rmap := make([]byte, 28)
	binary.BigEndian.PutUint16(rmap[24:26], 28)                 // type list offset
	binary.BigEndian.PutUint16(rmap[26:28], uint16(28+len(tl))) // name list offset
	rmap = append(rmap, tl...)
	rmap = append(rmap, names.Bytes()...)

	fork := make([]byte, 256)
	binary.BigEndian.PutUint32(fork[0:4], 256)
	binary.BigEndian.PutUint32(fork[4:8], uint32(256+data.Len()))
	binary.BigEndian.PutUint32(fork[8:12], uint32(data.Len()))
	binary.BigEndian.PutUint32(fork[12:16], uint32(len(rmap)))
	fork = append(fork, data.Bytes()...)
	fork = append(fork, rmap...)
	return fork
}

func TestLarge(t *testing.T) {
	fork := buildFork(t, []res{
		{typ: "0b  ", id: -32768},
		{typ: "0b  ", id: 32767},
		{typ: "99b ", id: -32768, data: bytes.Repeat([]byte{0xee}, 99)},
		{typ: "99b ", id: 32767, data: bytes.Repeat([]byte{0xee}, 99)},
	})
	fsys, err := New(bytes.NewReader(fork))
	if err != nil {
		t.Fatal(err)
	}
	err = fstest.TestFS(fsys, "0b  /-32768", "0b  /32767", "99b /-32768", "99b /32767")
	if err != nil {
		t.Error(err)
	}

	s, err := fs.Stat(fsys, "0b  /-32768")
	if err != nil {
		t.Error(err)
	} else if s.Size() != 0 {
		t.Errorf("expected resource of type '0b  ' to be 0 bytes, got %d", s.Size())
	}

	s, err = fs.Stat(fsys, "99b /-32768")
	if err != nil {
		t.Error(err)
	} else if s.Size() != 99 {
		t.Errorf("expected resource of type '99b ' to be 99 bytes, got %d", s.Size())
	}
	data, _ := fs.ReadFile(fsys, "99b /-32768")
	if len(data) != 99 || len(bytes.ReplaceAll(data, []byte{0xee}, nil)) != 0 {
		t.Errorf("expected resource of type '99b ' to contain 0xee x 99")
	}
}

func TestEmpty(t *testing.T) {
	fork := buildFork(t, nil)
	fsys, err := New(bytes.NewReader(fork))
	if err != nil {
		t.Fatal(err)
	}
	if err := fstest.TestFS(fsys); err != nil {
		t.Error(err)
	}
}

func TestNamed(t *testing.T) {
	fork := buildFork(t, []res{
		{typ: "blan", id: 128, name: "_", data: []byte("blank")},
		{typ: "long", id: 128, name: "a much longer resource name", data: []byte("lengthy")},
	})
	fsys, err := New(bytes.NewReader(fork))
	if err != nil {
		t.Fatal(err)
	}
	err = fstest.TestFS(fsys, "blan/128", "long/128")
	if err != nil {
		t.Error(err)
	}

	to, err := fs.ReadLink(fsys, "blan/named/_")
	if err != nil || to != "blan/128" {
		t.Errorf("ReadLink = %q, %v", to, err)
	}
}
