// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/diskreg"
	"github.com/arcfs/corefs/internal/fsreg"
	"github.com/arcfs/corefs/internal/fsview"
	"github.com/arcfs/corefs/internal/partmap"
	"github.com/arcfs/corefs/internal/prefetchcache"
)

// AddHardware registers a physical disk with fsys, keyed by its own Name.
// Hardware disks are not reference counted; fsys assumes the caller owns
// their lifetime for the life of the process.
//
// Each added disk is also probed for disk-filter (RAID) membership; a
// disk that completes an array gets the assembled array registered as a
// device of its own, addressable by the array's name. A member of a
// still-partial array stays registered individually, so a degraded set is
// visible as raw members rather than invisible.
func (fsys *FS) AddHardware(d blockio.Disk) {
	fsys.disks.AddHardware(d)
	if array, _, err := fsys.mdScan.Observe(d); err == nil && array != nil {
		fsys.disks.AddHardware(array)
	}
}

// AddLoopback aliases an arbitrary byte source (an open file, an in-memory
// buffer, anything with io.ReaderAt) as a named disk, so MountDevice can
// later find and probe it by name. size is the source's length in bytes;
// sector size is assumed to be 512 bytes, matching the
// partition-map readers for byte-addressable sources with no native
// geometry.
func (fsys *FS) AddLoopback(name string, r io.ReaderAt, size int64) (*diskreg.Loopback, error) {
	return fsys.disks.AddLoopback(name, &blockio.ReaderAtDisk{NameStr: name, R: r, Size: size})
}

// DeleteLoopback removes a previously added loopback, failing while any
// mount still descends through it.
func (fsys *FS) DeleteLoopback(name string) error { return fsys.disks.DeleteLoopback(name) }

// MountDevice resolves name against fsys's disk registry (loopbacks first,
// then hardware, per diskreg.Registry.Open) and mounts whatever filesystem
// format or partition map the disk's own bytes are recognized as, the
// explicit counterpart to the automatic burrowing Open/ReadDir/Stat do for
// archives found while walking a tree.
//
// name may carry partition selectors after the device: "hd0,mbr1" opens
// partition 1 of hd0's DOS partition table, "hd0,gpt2,bsdlabel1" chases a
// nested map. Each selector is a partition-map name plus a 1-based
// partition number.
func (fsys *FS) MountDevice(name string) (fs.FS, error) {
	devname, selectors, _ := strings.Cut(name, ",")
	disk, err := fsys.disks.Open(devname)
	if err != nil {
		return nil, Wrap(KindBadDevice, "open device "+devname, err)
	}
	l, isLoopback := disk.(*diskreg.Loopback)

	if selectors != "" {
		for _, selector := range strings.Split(selectors, ",") {
			disk, err = selectPartition(disk, selector)
			if err != nil {
				return nil, err
			}
		}
	}

	if fsys.cfg.debugEnabled("mount") {
		slog.Info("mountDevice", "device", name)
	}
	mounted, err := mountDisk(disk)
	if err != nil {
		return nil, err
	}
	if isLoopback {
		// Pin the loopback until the mount is Closed, so DeleteLoopback
		// refuses while anything still descends through it.
		l.Acquire()
		return &loopbackMount{FS: mounted, l: l}, nil
	}
	return mounted, nil
}

// selectPartition applies one "mapN" selector: the named partition map is
// probed on disk and partition number N becomes the new disk.
func selectPartition(disk blockio.Disk, selector string) (blockio.Disk, error) {
	mapName := strings.TrimRight(selector, "0123456789")
	num, err := strconv.Atoi(selector[len(mapName):])
	if err != nil || mapName == "" {
		return nil, Wrap(KindBadFilename, "malformed partition selector "+selector, err)
	}
	for _, m := range partmap.Probers {
		if m.Name() != mapName {
			continue
		}
		parts, perr := m.Probe(disk)
		if perr != nil {
			return nil, Wrap(KindBadDevice, "partition map "+mapName+" does not match "+disk.Name(), perr)
		}
		for _, p := range parts {
			if p.Number == num {
				return blockio.NewSlice(disk.Name()+","+selector, p, nil)
			}
		}
		return nil, Wrap(KindBadDevice, "no partition "+selector+" on "+disk.Name(), nil)
	}
	return nil, Wrap(KindBadFilename, "unknown partition map "+mapName, nil)
}

// loopbackMount pairs a mounted filesystem with the loopback reference it
// holds. Callers that mounted through a loopback must Close the returned
// fs.FS before the loopback can be deleted.
type loopbackMount struct {
	fs.FS
	l    *diskreg.Loopback
	once sync.Once
}

func (m *loopbackMount) Close() error {
	m.once.Do(m.l.Release)
	return nil
}

func (m *loopbackMount) UUID() (string, error) {
	if x, ok := m.FS.(fsMeta); ok {
		return x.UUID()
	}
	return "", Wrap(KindUnsupported, "no filesystem metadata", nil)
}

func (m *loopbackMount) Label() (string, error) {
	if x, ok := m.FS.(fsMeta); ok {
		return x.Label()
	}
	return "", Wrap(KindUnsupported, "no filesystem metadata", nil)
}

// DeviceLabel returns the volume label of the filesystem on the named
// device, consulting the persistent metadata cache before mounting.
func (fsys *FS) DeviceLabel(name string) (string, error) {
	return fsys.deviceMeta(name, "label", func(m fsMeta) (string, error) { return m.Label() })
}

// DeviceUUID returns the filesystem UUID of the named device, consulting
// the persistent metadata cache before mounting.
func (fsys *FS) DeviceUUID(name string) (string, error) {
	return fsys.deviceMeta(name, "uuid", func(m fsMeta) (string, error) { return m.UUID() })
}

// fsMeta is the descriptor-field surface a mounted filesystem view
// exposes beyond plain fs.FS.
type fsMeta interface {
	UUID() (string, error)
	Label() (string, error)
}

func (fsys *FS) deviceMeta(name, field string, get func(fsMeta) (string, error)) (string, error) {
	key := prefetchcache.Key(name, field)
	if v, ok := fsys.devCache.GetMeta(key); ok {
		return string(v), nil
	}
	mounted, err := fsys.MountDevice(name)
	if err != nil {
		return "", err
	}
	defer func() {
		if c, ok := mounted.(io.Closer); ok {
			c.Close() // release the loopback pin a metadata peek took
		}
	}()
	m, ok := mounted.(fsMeta)
	if !ok {
		return "", Wrap(KindUnsupported, "device "+name+" exposes no filesystem metadata", nil)
	}
	s, err := get(m)
	if err != nil {
		return "", err
	}
	fsys.devCache.PutMeta(key, []byte(s))
	return s, nil
}

func mountDisk(disk blockio.Disk) (fs.FS, error) {
	if format, err := fsreg.Probe(disk); err == nil {
		return fsview.New(disk, format)
	}
	if _, parts, err := partmap.ProbeAll(disk); err == nil && parts != nil {
		return partmap.AsFS(parts, func(p *blockio.Partition) (blockio.Disk, error) {
			return blockio.NewSlice(fmt.Sprintf("%s/%d", disk.Name(), p.Number), p, nil)
		}), nil
	}
	return nil, Wrap(KindUnknownFS, "device "+disk.Name()+" matches no registered filesystem or partition map", nil)
}
