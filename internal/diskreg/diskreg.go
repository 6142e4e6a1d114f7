// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package diskreg implements the task-local disk and loopback registry:
// hardware disks registered once at startup, plus named loopback devices
// that alias an open file handle as a new disk, reference-counted so a
// loopback cannot be deleted while any handle still descends through it.
package diskreg

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arcfs/corefs/internal/blockio"
)

// Loopback is a named alias of an underlying byte source as a Disk. Its
// refcount counts the mounts that descend through it: corefs's
// MountDevice acquires once per mount and the mount's Close releases.
// Registry.Open does not acquire, so a Disk obtained from Open alone is not
// counted. DeleteLoopback fails while the count is nonzero.
type Loopback struct {
	name string
	disk blockio.Disk
	refs atomic.Int64
}

func (l *Loopback) Name() string          { return l.disk.Name() }
func (l *Loopback) Sectors() int64        { return l.disk.Sectors() }
func (l *Loopback) Log2SectorSize() uint  { return l.disk.Log2SectorSize() }
func (l *Loopback) Partition() *blockio.Partition { return l.disk.Partition() }
func (l *Loopback) ReadAt(p []byte, off int64) (int, error) { return l.disk.ReadAt(p, off) }

// Acquire increments the loopback's refcount; each Acquire is paired with
// one Release. Partition slices and disk-filter arrays built on the
// loopback do not acquire on their own.
func (l *Loopback) Acquire() { l.refs.Add(1) }

// Release decrements the loopback's refcount.
func (l *Loopback) Release() { l.refs.Add(-1) }

func (l *Loopback) inUse() bool { return l.refs.Load() > 0 }

// Registry is a task-local table of hardware disks plus named loopbacks.
// Loopback names shadow hardware names on collision: Open consults
// loopbacks first, then hardware disks.
type Registry struct {
	mu        sync.Mutex
	hardware  map[string]blockio.Disk
	loopbacks map[string]*Loopback
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		hardware:  make(map[string]blockio.Disk),
		loopbacks: make(map[string]*Loopback),
	}
}

// AddHardware registers a physical disk, keyed by its own Name(). Hardware
// disks are not reference counted: the registry assumes the caller owns
// their lifetime independently (they exist for the life of the process).
func (r *Registry) AddHardware(d blockio.Disk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hardware[d.Name()] = d
}

// AddLoopback creates a named loopback aliasing disk. name must not already
// be in use by another loopback (hardware-name collisions are permitted;
// the loopback shadows it).
func (r *Registry) AddLoopback(name string, disk blockio.Disk) (*Loopback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loopbacks[name]; exists {
		return nil, fmt.Errorf("diskreg: loopback %q already exists", name)
	}
	l := &Loopback{name: name, disk: disk}
	r.loopbacks[name] = l
	return l, nil
}

// DeleteLoopback removes a loopback by name, refusing while it (or any
// disk descending through it) is still in use.
func (r *Registry) DeleteLoopback(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loopbacks[name]
	if !ok {
		return fmt.Errorf("diskreg: no loopback named %q", name)
	}
	if l.inUse() {
		return fmt.Errorf("diskreg: loopback %q is in use", name)
	}
	delete(r.loopbacks, name)
	return nil
}

// Open resolves a bare disk name: loopbacks are consulted first since they
// shadow hardware on a name collision, then hardware disks.
func (r *Registry) Open(name string) (blockio.Disk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loopbacks[name]; ok {
		return l, nil
	}
	if d, ok := r.hardware[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("diskreg: no such device %q", name)
}
