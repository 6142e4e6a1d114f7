// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package corefs implements a read-only, multi-format filesystem and
// archive abstraction: given any io/fs.FS of opaque byte blobs, it lets
// callers transparently descend into a recognized archive, disk image,
// partition map, or compressed stream the same way they would descend
// into an ordinary subdirectory. Detection and mounting are delegated to
// the registries in internal/fsreg (filesystem formats), internal/partmap
// (partition schemes), and internal/filefilter (compression), so adding a
// format never touches this package.
package corefs

import (
	"database/sql"
	"io/fs"
	"sync"

	"github.com/arcfs/corefs/internal/diskfilter"
	"github.com/arcfs/corefs/internal/diskreg"
	"github.com/arcfs/corefs/internal/filefilter"
	_ "github.com/arcfs/corefs/internal/fsimpl" // registers every filesystem module in probe order
	"github.com/arcfs/corefs/internal/prefetchcache"
	"github.com/arcfs/corefs/internal/spinner"
)

// Config tunes the behavior of an FS. The zero Config is usable: it means
// the built-in symlink depth limit and no debug logging.
type Config struct {
	// CaseSensitiveFS is not read by any code in this package or below it:
	// setting it changes nothing. Inside a mounted format, fsreg.Walk
	// matches each name case-sensitively or not by the directory entry's
	// own flag; other lookups go to the underlying fs.FS unchanged.
	CaseSensitiveFS bool

	// MaxSymlinkDepth is not read by any code in this package or below it:
	// setting it changes nothing. fsreg.Walk and fsview stop following
	// symlinks after a fixed 8 hops, the value of DefaultMaxSymlinkDepth.
	MaxSymlinkDepth int

	// DebugConditions lists named debug switches (e.g. "mount", "prefetch")
	// whose extra records are logged through slog at Info level. An empty
	// list enables none.
	DebugConditions []string

	// PrefetchDSN, if non-empty, is a sqlite DSN for the byte-range
	// prefetch cache (see prefetch.go). Empty disables prefetch caching.
	PrefetchDSN string

	// ReaderPoolSize bounds the concurrent background readers the spinner
	// pool keeps open for sources that aren't natively io.ReaderAt. Zero
	// means DefaultReaderPoolSize.
	ReaderPoolSize int
}

// DefaultMaxSymlinkDepth is used when Config.MaxSymlinkDepth is zero.
const DefaultMaxSymlinkDepth = 8

// DefaultReaderPoolSize is used when Config.ReaderPoolSize is zero.
const DefaultReaderPoolSize = 16

func (c Config) maxSymlinkDepth() int {
	if c.MaxSymlinkDepth > 0 {
		return c.MaxSymlinkDepth
	}
	return DefaultMaxSymlinkDepth
}

func (c Config) readerPoolSize() int {
	if c.ReaderPoolSize > 0 {
		return c.ReaderPoolSize
	}
	return DefaultReaderPoolSize
}

func (c Config) debugEnabled(cond string) bool {
	for _, d := range c.DebugConditions {
		if d == cond {
			return true
		}
	}
	return false
}

// FS is a view over root that burrows into any archive, disk image, or
// compressed stream it recognizes along the way. A zero FS is not usable;
// construct one with New.
type FS struct {
	root fs.FS
	cfg  Config

	disks *diskreg.Registry

	// mdScan accumulates RAID members across AddHardware calls; a disk
	// that completes an array gets the whole array registered as a device.
	mdScan *diskfilter.Scanner

	// devCache persists device-level dir order and uuid/label/mtime
	// lookups across runs; nil (no PrefetchDSN) disables it.
	devCache *prefetchcache.Cache

	// reverse maps a burrowed fsys back to the thinPath that mounts it, so
	// a path can render its own full string without a parent pointer.
	rMu     sync.RWMutex
	reverse map[fs.FS]thinPath

	// burrows memoises getArchive results per mountpoint, so repeated
	// listing or stat of the same archive file doesn't re-probe or
	// re-decompress it.
	bMu     sync.Mutex
	burrows map[thinPath]*burrowResult

	// zipLocs caches zip.File data offsets harvested the first time a zip
	// is opened, letting later reads seek straight to the payload instead
	// of re-walking the central directory.
	zMu     sync.Mutex
	zipLocs map[path]int64

	db  *sql.DB
	dbq [nQuery]*sql.Stmt

	rapool *spinner.Pool
}

// New wraps root. When Config.PrefetchDSN is non-empty, New also opens the
// on-disk byte-range cache and the device metadata cache at that DSN; with
// an empty DSN it never touches storage.
func New(root fs.FS, cfg Config) *FS {
	filefilter.MaxDecodedSize = memLimit
	fsys := &FS{
		root:    root,
		cfg:     cfg,
		disks:   diskreg.New(),
		mdScan:  diskfilter.NewScanner(),
		reverse: make(map[fs.FS]thinPath),
		burrows: make(map[thinPath]*burrowResult),
		rapool:  spinner.New(16, 256, cfg.readerPoolSize()),
	}
	if cfg.PrefetchDSN != "" {
		fsys.setupDB(cfg.PrefetchDSN)
		if c, err := prefetchcache.Open(cfg.PrefetchDSN); err == nil {
			fsys.devCache = c
		}
	}
	return fsys
}

// Disks exposes the registry of hardware and loopback block devices that
// explicit mount operations (loopback.go) resolve names against.
func (fsys *FS) Disks() *diskreg.Registry { return fsys.disks }

// Close releases the prefetch cache databases, if any were opened.
func (fsys *FS) Close() error {
	fsys.devCache.Close()
	if fsys.db == nil {
		return nil
	}
	return fsys.db.Close()
}
