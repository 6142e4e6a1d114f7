// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"io/fs"
	"sync"

	"github.com/arcfs/corefs/internal/internpath"
)

// Special marks a mountpoint sibling in a directory listing and separates
// an outer path from the archive mounted beneath it, e.g.
// "photos.zip◆/img001.jpg". It must never occur in a real filename on any
// supported host.
const Special = "◆"

// fsysGenerator defers the (possibly expensive: decompression, a SQLite
// probe, a superblock parse) work of actually mounting a recognized
// archive until a caller needs more than a yes/no answer.
type fsysGenerator func() (fs.FS, error)

// burrowResult memoises one mountpoint's probe and, lazily, its mount.
// recognized and mounted are each settled exactly once, so concurrent
// readdir goroutines probing the same file (see readdir.go's
// cookedReadDir) share one decompression instead of racing to redo it.
type burrowResult struct {
	probeOnce  sync.Once
	gen        fsysGenerator
	probeErr   error
	recognized bool

	mountOnce sync.Once
	mounted   path
	mountErr  error
}

// getArchive answers whether o names a recognized archive, disk image, or
// compressed stream, and if so a path rooted at its mounted contents.
//
// cache controls whether the result is memoised in o.container's burrow
// table, keyed by o's thinPath; callers that visit the same mountpoint
// repeatedly (directory listing, path resolution) should pass true. waitFull
// controls whether the archive is actually mounted now; callers that only
// need the yes/no answer (a directory listing deciding whether to inject a
// mountpoint sibling) can pass false and skip the mount.
func (o path) getArchive(cache bool, waitFull bool) (bool, path, error) {
	thin := o.Thin()

	var br *burrowResult
	if cache {
		o.container.bMu.Lock()
		br = o.container.burrows[thin]
		if br == nil {
			br = &burrowResult{}
			o.container.burrows[thin] = br
		}
		o.container.bMu.Unlock()
	} else {
		br = &burrowResult{}
	}

	br.probeOnce.Do(func() {
		gen, err := o.probeArchive()
		br.gen, br.probeErr = gen, err
		br.recognized = gen != nil && err == nil
	})

	if !br.recognized {
		return false, path{}, br.probeErr
	}
	if !waitFull {
		return true, path{}, nil
	}

	br.mountOnce.Do(func() {
		fsys, err := br.gen()
		if err != nil {
			br.mountErr = err
			return
		}
		br.mounted = path{container: o.container, fsys: fsys, name: internpath.Path{}}
		o.container.rMu.Lock()
		o.container.reverse[fsys] = thin
		o.container.rMu.Unlock()
	})
	if br.mountErr != nil {
		return true, path{}, br.mountErr
	}
	return true, br.mounted, nil
}
