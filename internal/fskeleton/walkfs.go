// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fskeleton

import (
	"cmp"
	"fmt"
	"io/fs"
	"iter"
	"slices"
)

// Walk yields every name in the filesystem with its bare type mode: the
// root first, then entries in creation order while the FS is still being
// populated, settling to id order once NoMore has been called (ids are
// usually on-disk offsets, so this is disk order — what a prefetcher
// wants). waitFull keeps the sequence open until the FS is complete;
// false stops at the current snapshot.
func (fsys *FS) Walk(waitFull bool) iter.Seq2[fmt.Stringer, fs.FileMode] {
	return func(yield func(fmt.Stringer, fs.FileMode) bool) {
		fsys.mu.Lock()
		if fsys.done {
			order := make([]uint32, len(fsys.files))
			for i := range order {
				order[i] = uint32(i)
			}
			slices.SortStableFunc(order[1:], func(a, b uint32) int {
				return cmp.Compare(fsys.files[a].id, fsys.files[b].id)
			})
			files := fsys.files
			fsys.mu.Unlock()
			for _, i := range order {
				if !yield(files[i].name, files[i].mode.StdlibType()) {
					return
				}
			}
			return
		}

		i := 0
		for {
			for i < len(fsys.files) {
				name, m := fsys.files[i].name, fsys.files[i].mode.StdlibType()
				i++
				fsys.mu.Unlock()
				if !yield(name, m) {
					return
				}
				fsys.mu.Lock()
			}
			if fsys.done || !waitFull {
				break
			}
			fsys.cond.Wait()
		}
		fsys.mu.Unlock()
	}
}
