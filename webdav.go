// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"net/http"

	"golang.org/x/net/webdav"

	"github.com/arcfs/corefs/internal/webdavadapter"
	"github.com/arcfs/corefs/internal/webdavfs"
)

// WebDAV returns a WebDAV handler over the composite filesystem, the
// second public surface next to the io/fs one. Writes are rejected with
// fs.ErrPermission by the adapter; locks are emulated in memory because
// some clients refuse to talk to a server with no LOCK support at all.
func (fsys *FS) WebDAV() http.Handler {
	return &webdav.Handler{
		FileSystem: &webdavadapter.FileSystem{Inner: fsys},
		LockSystem: webdav.NewMemLS(),
	}
}

// WebDAVLite returns the minimal read-only handler (OPTIONS, GET/HEAD,
// PROPFIND only, no lock emulation). It speaks just enough of the
// protocol for Finder and Explorer to browse, and avoids the per-request
// allocation overhead of the full handler.
func (fsys *FS) WebDAVLite() http.Handler {
	return &webdavfs.Handler{FS: fsys}
}
