// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package prefetchcache factors out prefetch.go's database/sql +
// modernc.org/sqlite directory-order cache to the device-path vocabulary:
// it stores directory-listing order and small per-mount metadata (uuid,
// label, mtime) so that repeat fs_dir calls against a slow archive
// backend (a remote loopback, a deeply nested zip-in-zip) are cheap on
// the second pass.
package prefetchcache

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"
)

const (
	queryDirGet = iota
	queryDirPut
	queryMetaGet
	queryMetaPut
	nQuery
)

var queriesToCompile = [...]string{
	queryDirGet:  `SELECT names FROM dircache WHERE id = ?;`,
	queryDirPut:  `INSERT OR REPLACE INTO dircache (id, names) VALUES (?, ?);`,
	queryMetaGet: `SELECT value FROM metacache WHERE id = ?;`,
	queryMetaPut: `INSERT OR REPLACE INTO metacache (id, value) VALUES (?, ?);`,
}

// Cache is a task-local handle on the sqlite-backed directory/metadata
// cache. A nil *Cache is valid and makes every method a no-op miss, so
// callers can wire prefetchcache unconditionally and skip it only when no
// dsn was configured.
type Cache struct {
	mu  sync.RWMutex
	db  *sql.DB
	stmts [nQuery]*sql.Stmt
}

// Open opens (creating if absent) the sqlite database at dsn and prepares
// the cache's schema, mirroring prefetch.go's setupDB: WAL journaling,
// synchronous=off, and a single open connection (sqlite's writer
// serializes regardless, and prefetch.go's bigmu equivalent is this
// Cache's own mutex).
func Open(dsn string) (*Cache, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = OFF;
	CREATE TABLE IF NOT EXISTS dircache (
		id BLOB PRIMARY KEY,
		names BLOB
	) WITHOUT ROWID;
	CREATE TABLE IF NOT EXISTS metacache (
		id BLOB PRIMARY KEY,
		value BLOB
	) WITHOUT ROWID;
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db}
	for i, q := range queriesToCompile {
		stmt, err := db.Prepare(q)
		if err != nil {
			db.Close()
			return nil, err
		}
		c.stmts[i] = stmt
	}
	return c, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key hashes a device path plus a discriminator (e.g. "dir", "uuid",
// "label") into a cache key the way prefetch.go's dbkey/onekey hash a
// burrow chain: xxhash of the path is cheap and collision-unlikely enough
// for a local cache whose worst failure mode is a wasted re-probe, not
// data corruption (every value is reproducible from the source disk).
func Key(devicePath string, discriminator string) []byte {
	h := xxhash.New()
	h.WriteString(devicePath)
	h.Write([]byte{0})
	h.WriteString(discriminator)
	sum := h.Sum(nil)
	return sum
}

// PutDirOrder caches the directory-iteration order (a newline-joined name
// list) for the directory identified by key.
func (c *Cache) PutDirOrder(key []byte, names []byte) {
	if c == nil || c.db == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts[queryDirPut].Exec(key, names)
}

// GetDirOrder returns the cached directory order for key, or (nil, false)
// on a miss.
func (c *Cache) GetDirOrder(key []byte) ([]byte, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []byte
	err := c.stmts[queryDirGet].QueryRow(key).Scan(&names)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return names, true
}

// PutMeta caches a small metadata value (uuid, label, a marshalled mtime)
// under key.
func (c *Cache) PutMeta(key []byte, value []byte) {
	if c == nil || c.db == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts[queryMetaPut].Exec(key, value)
}

// GetMeta returns the cached metadata value for key, or (nil, false) on a
// miss.
func (c *Cache) GetMeta(key []byte) ([]byte, bool) {
	if c == nil || c.db == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var value []byte
	err := c.stmts[queryMetaGet].QueryRow(key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return value, true
}
