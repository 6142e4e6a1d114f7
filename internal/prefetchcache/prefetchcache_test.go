// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package prefetchcache

import (
	"path/filepath"
	"testing"
)

func TestDirOrderRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	key := Key("(hd0,msdos1)/some/dir", "dir")
	if _, ok := c.GetDirOrder(key); ok {
		t.Fatalf("expected miss before put")
	}

	c.PutDirOrder(key, []byte("a\nb\nc"))
	got, ok := c.GetDirOrder(key)
	if !ok {
		t.Fatalf("expected hit after put")
	}
	if string(got) != "a\nb\nc" {
		t.Fatalf("got %q", got)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	key := Key("(hd0,msdos1)", "uuid")
	c.PutMeta(key, []byte("1234-5678"))
	got, ok := c.GetMeta(key)
	if !ok || string(got) != "1234-5678" {
		t.Fatalf("got %q, %v", got, ok)
	}
}

func TestNilCacheIsHarmlessMiss(t *testing.T) {
	var c *Cache
	if _, ok := c.GetDirOrder([]byte("x")); ok {
		t.Fatalf("nil cache should always miss")
	}
	c.PutDirOrder([]byte("x"), []byte("y")) // must not panic
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil cache: %v", err)
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("(hd0,msdos1)/x", "dir")
	b := Key("(hd0,msdos1)/x", "dir")
	if string(a) != string(b) {
		t.Fatalf("expected identical keys for identical input")
	}
	c := Key("(hd0,msdos1)/x", "uuid")
	if string(a) == string(c) {
		t.Fatalf("expected distinct discriminators to produce distinct keys")
	}
}
