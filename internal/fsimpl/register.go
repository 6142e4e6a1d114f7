// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fsimpl exists only to pull every filesystem module's init()
// registration into the binary. Each Register call appends to fsreg's
// list, and Probe returns the first match. The calls run during package
// initialization, which Go orders by import path (each package after the
// packages it imports), not by the order of the import block below, so
// that initialization order is the order in which Probe tries the modules.
package fsimpl

import (
	_ "github.com/arcfs/corefs/internal/fsimpl/zip"
	_ "github.com/arcfs/corefs/internal/fsimpl/tarcpio"
	_ "github.com/arcfs/corefs/internal/fsimpl/wim"
	_ "github.com/arcfs/corefs/internal/fsimpl/erofs"
	_ "github.com/arcfs/corefs/internal/fsimpl/squashfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/iso9660"
	_ "github.com/arcfs/corefs/internal/fsimpl/udf"
	_ "github.com/arcfs/corefs/internal/fsimpl/hfsplus"
	_ "github.com/arcfs/corefs/internal/fsimpl/hfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/ext4"
	_ "github.com/arcfs/corefs/internal/fsimpl/btrfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/xfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/ntfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/exfat"
	_ "github.com/arcfs/corefs/internal/fsimpl/fat"
	_ "github.com/arcfs/corefs/internal/fsimpl/cramfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/romfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/zfs"
	_ "github.com/arcfs/corefs/internal/fsimpl/sit"
)
