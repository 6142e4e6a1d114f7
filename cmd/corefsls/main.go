// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command corefsls is a thin demonstration CLI over the corefs package: it
// walks a directory tree, burrowing into any archive or disk image it
// recognizes along the way, and prints what it finds. It is not a mount
// utility or a GUI, just enough to exercise the library end to end.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/arcfs/corefs"
)

func main() {
	prefetch := flag.Bool("prefetch", false, "eagerly probe every file for burrowable archives before listing")
	dump := flag.Bool("dump", false, "print full metadata (and AppleDouble detail) instead of the terse listing")
	cacheDSN := flag.String("cache", "", "sqlite DSN for the byte-range prefetch cache (empty disables it)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: corefsls [-prefetch] [-cache dsn] <directory>")
		os.Exit(2)
	}
	root := flag.Arg(0)

	fsys := corefs.New(os.DirFS(root), corefs.Config{PrefetchDSN: *cacheDSN})
	defer fsys.Close()

	if *prefetch {
		fsys.Prefetch()
	}

	if *dump {
		corefs.Dump(fsys)
		return
	}

	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			return nil
		}
		fmt.Printf("%s\t%v\t%d\n", name, info.Mode(), info.Size())
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
