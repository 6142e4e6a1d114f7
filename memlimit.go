// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package corefs

import (
	"math"
	"os"
	"strconv"
)

// memLimit bounds how much memory a single whole-file decompression by a
// filefilter rule (filefilter.Rule.Wrap) may use, guarding against a
// compression-bomb archive member; New copies it into
// filefilter.MaxDecodedSize. It is read once at process start from
// COREFS_MEMLIMIT_GB, a number of gigabytes.
var memLimit int64 = calcMemLimit()

func calcMemLimit() int64 {
	if e := os.Getenv("COREFS_MEMLIMIT_GB"); e != "" {
		f, err := strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			panic("malformed COREFS_MEMLIMIT_GB environment variable, should be a number of gigabytes: " + e)
		}
		return int64(f * 1024 * 1024 * 1024)
	}
	return 1024 * 1024 * 1024 // fall back on 1GiB
}
