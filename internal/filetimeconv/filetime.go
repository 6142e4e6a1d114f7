// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package filetimeconv converts Windows FILETIME values (64-bit, 100-ns
// units since 1601-01-01 00:00:00 UTC) to and from time.Time. FILETIME
// backs NTFS, USN journal, and WIM timestamps.
package filetimeconv

import "time"

// epoch is 1601-01-01 00:00:00 UTC, the FILETIME zero point.
var epoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

const hundredNanosPerSecond = 10_000_000

// ToTime converts a 100-ns-since-1601 FILETIME value to a time.Time.
//
// Walking centuries, years, and months by hand with the Gregorian
// leap-year rule is the classic way to break a FILETIME down; time.Time's
// own calendar arithmetic implements the same proleptic Gregorian rule
// correctly across this range, so it is used directly instead.
func ToTime(ft uint64) time.Time {
	sec := int64(ft / hundredNanosPerSecond)
	nsec := int64(ft%hundredNanosPerSecond) * 100
	return time.Unix(epoch.Unix()+sec, nsec).UTC()
}

// FromTime converts a time.Time back to a FILETIME value. Instants before
// the FILETIME epoch saturate to 0.
func FromTime(t time.Time) uint64 {
	sec := t.Unix() - epoch.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)*hundredNanosPerSecond + uint64(t.Nanosecond()/100)
}
