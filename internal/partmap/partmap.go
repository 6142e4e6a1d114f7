// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package partmap implements the partition-map layer (component B of the
// core's layering): parsers that turn a raw Disk's byte stream into a list
// of Partition slices, in the manner of internal/apm for
// Apple Partition Map, generalized to MBR, GPT, BSD disklabel, SunOS VTOC,
// and SGI/DVH volume headers.
package partmap

import (
	"github.com/arcfs/corefs/internal/blockio"
)

// Map is a recognized partition scheme: Probe inspects a disk's opening
// bytes and, if it matches, returns the ordered partition list.
type Map interface {
	Name() string
	Probe(d blockio.Disk) ([]*blockio.Partition, error)
}

// Probers is the build-time registry of partition-map formats, probed in
// this order (most specific signature first, broad/legacy formats last).
var Probers = []Map{
	gptMap{},
	mbrMap{},
	apmMap{},
	bsdlabelMap{},
	sunMap{},
	dvhMap{},
}

// ProbeAll tries each registered Map in turn and returns the first match.
func ProbeAll(d blockio.Disk) (Map, []*blockio.Partition, error) {
	for _, m := range Probers {
		parts, err := m.Probe(d)
		if err == nil && parts != nil {
			return m, parts, nil
		}
	}
	return nil, nil, nil
}
