// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskfilter

import "fmt"

// ErrLDMUnsupported is returned by every LDM probe. Windows Logical Disk
// Manager's on-disk database (the TOC/VMDB/KLOG sequence of private-region
// records) is undocumented; LDM disks are recognized by signature and
// reported unsupported rather than silently misread as something else.
var ErrLDMUnsupported = fmt.Errorf("diskfilter: LDM (Windows Logical Disk Manager) is not supported")

// ProbeLDM always fails; present so the disk-filter registry can list LDM
// as a recognized-but-unsupported format rather than an unknown one.
func ProbeLDM(sig [8]byte) error {
	if sig == [8]byte{'P', 'R', 'I', 'V', 'H', 'E', 'A', 'D'} {
		return ErrLDMUnsupported
	}
	return fmt.Errorf("diskfilter: not an LDM private region")
}
