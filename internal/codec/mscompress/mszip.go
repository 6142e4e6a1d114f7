// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package mscompress

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
)

// mszipSignature opens every MSZIP block: "CK", followed by a raw
// DEFLATE stream.
var mszipSignature = []byte{'C', 'K'}

// DecodeMSZIP decodes one MSZIP block. history is the decoded content of
// the preceding block in the same folder (MSZIP blocks chain their
// DEFLATE dictionaries), or nil for the first block.
func DecodeMSZIP(src, history []byte) ([]byte, error) {
	if !bytes.HasPrefix(src, mszipSignature) {
		return nil, errors.New("mscompress: missing MSZIP block signature")
	}
	var fr io.ReadCloser
	if len(history) > 0 {
		fr = flate.NewReaderDict(bytes.NewReader(src[2:]), history)
	} else {
		fr = flate.NewReader(bytes.NewReader(src[2:]))
	}
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("mscompress: MSZIP block: %w", err)
	}
	return out, nil
}
