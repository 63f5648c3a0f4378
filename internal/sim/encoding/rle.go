package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMaskLength = errors.New("mask length mismatch")

// EncodeMask run-length encodes a collision mask into base64(varint runs).
// Runs alternate water, land, water, ... starting with water, so a mask that
// begins with land starts with a zero-length run.
func EncodeMask(mask []bool) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	cur := false
	i := 0
	for i < len(mask) {
		run := 0
		for i+run < len(mask) && mask[i+run] == cur {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
		cur = !cur
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeMask reverses EncodeMask. cells is the expected mask length; runs
// that overshoot or fall short of it are rejected.
func DecodeMask(b64 string, cells int) ([]bool, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]bool, 0, cells)
	cur := false
	for i := 0; i < len(raw); {
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if run > uint64(cells-len(out)) {
			return nil, fmt.Errorf("%w: run of %d overflows %d cells", ErrMaskLength, run, cells)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, cur)
		}
		cur = !cur
	}
	if len(out) != cells {
		return nil, fmt.Errorf("%w: decoded %d of %d cells", ErrMaskLength, len(out), cells)
	}
	return out, nil
}
