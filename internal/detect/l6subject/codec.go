package l6subject

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Kagami/go-face"
)

// encodeDescriptor serializes a 128-dim embedding as a length-prefixed
// float32 array (spec.md §4.6: "embeddings are stored as a
// length-prefixed float32 array").
func encodeDescriptor(d face.Descriptor) []byte {
	buf := make([]byte, 4+4*len(d))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d)))
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(v))
	}
	return buf
}

// decodeDescriptor parses the length-prefixed float32 array back into a
// face.Descriptor. face.Descriptor is a fixed 128-element array; a stored
// count other than 128 is a corrupt record.
func decodeDescriptor(buf []byte) (face.Descriptor, error) {
	var d face.Descriptor
	if len(buf) < 4 {
		return d, fmt.Errorf("l6subject: descriptor blob too short (%d bytes)", len(buf))
	}
	count := int(binary.LittleEndian.Uint32(buf[0:4]))
	if count != len(d) {
		return d, fmt.Errorf("l6subject: descriptor length %d, want %d", count, len(d))
	}
	if len(buf) < 4+4*count {
		return d, fmt.Errorf("l6subject: descriptor blob truncated: have %d bytes, want %d", len(buf), 4+4*count)
	}
	for i := 0; i < count; i++ {
		d[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i]))
	}
	return d, nil
}
