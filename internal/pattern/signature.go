package pattern

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mzanolli/nesrom/internal/apu"
)

// cellSignature content-addresses a run of frame cells. Bucket identity
// is load-bearing for compression correctness, so sha256 is used rather
// than a fast non-cryptographic hash.
func cellSignature(cells []apu.Cell) string {
	h := sha256.New()
	buf := make([]byte, 16)
	for _, c := range cells {
		buf[0] = c.Note
		buf[1] = boolByte(c.Silent)
		buf[2] = c.Volume
		binary.LittleEndian.PutUint16(buf[3:5], c.Timer)
		buf[5] = c.ControlByte
		buf[6] = boolByte(c.Retrigger)
		binary.LittleEndian.PutUint32(buf[7:11], uint32(int32(c.SampleIndex)))
		h.Write(buf[:11])
	}
	return string(h.Sum(nil))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
