package chart

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest hashes every live point in traversal order. Two charts fed the same
// inserts at the same times produce the same digest. It does not count as a
// query in Stats.
func (c *Chart) Digest() string {
	h := sha256.New()
	var buf [17]byte
	for _, p := range c.collect(c.cfg.Bounds, nil) {
		binary.LittleEndian.PutUint32(buf[0:], uint32(p.X))
		binary.LittleEndian.PutUint32(buf[4:], uint32(p.Y))
		binary.LittleEndian.PutUint64(buf[8:], p.DiscoveredAt)
		buf[16] = 0
		if p.Terrain {
			buf[16] = 1
		}
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
