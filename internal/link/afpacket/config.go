// Package afpacket reads and writes Ethernet frames on a live Linux
// interface through an AF_PACKET ring.
package afpacket

import "time"

// Config configures a Handle.
type Config struct {
	Device       string
	SnapLen      int
	BufferSizeMB int
	Timeout      time.Duration // poll timeout; ReadPacketData reports link.ErrTimeout when it expires
}
