//go:build !linux

package afpacket

import (
	"errors"

	"github.com/google/gopacket"
)

// ErrUnsupported is returned by Open on platforms without AF_PACKET.
var ErrUnsupported = errors.New("afpacket: only supported on linux")

// Handle is unavailable on this platform.
type Handle struct{}

// Open always fails on this platform.
func Open(cfg Config) (*Handle, error) {
	return nil, ErrUnsupported
}

func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, ErrUnsupported
}

func (h *Handle) WritePacketData(data []byte) error {
	return ErrUnsupported
}

func (h *Handle) Close() error {
	return nil
}
