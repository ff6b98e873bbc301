//go:build linux

package afpacket

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"

	"firestige.xyz/hoststack/internal/link"
)

// Handle is a frame source and sink bound to one interface.
type Handle struct {
	tp *afpacket.TPacket
}

// Open binds an AF_PACKET socket to cfg.Device. Only IPv4 and ARP frames
// are delivered.
func Open(cfg Config) (*Handle, error) {
	if cfg.Device == "" {
		return nil, errors.New("afpacket: device is required")
	}
	frameSize, blockSize, numBlocks, err := ringSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("afpacket: %w", err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.Timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket: open %s: %w", cfg.Device, err)
	}

	prog, err := compileFilter(cfg.SnapLen)
	if err != nil {
		tp.Close()
		return nil, fmt.Errorf("afpacket: assemble filter: %w", err)
	}
	if err := tp.SetBPF(prog); err != nil {
		tp.Close()
		return nil, fmt.Errorf("afpacket: attach filter: %w", err)
	}
	return &Handle{tp: tp}, nil
}

// ReadPacketData returns the next frame. A poll timeout is reported as
// link.ErrTimeout.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
		return nil, ci, link.ErrTimeout
	}
	return data, ci, err
}

func (h *Handle) WritePacketData(data []byte) error {
	return h.tp.WritePacketData(data)
}

func (h *Handle) Close() error {
	h.tp.Close()
	return nil
}
