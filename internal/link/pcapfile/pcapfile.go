// Package pcapfile replays Ethernet frames from a pcap file and records
// transmitted frames into one.
package pcapfile

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultSnapLen is the snapshot length written to new capture files.
const DefaultSnapLen = 65536

// Reader is a frame source backed by a pcap stream.
type Reader struct {
	closer io.Closer
	r      *pcapgo.Reader
}

// Open opens the pcap file at path for replay.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap file %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads a pcap stream of Ethernet frames from in.
func NewReader(in io.Reader) (*Reader, error) {
	r, err := pcapgo.NewReader(in)
	if err != nil {
		return nil, err
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %v, want Ethernet", r.LinkType())
	}
	return &Reader{r: r}, nil
}

// ReadPacketData returns the next frame, or io.EOF at the end of the file.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.r.ReadPacketData()
}

func (r *Reader) LinkType() layers.LinkType {
	return r.r.LinkType()
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Writer is a frame sink that appends to a pcap stream.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	w      *pcapgo.Writer
	clock  func() time.Time
}

// Create truncates or creates the pcap file at path for recording.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file %s: %w", path, err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header to %s: %w", path, err)
	}
	w.closer = f
	return w, nil
}

// NewWriter writes a pcap file header for Ethernet frames to out.
func NewWriter(out io.Writer) (*Writer, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(DefaultSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &Writer{w: w, clock: time.Now}, nil
}

// WritePacketData records one frame stamped with the current time.
func (w *Writer) WritePacketData(data []byte) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     w.clock(),
		CaptureLength: len(data),
		Length:        len(data),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.WritePacket(ci, data)
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
