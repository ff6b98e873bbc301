// Package channel provides a link endpoint that stores outbound packets in a
// channel and allows injection of inbound packets.
package channel

import (
	"net"
	"net/netip"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/link"
)

// PacketInfo holds an outbound datagram and its destination.
type PacketInfo struct {
	Data []byte
	Dst  netip.Addr
}

// Endpoint is a link endpoint that queues outbound packets on C.
type Endpoint struct {
	dispatcher link.Dispatcher
	mtu        int

	// C is where outbound packets are queued. Packets are dropped when it
	// is full.
	C chan PacketInfo
}

// New creates a new channel endpoint.
func New(size int, mtu int) *Endpoint {
	return &Endpoint{
		C:   make(chan PacketInfo, size),
		mtu: mtu,
	}
}

// Drain removes all outbound packets from the channel and counts them.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		select {
		case <-e.C:
			c++
		default:
			return c
		}
	}
}

// InjectInbound delivers pkt to the attached dispatcher as if received from
// remote.
func (e *Endpoint) InjectInbound(pkt *buffer.Buffer, remote net.HardwareAddr) {
	e.dispatcher.DeliverNetworkPacket(pkt, remote)
}

// Attach saves the dispatcher for use when packets are injected.
func (e *Endpoint) Attach(dispatcher link.Dispatcher) {
	e.dispatcher = dispatcher
}

// IsAttached reports whether a dispatcher is attached.
func (e *Endpoint) IsAttached() bool {
	return e.dispatcher != nil
}

func (e *Endpoint) MTU() int {
	return e.mtu
}

// WritePacket copies pkt into the channel.
func (e *Endpoint) WritePacket(pkt *buffer.Buffer, dst netip.Addr) error {
	p := PacketInfo{
		Data: append([]byte(nil), pkt.Bytes()...),
		Dst:  dst,
	}

	select {
	case e.C <- p:
	default:
	}
	return nil
}
