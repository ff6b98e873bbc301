// Package sniffer provides a link endpoint that wraps another endpoint and
// logs inbound and outbound datagrams.
package sniffer

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/link"
	"firestige.xyz/hoststack/internal/log"
)

type endpoint struct {
	dispatcher link.Dispatcher
	lower      link.Endpoint
	logger     log.Logger
}

// New wraps lower. Datagrams are logged at debug level.
func New(lower link.Endpoint, logger log.Logger) link.Endpoint {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &endpoint{
		lower:  lower,
		logger: logger.WithField("component", "sniffer"),
	}
}

// DeliverNetworkPacket logs pkt and forwards it to the real dispatcher.
func (e *endpoint) DeliverNetworkPacket(pkt *buffer.Buffer, src net.HardwareAddr) {
	e.logPacket("recv", pkt.Bytes())
	e.dispatcher.DeliverNetworkPacket(pkt, src)
}

// Attach saves the dispatcher and registers with the lower endpoint so that
// e sees inbound packets first.
func (e *endpoint) Attach(d link.Dispatcher) {
	e.dispatcher = d
	e.lower.Attach(e)
}

func (e *endpoint) MTU() int {
	return e.lower.MTU()
}

func (e *endpoint) WritePacket(pkt *buffer.Buffer, dst netip.Addr) error {
	e.logPacket("send", pkt.Bytes())
	return e.lower.WritePacket(pkt, dst)
}

func (e *endpoint) logPacket(dir string, b []byte) {
	if !e.logger.IsDebugEnabled() {
		return
	}
	e.logger.WithFields(Describe(dir, b)).Debug("packet")
}

// Describe decodes an IPv4 datagram into log fields.
func Describe(dir string, b []byte) map[string]interface{} {
	fields := map[string]interface{}{
		"dir":    dir,
		"length": len(b),
	}

	p := gopacket.NewPacket(b, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ip, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		fields["error"] = "not ipv4"
		return fields
	}
	fields["src"] = ip.SrcIP.String()
	fields["dst"] = ip.DstIP.String()
	fields["proto"] = ip.Protocol.String()
	fields["id"] = ip.Id
	if ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0 {
		fields["frag_offset"] = int(ip.FragOffset) * 8
		fields["more_fragments"] = ip.Flags&layers.IPv4MoreFragments != 0
		return fields
	}

	if icmp, ok := p.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); ok {
		fields["icmp"] = icmp.TypeCode.String()
		fields["icmp_id"] = icmp.Id
		fields["icmp_seq"] = icmp.Seq
	}
	return fields
}
