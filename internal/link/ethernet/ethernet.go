// Package ethernet implements an Ethernet II link endpoint with ARP address
// resolution on top of any raw frame source and sink.
package ethernet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/link"
	"firestige.xyz/hoststack/internal/log"
	"firestige.xyz/hoststack/internal/metrics"
)

const (
	// DefaultARPTimeout is how long a resolved address stays cached.
	DefaultARPTimeout = 60 * time.Second

	// requestInterval limits ARP requests for the same address.
	requestInterval = time.Second
)

var (
	broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	zeroMAC      = net.HardwareAddr{0, 0, 0, 0, 0, 0}
)

// Options configure an Endpoint.
type Options struct {
	Interface  core.Interface
	ARPTimeout time.Duration
	Name       string // "link" label of LinkErrorsTotal for errors WritePacket cannot return
	Logger     log.Logger
	Clock      func() time.Time
}

type arpEntry struct {
	mac     net.HardwareAddr
	expires time.Time
}

type pendingPacket struct {
	data      []byte
	requested time.Time
}

// Endpoint frames IPv4 datagrams for Ethernet and resolves next-hop
// addresses with ARP.
type Endpoint struct {
	sink       link.FrameSink
	addr       netip.Addr
	mac        net.HardwareAddr
	mtu        int
	arpTimeout time.Duration
	name       string
	logger     log.Logger
	clock      func() time.Time

	dispatcher link.Dispatcher

	mu      sync.Mutex
	cache   map[netip.Addr]arpEntry
	pending map[netip.Addr]pendingPacket

	writeMu sync.Mutex
}

// New creates an endpoint transmitting through sink.
func New(sink link.FrameSink, opts Options) (*Endpoint, error) {
	iface := opts.Interface
	if !iface.Addr.Is4() {
		return nil, fmt.Errorf("%w: interface address %v is not IPv4", core.ErrInvalidAddress, iface.Addr)
	}
	if len(iface.MAC) != 6 {
		return nil, fmt.Errorf("%w: interface MAC %v is not a 48-bit address", core.ErrInvalidAddress, iface.MAC)
	}
	if iface.MTU == 0 {
		iface.MTU = core.EthernetMTU
	}
	if opts.ARPTimeout <= 0 {
		opts.ARPTimeout = DefaultARPTimeout
	}
	if opts.Name == "" {
		opts.Name = "ethernet"
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Endpoint{
		sink:       sink,
		addr:       iface.Addr,
		mac:        iface.MAC,
		mtu:        iface.MTU,
		arpTimeout: opts.ARPTimeout,
		name:       opts.Name,
		logger:     opts.Logger.WithField("component", "ethernet"),
		clock:      opts.Clock,
		cache:      make(map[netip.Addr]arpEntry),
		pending:    make(map[netip.Addr]pendingPacket),
	}, nil
}

func (e *Endpoint) MTU() int {
	return e.mtu
}

func (e *Endpoint) Attach(d link.Dispatcher) {
	e.dispatcher = d
}

// WritePacket sends pkt to the MAC address cached for dst. If dst is not
// resolved yet, pkt replaces any packet already waiting for dst and an ARP
// request is broadcast unless one was sent within the last second.
func (e *Endpoint) WritePacket(pkt *buffer.Buffer, dst netip.Addr) error {
	if dst == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return e.writeFrame(broadcastMAC, layers.EthernetTypeIPv4, gopacket.Payload(pkt.Bytes()))
	}

	now := e.clock()
	e.mu.Lock()
	if mac, ok := e.lookupLocked(dst, now); ok {
		e.mu.Unlock()
		return e.writeFrame(mac, layers.EthernetTypeIPv4, gopacket.Payload(pkt.Bytes()))
	}

	p, waiting := e.pending[dst]
	request := !waiting || now.Sub(p.requested) >= requestInterval
	p.data = append([]byte(nil), pkt.Bytes()...)
	if request {
		p.requested = now
	}
	e.pending[dst] = p
	e.mu.Unlock()

	if !request {
		return nil
	}
	return e.sendARP(layers.ARPRequest, broadcastMAC, zeroMAC, dst)
}

// lookupLocked returns the cached MAC for addr, dropping it if expired.
func (e *Endpoint) lookupLocked(addr netip.Addr, now time.Time) (net.HardwareAddr, bool) {
	entry, ok := e.cache[addr]
	if !ok {
		return nil, false
	}
	if now.After(entry.expires) {
		delete(e.cache, addr)
		metrics.ARPCacheEntries.Set(float64(len(e.cache)))
		return nil, false
	}
	return entry.mac, true
}

// sweepLocked drops every expired entry.
func (e *Endpoint) sweepLocked(now time.Time) {
	for addr, entry := range e.cache {
		if now.After(entry.expires) {
			delete(e.cache, addr)
		}
	}
	metrics.ARPCacheEntries.Set(float64(len(e.cache)))
}

// Len returns the number of cached entries, expired ones included until
// the next sweep.
func (e *Endpoint) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// Lookup returns the cached MAC address for addr.
func (e *Endpoint) Lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookupLocked(addr, e.clock())
}

// Serve reads frames from src and processes each one to completion until
// src is exhausted or ctx is done.
func (e *Endpoint) Serve(ctx context.Context, src link.FrameSource) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, _, err := src.ReadPacketData()
		switch {
		case err == nil:
			e.HandleFrame(data)
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, link.ErrTimeout):
		default:
			return fmt.Errorf("read frame: %w", err)
		}
	}
}

// HandleFrame processes one inbound Ethernet frame.
func (e *Endpoint) HandleFrame(frame []byte) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		e.trace("undecodable frame", err)
		return
	}
	if !bytes.Equal(eth.DstMAC, e.mac) && !bytes.Equal(eth.DstMAC, broadcastMAC) {
		return
	}

	switch eth.EthernetType {
	case layers.EthernetTypeIPv4:
		if e.dispatcher != nil {
			e.dispatcher.DeliverNetworkPacket(buffer.From(eth.Payload), eth.SrcMAC)
		}
	case layers.EthernetTypeARP:
		var arp layers.ARP
		if err := arp.DecodeFromBytes(eth.Payload, gopacket.NilDecodeFeedback); err != nil {
			e.trace("undecodable arp", err)
			return
		}
		e.handleARP(&arp)
	}
}

func (e *Endpoint) handleARP(arp *layers.ARP) {
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return
	}
	sender := netip.AddrFrom4([4]byte(arp.SourceProtAddress))
	target := netip.AddrFrom4([4]byte(arp.DstProtAddress))
	senderMAC := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))

	forUs := target == e.addr
	if sender.IsUnspecified() {
		// Address probe (RFC 5227), nothing to learn.
		return
	}

	// RFC 826: refresh a known sender; learn a new one only if the packet
	// is aimed at us or we are waiting to resolve it.
	now := e.clock()
	e.mu.Lock()
	_, known := e.cache[sender]
	p, waiting := e.pending[sender]
	learn := known || forUs || waiting
	if learn {
		if !known {
			e.sweepLocked(now)
		}
		e.cache[sender] = arpEntry{mac: senderMAC, expires: now.Add(e.arpTimeout)}
		metrics.ARPCacheEntries.Set(float64(len(e.cache)))
		delete(e.pending, sender)
	}
	e.mu.Unlock()

	if !learn {
		return
	}
	if e.logger.IsDebugEnabled() {
		e.logger.WithFields(map[string]interface{}{
			"ip":  sender.String(),
			"mac": senderMAC.String(),
		}).Debug("arp entry learned")
	}

	if waiting {
		if err := e.writeFrame(senderMAC, layers.EthernetTypeIPv4, gopacket.Payload(p.data)); err != nil {
			metrics.LinkErrorsTotal.WithLabelValues(e.name).Inc()
			e.logger.WithError(err).WithField("dst", sender.String()).Warn("flush pending packet failed")
		}
	}

	if arp.Operation == layers.ARPRequest && forUs {
		if err := e.sendARP(layers.ARPReply, senderMAC, senderMAC, sender); err != nil {
			metrics.LinkErrorsTotal.WithLabelValues(e.name).Inc()
			e.logger.WithError(err).WithField("dst", sender.String()).Warn("arp reply failed")
		}
	}
}

// sendARP sends an ARP message for target to dstMAC.
func (e *Endpoint) sendARP(op uint16, dstMAC, targetMAC net.HardwareAddr, target netip.Addr) error {
	local := e.addr.As4()
	tpa := target.As4()
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   e.mac,
		SourceProtAddress: local[:],
		DstHwAddress:      targetMAC,
		DstProtAddress:    tpa[:],
	}
	return e.writeFrame(dstMAC, layers.EthernetTypeARP, arp)
}

// writeFrame serializes an Ethernet II frame around payload. Short frames
// are padded to the 60-byte minimum.
func (e *Endpoint) writeFrame(dstMAC net.HardwareAddr, typ layers.EthernetType, payload gopacket.SerializableLayer) error {
	eth := &layers.Ethernet{
		SrcMAC:       e.mac,
		DstMAC:       dstMAC,
		EthernetType: typ,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, payload); err != nil {
		return fmt.Errorf("serialize frame: %w", err)
	}

	e.writeMu.Lock()
	err := e.sink.WritePacketData(buf.Bytes())
	e.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (e *Endpoint) trace(msg string, err error) {
	if e.logger.IsTraceEnabled() {
		e.logger.WithError(err).Trace(msg)
	}
}
