package ipv4

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/log"
	"firestige.xyz/hoststack/internal/metrics"
)

// Dispatcher hands an upper-layer payload to the handler registered for
// proto. It returns false if no handler is registered.
type Dispatcher interface {
	Deliver(proto core.ProtocolNumber, pkt *buffer.Buffer, src netip.Addr) bool
}

// UnreachableNotifier is told about a valid datagram whose protocol has no
// handler. datagram still starts with its IP header.
type UnreachableNotifier interface {
	ProtocolUnreachable(datagram *buffer.Buffer, src netip.Addr)
}

// Writer transmits one framed datagram towards dst.
type Writer interface {
	WritePacket(pkt *buffer.Buffer, dst netip.Addr) error
}

// Options configure an Engine.
type Options struct {
	LocalAddr netip.Addr
	MTU       int   // link MTU; defaults to core.EthernetMTU
	TTL       uint8 // defaults to DefaultTTL
	AssignIDs bool  // give each datagram a distinct identification

	// Reassembly enables fragment reassembly when non-nil.
	Reassembly *ReassemblyConfig

	Dispatcher  Dispatcher
	Unreachable UnreachableNotifier
	Link        Writer
	LinkName    string // "link" label of LinkErrorsTotal

	Logger log.Logger
	Clock  func() time.Time
}

// Engine is the IPv4 datagram engine of a single interface.
type Engine struct {
	local       netip.Addr
	mtu         int
	maxFragment int
	ttl         uint8
	assignIDs   bool
	nextID      atomic.Uint32

	dispatcher  Dispatcher
	unreachable UnreachableNotifier
	link        Writer
	linkName    string
	reassembler *Reassembler

	logger log.Logger
	clock  func() time.Time
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if !opts.LocalAddr.Is4() {
		return nil, fmt.Errorf("%w: local address %v is not IPv4", core.ErrInvalidAddress, opts.LocalAddr)
	}
	if opts.MTU == 0 {
		opts.MTU = core.EthernetMTU
	}
	if opts.MTU < MinMTU {
		return nil, fmt.Errorf("%w: %d < %d", core.ErrMTUTooSmall, opts.MTU, MinMTU)
	}
	if opts.Dispatcher == nil || opts.Unreachable == nil || opts.Link == nil {
		return nil, fmt.Errorf("%w: engine needs a dispatcher, an unreachable notifier and a link", core.ErrConfigInvalid)
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.LinkName == "" {
		opts.LinkName = "link"
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		local: opts.LocalAddr,
		mtu:   opts.MTU,
		// Offsets travel in 8-byte units, so every fragment but the last
		// must carry a multiple of 8 bytes.
		maxFragment: (opts.MTU - HeaderMinSize) &^ 7,
		ttl:         opts.TTL,
		assignIDs:   opts.AssignIDs,
		dispatcher:  opts.Dispatcher,
		unreachable: opts.Unreachable,
		link:        opts.Link,
		linkName:    opts.LinkName,
		logger:      opts.Logger.WithField("component", "ipv4"),
		clock:       opts.Clock,
	}
	if opts.Reassembly != nil {
		e.reassembler = NewReassembler(*opts.Reassembly)
	}
	return e, nil
}

// LocalAddr returns the interface address.
func (e *Engine) LocalAddr() netip.Addr {
	return e.local
}

// MTU returns the link MTU.
func (e *Engine) MTU() int {
	return e.mtu
}

// MaxFragmentPayload returns the largest payload a single fragment carries.
func (e *Engine) MaxFragmentPayload() int {
	return e.maxFragment
}

// Reassembler returns the fragment reassembler, or nil if disabled.
func (e *Engine) Reassembler() *Reassembler {
	return e.reassembler
}

// Receive validates an inbound datagram and dispatches its payload. Invalid
// or foreign datagrams are dropped without any reply.
func (e *Engine) Receive(pkt *buffer.Buffer, srcMAC net.HardwareAddr) {
	metrics.IPv4ReceivedTotal.Inc()

	if pkt.Len() < HeaderMinSize {
		e.drop(metrics.DropTooShort, pkt, srcMAC)
		return
	}
	h := Header(pkt.Bytes())
	if h.Version() != Version {
		e.drop(metrics.DropBadVersion, pkt, srcMAC)
		return
	}
	hlen := h.HeaderLength()
	total := int(h.TotalLength())
	if hlen < HeaderMinSize || total < hlen || total > pkt.Len() {
		e.drop(metrics.DropBadLength, pkt, srcMAC)
		return
	}
	if !h.IsChecksumValid() {
		e.drop(metrics.DropBadChecksum, pkt, srcMAC)
		return
	}
	if h.DestinationAddress() != e.local {
		e.drop(metrics.DropNotForUs, pkt, srcMAC)
		return
	}

	// Link-layer minimum frame padding.
	if pad := pkt.Len() - total; pad > 0 {
		pkt.RemovePadding(pad)
	}

	if e.reassembler != nil && h.IsFragment() {
		whole, ok := e.reassemble(pkt)
		if !ok {
			return
		}
		pkt = whole
	}

	e.deliver(pkt)
}

// deliver strips the header of a validated datagram and dispatches the
// payload, or reports the protocol unreachable.
func (e *Engine) deliver(pkt *buffer.Buffer) {
	h := Header(pkt.Bytes())
	hlen := h.HeaderLength()
	proto := h.Protocol()
	src := h.SourceAddress()
	firstFragment := h.FragmentOffset() == 0

	pkt.RemoveHeader(hlen)
	if e.dispatcher.Deliver(proto, pkt, src) {
		metrics.IPv4DeliveredTotal.WithLabelValues(proto.String()).Inc()
		return
	}
	pkt.AddHeader(hlen)

	// ICMP errors are never generated for non-initial fragments (RFC 1122 3.2.2).
	if !firstFragment {
		e.drop(metrics.DropFragment, pkt, nil)
		return
	}
	if e.logger.IsDebugEnabled() {
		e.logger.WithFields(map[string]interface{}{
			"src":      src.String(),
			"protocol": proto.String(),
		}).Debug("no handler for protocol, reporting unreachable")
	}
	e.unreachable.ProtocolUnreachable(pkt, src)
}

// reassemble feeds a fragment to the reassembler. Once complete it returns
// the rebuilt datagram under the offset-0 fragment's header, with the
// fragment fields cleared and the length and checksum recomputed.
func (e *Engine) reassemble(pkt *buffer.Buffer) (*buffer.Buffer, bool) {
	h := Header(pkt.Bytes())
	hlen := h.HeaderLength()

	first, payload, done, err := e.reassembler.Reassemble(h, pkt.Bytes()[hlen:], e.clock())
	if err != nil {
		if e.logger.IsTraceEnabled() {
			e.logger.WithError(err).WithField("src", h.SourceAddress().String()).Trace("fragment rejected")
		}
		metrics.IPv4DroppedTotal.WithLabelValues(metrics.DropFragment).Inc()
		return nil, false
	}
	if !done {
		return nil, false
	}
	flen := len(first)
	if flen+len(payload) > MaxTotalSize {
		e.drop(metrics.DropTooLarge, pkt, nil)
		return nil, false
	}

	whole := buffer.New(flen + len(payload))
	b := whole.Bytes()
	copy(b, first)
	copy(b[flen:], payload)
	nh := Header(b)
	nh.SetTotalLength(uint16(len(b)))
	nh.ClearFragment()
	nh.SetChecksum(nh.CalculateChecksum())
	return whole, true
}

func (e *Engine) drop(reason string, pkt *buffer.Buffer, srcMAC net.HardwareAddr) {
	metrics.IPv4DroppedTotal.WithLabelValues(reason).Inc()
	if e.logger.IsTraceEnabled() {
		fields := map[string]interface{}{
			"reason": reason,
			"length": pkt.Len(),
		}
		if srcMAC != nil {
			fields["src_mac"] = srcMAC.String()
		}
		e.logger.WithFields(fields).Trace("datagram dropped")
	}
}

// Send transmits payload to dst as one or more fragments. Send owns payload
// from here on. Delivery is best effort: link failures are logged and
// counted, never returned.
func (e *Engine) Send(payload *buffer.Buffer, dst netip.Addr, proto core.ProtocolNumber) {
	n := payload.Len()
	if n > MaxTotalSize-HeaderMinSize {
		e.logger.WithFields(map[string]interface{}{
			"dst":    dst.String(),
			"length": n,
		}).Warn("payload does not fit in an IPv4 datagram")
		metrics.IPv4DroppedTotal.WithLabelValues(metrics.DropTooLarge).Inc()
		return
	}

	var id uint16
	if e.assignIDs {
		id = uint16(e.nextID.Add(1))
	}
	metrics.IPv4DatagramsSentTotal.Inc()

	if n <= e.maxFragment {
		e.emit(payload, dst, proto, id, false, 0)
		return
	}

	data := payload.Bytes()
	offset := 0
	for n-offset > e.maxFragment {
		frag := buffer.New(e.maxFragment)
		copy(frag.Bytes(), data[offset:offset+e.maxFragment])
		e.emit(frag, dst, proto, id, true, offset)
		offset += e.maxFragment
	}
	last := buffer.New(n - offset)
	copy(last.Bytes(), data[offset:])
	e.emit(last, dst, proto, id, false, offset)
}

// emit prepends a header to one fragment and writes it to the link.
func (e *Engine) emit(frag *buffer.Buffer, dst netip.Addr, proto core.ProtocolNumber, id uint16, more bool, offset int) {
	h := Header(frag.AddHeader(HeaderMinSize))
	h.Encode(&Fields{
		TotalLength:    uint16(frag.Len()),
		ID:             id,
		MoreFragments:  more,
		FragmentOffset: uint16(offset),
		TTL:            e.ttl,
		Protocol:       proto,
		SrcAddr:        e.local,
		DstAddr:        dst,
	})

	metrics.IPv4FragmentsSentTotal.Inc()
	if err := e.link.WritePacket(frag, dst); err != nil {
		metrics.LinkErrorsTotal.WithLabelValues(e.linkName).Inc()
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"dst":    dst.String(),
			"offset": offset,
		}).Warn("link write failed")
	}
}
