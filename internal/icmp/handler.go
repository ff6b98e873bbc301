package icmp

import (
	"net/netip"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/ipv4"
	"firestige.xyz/hoststack/internal/log"
	"firestige.xyz/hoststack/internal/metrics"
)

// unreachableQuote is how much of the offending payload an unreachable
// message carries after the original header.
const unreachableQuote = 8

// Sender transmits an ICMP message inside an IP datagram.
type Sender interface {
	Send(payload *buffer.Buffer, dst netip.Addr, proto core.ProtocolNumber)
}

// Handler answers echo requests and reports unreachable destinations.
type Handler struct {
	sender Sender
	logger log.Logger
}

func NewHandler(sender Sender, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Handler{
		sender: sender,
		logger: logger.WithField("component", "icmp"),
	}
}

// HandlePacket processes an inbound ICMP message from src. Only echo
// requests produce a response.
func (h *Handler) HandlePacket(pkt *buffer.Buffer, src netip.Addr) {
	if pkt.Len() < HeaderSize {
		metrics.IPv4DroppedTotal.WithLabelValues(metrics.DropICMPTooShort).Inc()
		if h.logger.IsTraceEnabled() {
			h.logger.WithFields(map[string]interface{}{
				"src":    src.String(),
				"length": pkt.Len(),
			}).Trace("icmp message too short")
		}
		return
	}

	msg := Message(pkt.Bytes())
	switch msg.Type() {
	case TypeEcho:
		h.echoReply(msg, src)
	default:
		if h.logger.IsTraceEnabled() {
			h.logger.WithFields(map[string]interface{}{
				"src":  src.String(),
				"type": msg.Type().String(),
			}).Trace("icmp message ignored")
		}
	}
}

// echoReply sends req back to src as an echo reply. Identifier, sequence
// and data are carried over unchanged.
func (h *Handler) echoReply(req Message, src netip.Addr) {
	out := buffer.New(len(req))
	reply := Message(out.Bytes())
	copy(reply, req)
	reply.SetType(TypeEchoReply)
	reply.SetCode(0)
	reply.SetChecksum(reply.CalculateChecksum())

	if h.logger.IsDebugEnabled() {
		h.logger.WithFields(map[string]interface{}{
			"dst": src.String(),
			"id":  reply.Ident(),
			"seq": reply.Sequence(),
		}).Debug("echo reply")
	}
	metrics.ICMPSentTotal.WithLabelValues(TypeEchoReply.String()).Inc()
	h.sender.Send(out, src, core.ProtocolICMP)
}

// SendUnreachable reports datagram as undeliverable to dst. datagram starts
// with its IP header; the message quotes that header and the first 8 bytes
// of its payload.
func (h *Handler) SendUnreachable(datagram *buffer.Buffer, dst netip.Addr, code Code) {
	orig := datagram.Bytes()
	if len(orig) < ipv4.HeaderMinSize {
		return
	}
	quote := ipv4.Header(orig).HeaderLength() + unreachableQuote
	if quote > len(orig) {
		quote = len(orig)
	}

	out := buffer.New(HeaderSize + quote)
	msg := Message(out.Bytes())
	msg.SetType(TypeDestinationUnreachable)
	msg.SetCode(code)
	copy(msg.Payload(), orig[:quote])
	msg.SetChecksum(msg.CalculateChecksum())

	if h.logger.IsDebugEnabled() {
		h.logger.WithFields(map[string]interface{}{
			"dst":  dst.String(),
			"code": int(code),
		}).Debug("destination unreachable")
	}
	metrics.ICMPSentTotal.WithLabelValues(TypeDestinationUnreachable.String()).Inc()
	h.sender.Send(out, dst, core.ProtocolICMP)
}
