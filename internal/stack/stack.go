// Package stack assembles a single-interface host IP stack: the IPv4
// engine, the ICMP handler, the protocol registry and a link endpoint.
package stack

import (
	"context"
	"net"
	"net/netip"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/icmp"
	"firestige.xyz/hoststack/internal/ipv4"
	"firestige.xyz/hoststack/internal/link"
	"firestige.xyz/hoststack/internal/log"
)

// Options configure a Stack.
type Options struct {
	Interface  core.Interface
	TTL        uint8
	AssignIDs  bool
	Reassembly *ipv4.ReassemblyConfig
	LinkName   string
	Logger     log.Logger
}

// Stack owns the protocol registry and wires inbound link packets through
// the IPv4 engine to protocol handlers.
type Stack struct {
	iface    core.Interface
	registry *Registry
	engine   *ipv4.Engine
	icmp     *icmp.Handler
	link     link.Endpoint
	logger   log.Logger
}

// New builds a stack on ep and registers ICMP. The interface MTU is capped
// by the endpoint's.
func New(ep link.Endpoint, opts Options) (*Stack, error) {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	mtu := opts.Interface.MTU
	if mtu == 0 || mtu > ep.MTU() {
		mtu = ep.MTU()
	}

	s := &Stack{
		iface:    opts.Interface,
		registry: NewRegistry(),
		link:     ep,
		logger:   opts.Logger,
	}
	s.iface.MTU = mtu

	engine, err := ipv4.NewEngine(ipv4.Options{
		LocalAddr:   opts.Interface.Addr,
		MTU:         mtu,
		TTL:         opts.TTL,
		AssignIDs:   opts.AssignIDs,
		Reassembly:  opts.Reassembly,
		Dispatcher:  s.registry,
		Unreachable: s,
		Link:        ep,
		LinkName:    opts.LinkName,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine
	s.icmp = icmp.NewHandler(engine, opts.Logger)

	if err := s.registry.Register(core.ProtocolICMP, s.icmp); err != nil {
		return nil, err
	}
	ep.Attach(s)

	opts.Logger.WithFields(map[string]interface{}{
		"interface":  s.iface.Name,
		"addr":       s.iface.Addr.String(),
		"mtu":        mtu,
		"reassembly": opts.Reassembly != nil,
	}).Info("stack ready")
	return s, nil
}

// DeliverNetworkPacket is the inbound entry point from the link layer.
func (s *Stack) DeliverNetworkPacket(pkt *buffer.Buffer, src net.HardwareAddr) {
	s.engine.Receive(pkt, src)
}

// ProtocolUnreachable answers a datagram no handler took with an ICMP
// protocol unreachable message.
func (s *Stack) ProtocolUnreachable(datagram *buffer.Buffer, src netip.Addr) {
	s.icmp.SendUnreachable(datagram, src, icmp.CodeProtocolUnreachable)
}

// WritePacket is the outbound entry point for upper-layer protocols.
func (s *Stack) WritePacket(payload *buffer.Buffer, dst netip.Addr, proto core.ProtocolNumber) {
	s.engine.Send(payload, dst, proto)
}

// RegisterProtocol installs the inbound handler for proto.
func (s *Stack) RegisterProtocol(proto core.ProtocolNumber, h ProtocolHandler) error {
	return s.registry.Register(proto, h)
}

// ICMP returns the ICMP handler, which upper layers use to report port
// unreachable.
func (s *Stack) ICMP() *icmp.Handler {
	return s.icmp
}

func (s *Stack) Interface() core.Interface {
	return s.iface
}

func (s *Stack) Registry() *Registry {
	return s.registry
}

// Run performs background maintenance until ctx is done. It only has work
// to do when reassembly is enabled.
func (s *Stack) Run(ctx context.Context) {
	if r := s.engine.Reassembler(); r != nil {
		r.Run(ctx)
		return
	}
	<-ctx.Done()
}
