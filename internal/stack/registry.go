package stack

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"firestige.xyz/hoststack/internal/buffer"
	"firestige.xyz/hoststack/internal/core"
)

// ProtocolHandler consumes the payload of a datagram carrying its protocol.
type ProtocolHandler interface {
	HandlePacket(pkt *buffer.Buffer, src netip.Addr)
}

// ProtocolHandlerFunc adapts a function to ProtocolHandler.
type ProtocolHandlerFunc func(pkt *buffer.Buffer, src netip.Addr)

func (f ProtocolHandlerFunc) HandlePacket(pkt *buffer.Buffer, src netip.Addr) {
	f(pkt, src)
}

// Registry maps protocol numbers to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.ProtocolNumber]ProtocolHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[core.ProtocolNumber]ProtocolHandler),
	}
}

// Register adds the handler for proto. Each protocol has at most one.
func (r *Registry) Register(proto core.ProtocolNumber, h ProtocolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[proto]; exists {
		return fmt.Errorf("%w: %s", core.ErrProtocolRegistered, proto)
	}
	r.handlers[proto] = h
	return nil
}

func (r *Registry) Lookup(proto core.ProtocolNumber) (ProtocolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[proto]
	return h, exists
}

// Protocols returns the registered protocol numbers in ascending order.
func (r *Registry) Protocols() []core.ProtocolNumber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	protos := make([]core.ProtocolNumber, 0, len(r.handlers))
	for p := range r.handlers {
		protos = append(protos, p)
	}
	sort.Slice(protos, func(i, j int) bool { return protos[i] < protos[j] })
	return protos
}

// Deliver hands pkt to the handler for proto. It returns false if there is
// none.
func (r *Registry) Deliver(proto core.ProtocolNumber, pkt *buffer.Buffer, src netip.Addr) bool {
	h, ok := r.Lookup(proto)
	if !ok {
		return false
	}
	h.HandlePacket(pkt, src)
	return true
}
