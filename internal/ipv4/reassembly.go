package ipv4

import (
	"container/list"
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"firestige.xyz/hoststack/internal/core"
	"firestige.xyz/hoststack/internal/metrics"
)

// Reassembly limits from RFC 791.
const (
	minFragSize    = 1     // Minimum valid fragment payload size
	maxFragOffset  = 8183  // Maximum valid fragment offset (in 8-byte units)
	maxFragListLen = 8192  // Hard cap on fragments per flow
	maxDatagram    = 65535 // Maximum IPv4 datagram size
)

// ReassemblyConfig contains configuration for IP reassembly.
type ReassemblyConfig struct {
	MaxFragments    int           // Maximum fragments per flow (default 100)
	MaxSize         int           // Maximum reassembled payload size (default 65535)
	Timeout         time.Duration // Inactivity timeout per flow (default 30s)
	MaxFragsPerIP   int           // Per-source fragment limit per window (0 = disabled)
	RateLimitWindow time.Duration // Rate limit window (default 10s)
}

// fragmentKey identifies the datagram a fragment belongs to.
type fragmentKey struct {
	src      [4]byte
	dst      [4]byte
	protocol core.ProtocolNumber
	id       uint16
}

// fragment is one piece of payload at a byte offset.
type fragment struct {
	offset  uint16
	length  uint16
	payload []byte
}

// fragmentList keeps the fragments of one datagram sorted by offset.
// Held fragments never overlap; on overlap the data that arrived first is
// kept (BSD-Right).
type fragmentList struct {
	list          list.List // of *fragment, ascending offset
	highest       uint16    // max(offset + length) seen; the datagram end once finalReceived
	finalReceived bool      // the MF=0 fragment arrived
	first         Header    // header of the offset-0 fragment, nil until it arrives
	lastSeen      time.Time
}

// Reassembler rebuilds datagrams from their fragments.
type Reassembler struct {
	mu          sync.Mutex
	flows       map[fragmentKey]*fragmentList
	config      ReassemblyConfig
	rateLimiter *FragmentRateLimiter // nil if rate limiting disabled
}

// NewReassembler creates a reassembler. Expired flows are only removed by
// Expire or by a running Run loop.
func NewReassembler(cfg ReassemblyConfig) *Reassembler {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 100
	}
	if cfg.MaxSize <= 0 || cfg.MaxSize > maxDatagram {
		cfg.MaxSize = maxDatagram
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Reassembler{
		flows:  make(map[fragmentKey]*fragmentList),
		config: cfg,
		rateLimiter: NewFragmentRateLimiter(FragmentRateLimiterConfig{
			MaxFragsPerIP:   cfg.MaxFragsPerIP,
			RateLimitWindow: cfg.RateLimitWindow,
		}),
	}
}

// Process adds one fragment. h is the fragment's header and payload its
// data (total-length bounded). It returns:
//   - (nil, false, nil) while the datagram is incomplete
//   - (payload, true, nil) once every byte has arrived
//   - (nil, false, err) when the fragment is rejected
func (r *Reassembler) Process(h Header, payload []byte, now time.Time) ([]byte, bool, error) {
	_, result, done, err := r.Reassemble(h, payload, now)
	return result, done, err
}

// Reassemble is Process that also returns the header of the offset-0
// fragment once the datagram is complete.
func (r *Reassembler) Reassemble(h Header, payload []byte, now time.Time) (Header, []byte, bool, error) {
	byteOffset := h.FragmentOffset()
	fragLen := len(payload)

	if err := r.securityChecks(fragLen, byteOffset>>3); err != nil {
		metrics.ReassemblyRejectedTotal.Inc()
		return nil, nil, false, err
	}

	src := h.SourceAddress().As4()
	if r.rateLimiter != nil && !r.rateLimiter.Allow(src, now) {
		metrics.ReassemblyRejectedTotal.Inc()
		return nil, nil, false, fmt.Errorf("%w: rate limit exceeded for %s", core.ErrReassemblyRejected, netip.AddrFrom4(src))
	}

	key := fragmentKey{
		src:      src,
		dst:      h.DestinationAddress().As4(),
		protocol: h.Protocol(),
		id:       h.ID(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fl, exists := r.flows[key]
	if !exists {
		fl = &fragmentList{}
		r.flows[key] = fl
		metrics.ReassemblyActiveFlows.Inc()
	}

	if fl.list.Len() >= maxFragListLen || fl.list.Len() >= r.config.MaxFragments {
		r.evictLocked(key)
		metrics.ReassemblyRejectedTotal.Inc()
		return nil, nil, false, fmt.Errorf("%w: more than %d fragments", core.ErrReassemblyLimit, r.config.MaxFragments)
	}

	fl.lastSeen = now
	end := byteOffset + uint16(fragLen)

	if !h.MoreFragments() {
		// The last fragment fixes the datagram end; it must agree with
		// everything already held.
		if (fl.finalReceived && end != fl.highest) || (!fl.finalReceived && end < fl.highest) {
			r.evictLocked(key)
			metrics.ReassemblyRejectedTotal.Inc()
			return nil, nil, false, fmt.Errorf("%w: inconsistent datagram end %d", core.ErrReassemblyRejected, end)
		}
		fl.finalReceived = true
		fl.highest = end
	} else if fl.finalReceived && end > fl.highest {
		metrics.ReassemblyRejectedTotal.Inc()
		return nil, nil, false, fmt.Errorf("%w: fragment ends at %d past datagram end %d", core.ErrReassemblyRejected, end, fl.highest)
	}

	if byteOffset == 0 && fl.first == nil {
		fl.first = append(Header(nil), h[:h.HeaderLength()]...)
	}

	// Copy: the caller's buffer does not outlive this call.
	data := make([]byte, fragLen)
	copy(data, payload)
	r.insertBSDRight(fl, &fragment{offset: byteOffset, length: uint16(fragLen), payload: data})

	if !fl.complete() {
		return nil, nil, false, nil
	}
	result, err := r.build(fl)
	first := fl.first
	r.evictLocked(key)
	if err != nil {
		metrics.ReassemblyRejectedTotal.Inc()
		return nil, nil, false, err
	}
	return first, result, true, nil
}

// complete reports whether the held fragments cover [0, highest) without
// gaps. Must be called with r.mu held.
func (fl *fragmentList) complete() bool {
	if !fl.finalReceived {
		return false
	}
	var next uint16
	for e := fl.list.Front(); e != nil; e = e.Next() {
		frag := e.Value.(*fragment)
		if frag.offset != next {
			return false
		}
		next = frag.offset + frag.length
	}
	return next == fl.highest
}

// securityChecks rejects fragments that cannot belong to a valid datagram.
func (r *Reassembler) securityChecks(fragSize int, fragOffset uint16) error {
	if fragSize < minFragSize {
		return fmt.Errorf("%w: fragment too small: %d bytes", core.ErrReassemblyRejected, fragSize)
	}
	if fragOffset > maxFragOffset {
		return fmt.Errorf("%w: fragment offset too large: %d", core.ErrReassemblyRejected, fragOffset)
	}
	endPos := int(fragOffset)*8 + fragSize
	if endPos > maxDatagram {
		return fmt.Errorf("%w: fragment would exceed max IP size: offset=%d size=%d end=%d",
			core.ErrReassemblyRejected, int(fragOffset)*8, fragSize, endPos)
	}
	return nil
}

// insertBSDRight inserts the parts of frag not already held, keeping
// earlier data on overlap. Must be called with r.mu held.
func (r *Reassembler) insertBSDRight(fl *fragmentList, frag *fragment) {
	fragEnd := frag.offset + frag.length
	if fragEnd > fl.highest && !fl.finalReceived {
		fl.highest = fragEnd
	}

	start := frag.offset
	for e := fl.list.Front(); e != nil && start < fragEnd; e = e.Next() {
		held := e.Value.(*fragment)
		heldEnd := held.offset + held.length
		if heldEnd <= start {
			continue
		}
		if held.offset >= fragEnd {
			fl.list.InsertBefore(frag.slice(start, fragEnd), e)
			return
		}
		if held.offset > start {
			fl.list.InsertBefore(frag.slice(start, held.offset), e)
		}
		start = heldEnd
	}
	if start < fragEnd {
		fl.list.PushBack(frag.slice(start, fragEnd))
	}
}

// slice returns the part of f covering [from, to).
func (f *fragment) slice(from, to uint16) *fragment {
	return &fragment{
		offset:  from,
		length:  to - from,
		payload: f.payload[from-f.offset : to-f.offset],
	}
}

// build concatenates the fragments. Must be called with r.mu held.
func (r *Reassembler) build(fl *fragmentList) ([]byte, error) {
	totalSize := int(fl.highest)
	if totalSize > r.config.MaxSize {
		return nil, fmt.Errorf("%w: reassembled size %d exceeds %d", core.ErrReassemblyLimit, totalSize, r.config.MaxSize)
	}

	result := make([]byte, totalSize)
	for e := fl.list.Front(); e != nil; e = e.Next() {
		frag := e.Value.(*fragment)
		if int(frag.offset)+len(frag.payload) > totalSize {
			return nil, fmt.Errorf("%w: fragment at %d past datagram end %d", core.ErrReassemblyRejected, frag.offset, totalSize)
		}
		copy(result[frag.offset:], frag.payload)
	}
	return result, nil
}

// evictLocked removes a flow. Must be called with r.mu held.
func (r *Reassembler) evictLocked(key fragmentKey) {
	if _, exists := r.flows[key]; exists {
		delete(r.flows, key)
		metrics.ReassemblyActiveFlows.Dec()
	}
}

// Expire drops every flow idle for longer than the configured timeout and
// returns how many were dropped.
func (r *Reassembler) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for key, fl := range r.flows {
		if now.Sub(fl.lastSeen) > r.config.Timeout {
			delete(r.flows, key)
			expired++
		}
	}
	if expired > 0 {
		metrics.ReassemblyActiveFlows.Sub(float64(expired))
	}
	return expired
}

// Pending returns the number of incomplete datagrams held.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Run calls Expire periodically until ctx is done.
func (r *Reassembler) Run(ctx context.Context) {
	interval := r.config.Timeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Expire(now)
		}
	}
}
