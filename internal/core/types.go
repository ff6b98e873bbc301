// Package core defines core types with zero external dependencies.
package core

import (
	"net"
	"net/netip"
	"strconv"
)

// ProtocolNumber identifies an upper-layer protocol carried in an IPv4 datagram.
type ProtocolNumber uint8

// Upper-layer protocol numbers.
const (
	ProtocolICMP ProtocolNumber = 1
	ProtocolTCP  ProtocolNumber = 6
	ProtocolUDP  ProtocolNumber = 17
)

// String returns the protocol name, or its decimal number when unknown.
func (p ProtocolNumber) String() string {
	switch p {
	case ProtocolICMP:
		return "icmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return strconv.Itoa(int(p))
	}
}

// Interface is the single local interface the stack is bound to.
type Interface struct {
	Name string
	Addr netip.Addr       // IPv4 address, used for destination matching and as source
	MAC  net.HardwareAddr // Link address (6 bytes for Ethernet)
	MTU  int              // Link MTU in bytes
}

// EthernetMTU is the MTU of an Ethernet II link.
const EthernetMTU = 1500
