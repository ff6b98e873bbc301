// Package icmp implements the ICMPv4 echo responder and destination
// unreachable reporting.
package icmp

import (
	"encoding/binary"
	"strconv"

	"firestige.xyz/hoststack/internal/checksum"
)

// HeaderSize is the size of the fixed ICMP header.
const HeaderSize = 8

// Type is an ICMP message type.
type Type uint8

const (
	TypeEchoReply              Type = 0
	TypeDestinationUnreachable Type = 3
	TypeEcho                   Type = 8
)

func (t Type) String() string {
	switch t {
	case TypeEchoReply:
		return "echo_reply"
	case TypeDestinationUnreachable:
		return "destination_unreachable"
	case TypeEcho:
		return "echo"
	}
	return strconv.Itoa(int(t))
}

// Code is the sub-type of a destination unreachable message.
type Code uint8

const (
	CodeProtocolUnreachable Code = 2
	CodePortUnreachable     Code = 3
)

// Message is a view over a whole ICMP message, header and body.
type Message []byte

func (m Message) Type() Type           { return Type(m[0]) }
func (m Message) SetType(t Type)       { m[0] = byte(t) }
func (m Message) Code() Code           { return Code(m[1]) }
func (m Message) SetCode(c Code)       { m[1] = byte(c) }
func (m Message) Checksum() uint16     { return binary.BigEndian.Uint16(m[2:]) }
func (m Message) SetChecksum(v uint16) { binary.BigEndian.PutUint16(m[2:], v) }

// Ident returns the echo identifier.
func (m Message) Ident() uint16 { return binary.BigEndian.Uint16(m[4:]) }

// Sequence returns the echo sequence number.
func (m Message) Sequence() uint16 { return binary.BigEndian.Uint16(m[6:]) }

// Payload returns the bytes after the fixed header.
func (m Message) Payload() []byte { return m[HeaderSize:] }

// CalculateChecksum returns the checksum of the whole message with the
// checksum field treated as zero.
func (m Message) CalculateChecksum() uint16 {
	return ^checksum.Checksum(m[4:], checksum.Checksum(m[:2], 0))
}

// IsChecksumValid reports whether the stored checksum matches the message.
func (m Message) IsChecksumValid() bool {
	return m.CalculateChecksum() == m.Checksum()
}
