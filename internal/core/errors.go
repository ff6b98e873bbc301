// Package core defines sentinel errors.
package core

import "errors"

var (
	// Address errors
	ErrInvalidAddress = errors.New("hoststack: invalid address")

	// Engine construction errors
	ErrMTUTooSmall = errors.New("hoststack: mtu too small")

	// Protocol registry errors
	ErrProtocolRegistered = errors.New("hoststack: protocol already registered")

	// IP reassembly errors
	ErrReassemblyLimit    = errors.New("hoststack: fragment reassembly limit exceeded")
	ErrReassemblyRejected = errors.New("hoststack: fragment rejected")

	// Configuration errors
	ErrConfigInvalid = errors.New("hoststack: invalid configuration")
)
