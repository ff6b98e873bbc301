package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"
)

func frameWithType(etherType uint16) []byte {
	f := make([]byte, 60)
	f[12] = byte(etherType >> 8)
	f[13] = byte(etherType)
	return f
}

func TestFilterAcceptsIPv4AndARP(t *testing.T) {
	vm, err := bpf.NewVM(filter(1600))
	require.NoError(t, err)

	for _, typ := range []uint16{etherTypeIPv4, etherTypeARP} {
		n, err := vm.Run(frameWithType(typ))
		require.NoError(t, err)
		assert.Positive(t, n, "ethertype %#04x", typ)
	}

	// IPv6 and VLAN-tagged frames are not for this stack.
	for _, typ := range []uint16{0x86dd, 0x8100} {
		n, err := vm.Run(frameWithType(typ))
		require.NoError(t, err)
		assert.Zero(t, n, "ethertype %#04x", typ)
	}
}

func TestCompileFilter(t *testing.T) {
	prog, err := compileFilter(1600)
	require.NoError(t, err)
	assert.Len(t, prog, 5)
}
