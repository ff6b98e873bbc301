package channel

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hoststack/internal/buffer"
)

type dispatcher struct {
	got [][]byte
	src []net.HardwareAddr
}

func (d *dispatcher) DeliverNetworkPacket(pkt *buffer.Buffer, src net.HardwareAddr) {
	d.got = append(d.got, pkt.Bytes())
	d.src = append(d.src, src)
}

func TestWritePacketCopies(t *testing.T) {
	e := New(2, 1500)
	dst := netip.MustParseAddr("10.0.0.1")
	pkt := buffer.From([]byte{1, 2, 3})

	require.NoError(t, e.WritePacket(pkt, dst))
	pkt.Bytes()[0] = 9

	p := <-e.C
	assert.Equal(t, []byte{1, 2, 3}, p.Data)
	assert.Equal(t, dst, p.Dst)
	assert.Equal(t, 1500, e.MTU())
}

func TestWritePacketDropsWhenFull(t *testing.T) {
	e := New(1, 1500)
	dst := netip.MustParseAddr("10.0.0.1")

	require.NoError(t, e.WritePacket(buffer.From([]byte{1}), dst))
	require.NoError(t, e.WritePacket(buffer.From([]byte{2}), dst))

	assert.Equal(t, 1, e.Drain())
	assert.Equal(t, 0, e.Drain())
}

func TestInjectInbound(t *testing.T) {
	e := New(1, 1500)
	d := &dispatcher{}
	assert.False(t, e.IsAttached())
	e.Attach(d)
	assert.True(t, e.IsAttached())

	mac := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	e.InjectInbound(buffer.From([]byte{0x45}), mac)

	require.Len(t, d.got, 1)
	assert.Equal(t, []byte{0x45}, d.got[0])
	assert.Equal(t, mac, d.src[0])
}
