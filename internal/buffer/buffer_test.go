package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservesHeadroom(t *testing.T) {
	p := New(10)

	assert.Equal(t, 10, p.Len())
	assert.Equal(t, DefaultHeadroom, p.Headroom())
	assert.Equal(t, make([]byte, 10), p.Bytes())
}

func TestHeaderRemoveThenAddRestoresBytes(t *testing.T) {
	p := From([]byte{1, 2, 3, 4, 5, 6})

	p.RemoveHeader(4)
	assert.Equal(t, []byte{5, 6}, p.Bytes())

	hdr := p.AddHeader(4)
	assert.Equal(t, []byte{1, 2, 3, 4}, hdr)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, p.Bytes())
}

func TestAddHeaderBeyondHeadroomReallocates(t *testing.T) {
	p := Wrap([]byte{0xaa, 0xbb})
	require.Equal(t, 0, p.Headroom())

	hdr := p.AddHeader(3)
	copy(hdr, []byte{1, 2, 3})

	assert.Equal(t, []byte{1, 2, 3, 0xaa, 0xbb}, p.Bytes())
	assert.Equal(t, DefaultHeadroom, p.Headroom())
}

func TestRemovePadding(t *testing.T) {
	p := From([]byte{1, 2, 3, 0, 0, 0})

	p.RemovePadding(3)

	assert.Equal(t, []byte{1, 2, 3}, p.Bytes())
	assert.Equal(t, 3, p.Len())
}

func TestRemoveTooMuchPanics(t *testing.T) {
	p := From([]byte{1, 2})

	assert.Panics(t, func() { p.RemoveHeader(3) })
	assert.Panics(t, func() { p.RemovePadding(3) })
}

func TestCloneIsIndependent(t *testing.T) {
	p := From([]byte{1, 2, 3})
	c := p.Clone()

	c.Bytes()[0] = 9

	assert.Equal(t, byte(1), p.Bytes()[0])
	assert.Equal(t, byte(9), c.Bytes()[0])
}
