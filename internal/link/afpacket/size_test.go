package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSize(t *testing.T) {
	tests := []struct {
		name    string
		sizeMB  int
		snapLen int
	}{
		{"ethernet mtu", 8, 1600},
		{"jumbo", 32, 9216},
		{"max snap", 64, 65536},
		{"tiny ring", 1, 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := ringSize(tt.sizeMB, tt.snapLen, 4096)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, frameSize, tt.snapLen+tpacketHdrLen)
			assert.Zero(t, frameSize%tpacketAlignment)
			assert.Zero(t, blockSize%4096)
			assert.Zero(t, blockSize%frameSize)
			assert.LessOrEqual(t, blockSize, maxBlockSize)
			assert.GreaterOrEqual(t, numBlocks, 1)
		})
	}
}

func TestRingSizeRejectsBadInput(t *testing.T) {
	_, _, _, err := ringSize(0, 1600, 4096)
	assert.Error(t, err)
	_, _, _, err = ringSize(8, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = ringSize(8, 1600, 1000)
	assert.Error(t, err)
}
