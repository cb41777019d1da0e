package xrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosBufferSize(t *testing.T) {
	assert.Equal(t, int64(0), PosBuffer{}.Size())
	assert.Equal(t, int64(4), PosBuffer{Offset: 10, Data: make([]byte, 4)}.Size())
	assert.Equal(t, int64(14), PosBuffer{Offset: 10, Data: make([]byte, 4)}.End())
}

func TestPosBufferString(t *testing.T) {
	assert.Equal(t, "10+4", PosBuffer{Offset: 10, Data: make([]byte, 4)}.String())
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, int64(0), SizeOf(nil))
	assert.Equal(t, int64(7), SizeOf([]PosBuffer{
		{Offset: 0, Data: make([]byte, 3)},
		{Offset: 100, Data: make([]byte, 4)},
	}))
}
