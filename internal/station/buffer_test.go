package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageBufferDedupesIdenticalFrames(t *testing.T) {
	b := newMessageBuffer()
	b.push([]byte("frame-a"))
	b.push([]byte("frame-a"))
	b.push([]byte("frame-b"))
	assert.Equal(t, 2, b.size())
}

func TestMessageBufferDrainsInFIFOOrder(t *testing.T) {
	b := newMessageBuffer()
	b.push([]byte("1"))
	b.push([]byte("2"))
	b.push([]byte("3"))

	drained := b.drain()
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, drained)
	assert.Equal(t, 0, b.size())
}
