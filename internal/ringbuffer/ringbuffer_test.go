package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAvailableReadWriteSumToCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 4096).Draw(t, "capacity")
		rb := New(capacity)

		assert.Equal(t, capacity, rb.Capacity())
		assert.Equal(t, capacity, rb.AvailableRead()+rb.AvailableWrite())

		writes := rapid.SliceOfN(rapid.SliceOf(rapid.Byte()), 0, 20).Draw(t, "writes")
		for _, chunk := range writes {
			n := rb.Write(chunk)
			assert.LessOrEqual(t, n, len(chunk))
			assert.Equal(t, capacity, rb.AvailableRead()+rb.AvailableWrite())
		}
	})
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 4096).Draw(t, "capacity")
		rb := New(capacity)
		data := rapid.SliceOfN(rapid.Byte(), 0, capacity).Draw(t, "data")

		written := rb.Write(data)
		assert.Equal(t, len(data), written, "a write that fits should never be short")

		out := make([]byte, written)
		read := rb.Read(out)
		assert.Equal(t, written, read)
		assert.Equal(t, data[:written], out)
	})
}

func TestWriteNeverExceedsAvailableWrite(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 256).Draw(t, "capacity")
		rb := New(capacity)

		// Fill it most of the way, then try to overflow it.
		rb.Write(make([]byte, capacity-1))
		overflow := rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(t, "overflow")

		avail := rb.AvailableWrite()
		n := rb.Write(overflow)
		assert.Equal(t, avail, n)
	})
}

func TestReadOnEmptyReturnsZero(t *testing.T) {
	rb := New(16)
	out := make([]byte, 4)
	assert.Equal(t, 0, rb.Read(out))
}

func TestResetClearsState(t *testing.T) {
	rb := New(16)
	rb.Write([]byte{1, 2, 3, 4})
	rb.Reset()
	assert.Equal(t, 0, rb.AvailableRead())
	assert.Equal(t, rb.Capacity(), rb.AvailableWrite())
}

func TestWrapAroundPreservesOrder(t *testing.T) {
	rb := New(8)
	rb.Write([]byte{1, 2, 3, 4, 5, 6})
	drained := make([]byte, 4)
	rb.Read(drained)
	assert.Equal(t, []byte{1, 2, 3, 4}, drained)

	// Head is now near the end of the backing array; this write wraps.
	rb.Write([]byte{7, 8, 9, 10})
	out := make([]byte, 6)
	n := rb.Read(out)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10}, out)
}
