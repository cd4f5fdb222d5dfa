package audio

import (
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/camcore/internal/logger"
)

// Buffer stages PCM between a capture callback and the encoder. When the
// writer outpaces the reader, the oldest frames are discarded so the newest
// audio is always kept. Evictions remove whole frames only.
type Buffer struct {
	mu        sync.Mutex
	rb        *ringbuffer.RingBuffer
	size      int
	frameSize int
	dropped   atomic.Int64
	scratch   []byte
}

// NewBuffer creates a buffer holding at most size bytes of frameSize-byte
// frames. size is rounded down to a whole number of frames, and it is never
// less than one frame.
func NewBuffer(size, frameSize int) *Buffer {
	frameSize = max(frameSize, 1)
	size = max(size/frameSize, 1) * frameSize
	return &Buffer{
		rb:        ringbuffer.New(size),
		size:      size,
		frameSize: frameSize,
		scratch:   make([]byte, size),
	}
}

// frames rounds n up to a whole number of frames
func (b *Buffer) frames(n int) int {
	return (n + b.frameSize - 1) / b.frameSize * b.frameSize
}

// Write stores pcm, evicting the oldest data when full. It never blocks
// and never fails.
func (b *Buffer) Write(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(pcm) > b.size {
		cut := min(b.frames(len(pcm)-b.size), len(pcm))
		b.dropped.Add(int64(cut))
		pcm = pcm[cut:]
		if len(pcm) == 0 {
			return
		}
	}

	if overflow := len(pcm) - b.rb.Free(); overflow > 0 {
		overflow = min(b.frames(overflow), b.rb.Length())
		n, _ := b.rb.Read(b.scratch[:overflow])
		b.dropped.Add(int64(n))
	}

	if _, err := b.rb.Write(pcm); err != nil {
		GetLogger().Warn("audio buffer write failed", logger.Error(err))
	}
}

// Drain moves everything buffered into dst and returns it
func (b *Buffer) Drain(dst []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.rb.Length()
	if n == 0 {
		return dst
	}
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	read, _ := b.rb.Read(dst[start:])
	return dst[:start+read]
}

// Buffered returns the number of bytes waiting to be drained
func (b *Buffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rb.Length()
}

// Dropped returns the number of bytes evicted since creation
func (b *Buffer) Dropped() int64 {
	return b.dropped.Load()
}

// Reset discards buffered data
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rb.Reset()
}
