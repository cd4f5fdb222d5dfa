package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/errors"
)

func TestBufferDropsOldest(t *testing.T) {
	t.Parallel()

	b := NewBuffer(8, 1)
	b.Write([]byte{1, 2, 3, 4, 5, 6})
	b.Write([]byte{7, 8, 9, 10})

	assert.Equal(t, 8, b.Buffered())
	assert.Equal(t, int64(2), b.Dropped())
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8, 9, 10}, b.Drain(nil))
	assert.Zero(t, b.Buffered())
}

func TestBufferOversizedWriteKeepsTail(t *testing.T) {
	t.Parallel()

	b := NewBuffer(4, 1)
	b.Write([]byte{1, 2, 3, 4, 5, 6})

	assert.Equal(t, int64(2), b.Dropped())
	assert.Equal(t, []byte{3, 4, 5, 6}, b.Drain(nil))
}

func TestBufferKeepsFrameAlignment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		size      int
		frameSize int
		writes    [][]byte
		want      []byte
		dropped   int64
	}{
		{
			name:      "odd size rounds down to whole frames",
			size:      7,
			frameSize: 2,
			writes:    [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
			want:      []byte{3, 4, 5, 6, 7, 8},
			dropped:   2,
		},
		{
			name:      "eviction removes whole stereo frames",
			size:      8,
			frameSize: 4,
			writes:    [][]byte{{1, 2, 3, 4, 5, 6}, {7, 8, 9, 10}},
			want:      []byte{5, 6, 7, 8, 9, 10},
			dropped:   4,
		},
		{
			name:      "oversized write keeps whole trailing frames",
			size:      5,
			frameSize: 2,
			writes:    [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}},
			want:      []byte{5, 6, 7, 8},
			dropped:   4,
		},
		{
			name:      "size below one frame holds one frame",
			size:      1,
			frameSize: 2,
			writes:    [][]byte{{1, 2}, {3, 4}},
			want:      []byte{3, 4},
			dropped:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBuffer(tt.size, tt.frameSize)
			for _, w := range tt.writes {
				b.Write(w)
			}
			assert.Equal(t, tt.want, b.Drain(nil))
			assert.Equal(t, tt.dropped, b.Dropped())
			assert.Zero(t, tt.dropped%int64(tt.frameSize))
		})
	}
}

func TestBufferDrainAppends(t *testing.T) {
	t.Parallel()

	b := NewBuffer(16, 1)
	b.Write([]byte{9, 9})
	got := b.Drain([]byte{1})
	assert.Equal(t, []byte{1, 9, 9}, got)

	b.Write([]byte{5})
	b.Reset()
	assert.Zero(t, b.Buffered())
	assert.Equal(t, []byte{7}, b.Drain([]byte{7}))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format Format
		bytes  int
		want   time.Duration
	}{
		{"mono 48k one second", Format{SampleRate: 48000, Channels: 1}, 96000, time.Second},
		{"stereo 44.1k half second", Format{SampleRate: 44100, Channels: 2}, 88200, 500 * time.Millisecond},
		{"zero format", Format{}, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.format.DurationOf(tt.bytes))
		})
	}
}

func TestNewSourceSelection(t *testing.T) {
	t.Parallel()

	src, err := NewSource(Config{Source: SourceSilence, SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, SourceSilence, src.Name())

	src, err = NewSource(Config{Source: SourceMalgo, Device: "USB", SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, "USB", src.Name())

	_, err = NewSource(Config{Source: "pulse", SampleRate: 48000, Channels: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = NewSource(Config{Source: SourceSilence})
	require.Error(t, err)
}

func TestSilenceSourceStartStop(t *testing.T) {
	t.Parallel()

	src := NewSilenceSource(Format{SampleRate: 8000, Channels: 1})

	var mu sync.Mutex
	var total int
	require.NoError(t, src.Start(t.Context(), func(pcm []byte) {
		mu.Lock()
		defer mu.Unlock()
		for _, b := range pcm {
			assert.Zero(t, b)
		}
		total += len(pcm)
	}))
	require.Error(t, src.Start(t.Context(), func([]byte) {}), "double start")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return total > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
}

func TestWAVWriterProducesDecodableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "track.wav")
	format := Format{SampleRate: 16000, Channels: 1}

	w, err := NewWAVWriter(path, format)
	require.NoError(t, err)

	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcm := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	require.NoError(t, w.WritePCM(pcm))
	// A split sample is completed by the next write
	require.NoError(t, w.WritePCM(pcm[:3]))
	assert.Equal(t, int64(12), w.Bytes())
	require.NoError(t, w.WritePCM(pcm[3:4]))
	assert.Equal(t, int64(14), w.Bytes())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(16000), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, []int{0, 1000, -1000, 32767, -32768, 0, 1000}, buf.Data)
}
