package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/camcore/internal/errors"
)

// WAVWriter streams 16-bit PCM into a WAV file. The header is finalized on Close.
type WAVWriter struct {
	path    string
	format  Format
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	written int64
	// partial holds the bytes of an incomplete frame until the next write
	partial []byte
}

// NewWAVWriter creates path and its parent directories
func NewWAVWriter(path string, format Format) (*WAVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Context("path", path).
			Build()
	}

	file, err := os.Create(path) //nolint:gosec // path comes from the media store
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryFileIO).
			Context("operation", "create_file").
			Context("path", path).
			Build()
	}

	return &WAVWriter{
		path:   path,
		format: format,
		file:   file,
		enc:    wav.NewEncoder(file, format.SampleRate, BitDepth, format.Channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
			SourceBitDepth: BitDepth,
		},
	}, nil
}

// WritePCM appends little-endian 16-bit samples. Bytes that do not fill a
// whole frame are held back and prefixed to the next call.
func (w *WAVWriter) WritePCM(pcm []byte) error {
	if len(w.partial) > 0 {
		pcm = append(w.partial, pcm...)
		w.partial = nil
	}
	frameSize := w.format.FrameSize()
	whole := len(pcm) / frameSize * frameSize
	if rest := pcm[whole:]; len(rest) > 0 {
		w.partial = append([]byte(nil), rest...)
	}
	pcm = pcm[:whole]

	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}

	if cap(w.buf.Data) < samples {
		w.buf.Data = make([]int, samples)
	}
	w.buf.Data = w.buf.Data[:samples]
	for i := range samples {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	if err := w.enc.Write(w.buf); err != nil {
		return errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryFileIO).
			Context("operation", "encode_wav").
			Context("path", w.path).
			Build()
	}
	w.written += int64(samples * 2)
	return nil
}

// Bytes returns the PCM bytes encoded so far, excluding a held back partial frame
func (w *WAVWriter) Bytes() int64 { return w.written }

// Duration returns the playback duration written so far
func (w *WAVWriter) Duration() time.Duration {
	return w.format.DurationOf(int(w.written))
}

// Path returns the output file
func (w *WAVWriter) Path() string { return w.path }

// Close finalizes the header and closes the file
func (w *WAVWriter) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryFileIO).
			Context("operation", "finalize_wav").
			Context("path", w.path).
			Build()
	}
	return nil
}
