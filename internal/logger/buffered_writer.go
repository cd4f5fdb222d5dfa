package logger

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tphakala/camcore/internal/errors"
)

const (
	fileBufferSize     = 32 * 1024
	fileFlushInterval  = 5 * time.Second
	logFilePermissions = 0o600
)

var errWriterClosed = errors.NewStd("log writer is closed")

// BufferedFileWriter appends to a log file through a buffer that is
// flushed every few seconds and on Close. Safe for concurrent use.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)

// NewBufferedFileWriter opens path for appending and starts the flush loop
func NewBufferedFileWriter(path string) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) //nolint:gosec // path comes from config
	if err != nil {
		return nil, err
	}

	w := &BufferedFileWriter{
		file: file,
		buf:  bufio.NewWriterSize(file, fileBufferSize),
		stop: make(chan struct{}),
	}
	w.wg.Go(w.flushLoop)
	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	ticker := time.NewTicker(fileFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			// a failing flush surfaces on the next Write
			_ = w.Flush()
		}
	}
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the OS without fsync
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close stops the flush loop, then flushes, syncs and closes the file.
// Calling it again is a no-op.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.buf == nil {
		w.mu.Unlock()
		return nil
	}
	buf, file := w.buf, w.file
	w.buf, w.file = nil, nil
	w.mu.Unlock()

	close(w.stop)
	w.wg.Wait()

	return errors.Join(buf.Flush(), file.Sync(), file.Close())
}
