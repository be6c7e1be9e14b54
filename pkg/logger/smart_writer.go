package logger

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"time"
)

var (
	errorLevelMarker = []byte(`"level":"error"`)
	fatalLevelMarker = []byte(`"level":"fatal"`)
)

// SmartWriter buffers log lines in memory and writes them out when the buffer
// fills, every flushInterval, on an error/fatal line, or on Sync/Close.
type SmartWriter struct {
	bufWriter     *bufio.Writer
	mu            sync.Mutex
	flushInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewSmartWriter creates a SmartWriter with a 256KB buffer and starts its
// background flusher
func NewSmartWriter(w io.Writer, flushInterval time.Duration) *SmartWriter {
	sw := &SmartWriter{
		bufWriter:     bufio.NewWriterSize(w, 256*1024),
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
	}
	sw.wg.Add(1)
	go sw.runFlusher()
	return sw
}

// Write implements io.Writer
func (sw *SmartWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	n, err := sw.bufWriter.Write(p)
	if bytes.Contains(p, errorLevelMarker) || bytes.Contains(p, fatalLevelMarker) {
		_ = sw.bufWriter.Flush()
	}
	return n, err
}

// Sync flushes the buffer
func (sw *SmartWriter) Sync() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.bufWriter.Flush()
}

// Close stops the background flusher and flushes what is left
func (sw *SmartWriter) Close() error {
	sw.stopOnce.Do(func() { close(sw.stopChan) })
	sw.wg.Wait()
	return sw.Sync()
}

func (sw *SmartWriter) runFlusher() {
	defer sw.wg.Done()
	ticker := time.NewTicker(sw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = sw.Sync()
		case <-sw.stopChan:
			return
		}
	}
}
