package logging

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// ErrAppenderClosed is returned when appending after Close
var ErrAppenderClosed = errors.New("log appender is closed")

// appendQueueSize bounds the entries buffered ahead of the disk writer
const appendQueueSize = 64

// Appender serializes appends to a shared run log. Task entries arrive from
// concurrent workers and are written in arrival order by one goroutine.
type Appender struct {
	file  *os.File
	queue chan []byte
	log   log.Logger
	done  sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// owned by the writer goroutine until done
	written  int64
	firstErr error
}

// NewAppender creates (or truncates) path and starts the writer
func NewAppender(path string, logger log.Logger) (*Appender, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	a := &Appender{
		file:  file,
		queue: make(chan []byte, appendQueueSize),
		log:   logger,
	}
	a.done.Add(1)
	go a.drain()
	return a, nil
}

// Append queues a copy of entry
func (a *Appender) Append(entry []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAppenderClosed
	}
	a.queue <- append([]byte(nil), entry...)
	return nil
}

func (a *Appender) drain() {
	defer a.done.Done()
	for entry := range a.queue {
		n, err := a.file.Write(entry)
		a.written += int64(n)
		if err != nil {
			a.log.Error("Failed to append to run log", "file", a.file.Name(), "err", err)
			if a.firstErr == nil {
				a.firstErr = err
			}
		}
	}
}

// Close flushes queued entries and closes the file. The first write error,
// if any, is returned alongside the close error. Closing twice is a no-op.
func (a *Appender) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.done.Wait()
	return errors.Join(a.firstErr, a.file.Close())
}

// Written reports the bytes flushed to disk. Only meaningful after Close.
func (a *Appender) Written() int64 {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		return 0
	}
	a.done.Wait()
	return a.written
}
