package runner

import (
	"fmt"
	"sync"
)

// outputBuffer keeps the first and the last bytes written to it so a task
// record carries both the command's startup and its final error, without
// retaining the entire output in memory.
type outputBuffer struct {
	headMax int
	tailMax int

	mu    sync.Mutex
	total int64
	head  []byte
	tail  []byte
}

func newOutputBuffer(maxBytes int) *outputBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultOutputCap
	}
	headMax := maxBytes / 2
	return &outputBuffer{
		headMax: headMax,
		tailMax: maxBytes - headMax,
		head:    make([]byte, 0, headMax),
	}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	b.total += int64(n)

	if room := b.headMax - len(b.head); room > 0 {
		take := min(room, len(p))
		b.head = append(b.head, p[:take]...)
		p = p[take:]
	}
	if len(p) == 0 {
		return n, nil
	}

	// Append then trim the front to keep the most recent bytes
	b.tail = append(b.tail, p...)
	if over := len(b.tail) - b.tailMax; over > 0 {
		kept := copy(b.tail, b.tail[over:])
		b.tail = b.tail[:kept]
	}
	return n, nil
}

// dropped returns how many bytes were discarded between head and tail
func (b *outputBuffer) dropped() int64 {
	return b.total - int64(len(b.head)) - int64(len(b.tail))
}

// String returns the retained output. When bytes were discarded a marker
// with the number of discarded bytes sits between head and tail.
func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d := b.dropped(); d > 0 {
		return fmt.Sprintf("%s\n[... %d bytes truncated ...]\n%s", b.head, d, b.tail)
	}
	return string(b.head) + string(b.tail)
}

func (b *outputBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *outputBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped() > 0
}
