// Package buffer provides the bounded queue of decoded audio blocks shared
// between the decoder and the playback clock.
package buffer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

var (
	// ErrEmpty is returned by Pop when no block arrived within the timeout.
	ErrEmpty = errors.New("buffer is empty")
	// ErrDrained is returned by Pop once the buffer is closed and empty.
	ErrDrained = errors.New("buffer is drained")
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("buffer is closed")
)

// Consumed slots are reclaimed once this many have piled up at the front.
const compactThreshold = 32

// Block is a run of decoded stereo samples with its presentation timestamp.
type Block struct {
	PTS      time.Duration
	Duration time.Duration
	Samples  [][2]float64
	Format   beep.Format
}

// End returns the timestamp just past the last sample of the block.
func (b Block) End() time.Duration {
	return b.PTS + b.Duration
}

// Ring is a bounded FIFO of blocks measured in seconds of audio rather than
// block count. Producers block while the buffer holds capacity or more;
// consumers wait at most a caller-supplied timeout.
type Ring struct {
	mu       sync.Mutex
	blocks   []Block
	head     int
	filled   time.Duration
	capacity time.Duration
	closed   bool
	changed  chan struct{}
}

// NewRing creates a ring that applies back-pressure at capacity.
func NewRing(capacity time.Duration) *Ring {
	return &Ring{
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// signal wakes every waiter. Caller must hold mu.
func (r *Ring) signal() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Push appends a block, waiting while the ring is at capacity. A block is
// always accepted into an empty ring so an oversize block cannot deadlock.
func (r *Ring) Push(ctx context.Context, b Block) error {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrClosed
		}
		if r.filled < r.capacity || r.queued() == 0 {
			r.blocks = append(r.blocks, b)
			r.filled += b.Duration
			r.signal()
			r.mu.Unlock()
			return nil
		}
		wait := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Pop removes the oldest block. It returns ErrEmpty if nothing arrives
// within timeout and ErrDrained once the ring is closed and empty.
func (r *Ring) Pop(ctx context.Context, timeout time.Duration) (Block, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if r.queued() > 0 {
			b := r.blocks[r.head]
			r.blocks[r.head] = Block{}
			r.head++
			switch {
			case r.head == len(r.blocks):
				r.blocks = r.blocks[:0]
				r.head = 0
			case r.head >= compactThreshold && r.head*2 >= len(r.blocks):
				n := copy(r.blocks, r.blocks[r.head:])
				clear(r.blocks[n:])
				r.blocks = r.blocks[:n]
				r.head = 0
			}
			r.filled -= b.Duration
			if r.filled < 0 {
				r.filled = 0
			}
			r.signal()
			r.mu.Unlock()
			return b, nil
		}
		if r.closed {
			r.mu.Unlock()
			return Block{}, ErrDrained
		}
		wait := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return Block{}, ctx.Err()
		case <-timer.C:
			return Block{}, ErrEmpty
		case <-wait:
		}
	}
}

// Close marks the end of the stream. Queued blocks stay poppable.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.signal()
	}
}

// Filled returns the total duration of queued blocks.
func (r *Ring) Filled() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}

// Capacity returns the back-pressure threshold.
func (r *Ring) Capacity() time.Duration {
	return r.capacity
}

// Len returns the number of queued blocks.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queued()
}

func (r *Ring) queued() int {
	return len(r.blocks) - r.head
}

// Closed reports whether the producer has finished.
func (r *Ring) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
