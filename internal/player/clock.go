package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/glebovdev/streamplay/internal/buffer"
	"github.com/glebovdev/streamplay/internal/output"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

// clock moves blocks from the ring into the sink in real time. It starts
// held and only pulls blocks between run and hold.
type clock struct {
	ring          *buffer.Ring
	sink          output.Sink
	pollTimeout   time.Duration
	underrunPolls int
	emit          func(event)

	mu      sync.Mutex
	running bool
	wake    chan struct{}
}

func newClock(ring *buffer.Ring, sink output.Sink, pollTimeout time.Duration, underrunPolls int, emit func(event)) *clock {
	return &clock{
		ring:          ring,
		sink:          sink,
		pollTimeout:   pollTimeout,
		underrunPolls: underrunPolls,
		emit:          emit,
		wake:          make(chan struct{}),
	}
}

func (c *clock) run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		c.running = true
		close(c.wake)
		c.wake = make(chan struct{})
	}
}

func (c *clock) hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *clock) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// await blocks while the clock is held and reports whether it had to. ok is
// false once ctx is done.
func (c *clock) await(ctx context.Context) (waited, ok bool) {
	for {
		c.mu.Lock()
		running, wake := c.running, c.wake
		c.mu.Unlock()
		if running {
			return waited, ctx.Err() == nil
		}
		waited = true
		select {
		case <-ctx.Done():
			return waited, false
		case <-wake:
		}
	}
}

// loop is the clock goroutine. A block written while the clock was being
// held is reported as played once the clock runs again. Completion is only
// reported after the sink has played out everything it accepted.
func (c *clock) loop(ctx context.Context) {
	defer log.Debug().Msg("Playback clock stopped")

	var (
		format      beep.Format
		misses      int
		pendingEnd  time.Duration
		havePending bool
	)

	for {
		waited, ok := c.await(ctx)
		if !ok {
			return
		}
		if waited {
			// Misses only count within one uninterrupted run.
			misses = 0
		}
		if havePending {
			c.emit(event{kind: evPlayed, played: pendingEnd})
			havePending = false
		}

		b, err := c.ring.Pop(ctx, c.pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, buffer.ErrEmpty):
			if !c.isRunning() {
				continue
			}
			misses++
			if misses >= c.underrunPolls {
				misses = 0
				c.hold()
				c.emit(event{kind: evUnderrun})
			}
			continue
		case errors.Is(err, buffer.ErrDrained):
			if err := c.sink.Drain(ctx); err != nil {
				if ctx.Err() == nil {
					c.emit(event{kind: evFailed, err: err})
				}
				return
			}
			c.emit(event{kind: evComplete})
			return
		default:
			return
		}
		misses = 0

		if b.Format != format {
			if err := c.sink.Configure(b.Format); err != nil {
				c.emit(event{kind: evFailed, err: err})
				return
			}
			format = b.Format
		}

		if err := c.sink.Write(ctx, b.Samples); err != nil {
			if ctx.Err() == nil {
				c.emit(event{kind: evFailed, err: err})
			}
			return
		}

		if c.isRunning() {
			c.emit(event{kind: evPlayed, played: b.End()})
		} else {
			pendingEnd, havePending = b.End(), true
		}
	}
}
