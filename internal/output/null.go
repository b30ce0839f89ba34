package output

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

// Null discards samples, sleeping for their duration so playback advances in
// real time without an audio device.
type Null struct {
	mu     sync.Mutex
	format beep.Format
}

func NewNull() *Null {
	return &Null{}
}

func (n *Null) Configure(format beep.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.format = format
	log.Debug().Msgf("Null sink configured (sample rate: %d Hz)", format.SampleRate)
	return nil
}

func (n *Null) Write(ctx context.Context, samples [][2]float64) error {
	n.mu.Lock()
	rate := n.format.SampleRate
	n.mu.Unlock()

	if rate <= 0 || len(samples) == 0 {
		return nil
	}

	timer := time.NewTimer(rate.D(len(samples)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Drain returns at once. Each Write has already waited out its block.
func (n *Null) Drain(context.Context) error { return nil }

func (n *Null) Pause()        {}
func (n *Null) Resume()       {}
func (n *Null) Clear()        {}
func (n *Null) SetVolume(int) {}

func (n *Null) Close() error {
	return nil
}
