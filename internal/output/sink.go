// Package output delivers decoded samples to an audio device, or to nowhere
// at real-time pace.
package output

import (
	"context"
	"math"

	"github.com/gopxl/beep/v2"
)

const (
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

// Sink consumes decoded samples at real-time pace. Write blocks until the
// sink accepts the samples, which is what paces the playback clock. A sink
// may queue accepted samples ahead of the device.
type Sink interface {
	// Configure prepares the sink for samples of the given format. It is
	// called before the first Write and whenever the format changes.
	Configure(format beep.Format) error
	Write(ctx context.Context, samples [][2]float64) error
	// Drain blocks until every accepted sample has been played.
	Drain(ctx context.Context) error
	Pause()
	Resume()
	// Clear drops samples accepted but not yet played.
	Clear()
	SetVolume(percent int)
	Close() error
}

// percentToExponent maps 0..100 onto a perceptual gain curve, in the base-2
// exponent used by effects.Volume.
func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}
