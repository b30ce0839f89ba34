package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	SpeakerBufferSize = time.Millisecond * 250
	BlockQueueSize    = 2
	DefaultVolume     = 70
	ResampleQuality   = 4
	fadeInDuration    = 50 * time.Millisecond
	drainPollInterval = 10 * time.Millisecond
)

// The speaker is process-wide and can only be initialised once; later
// formats are resampled to the first sample rate.
var (
	speakerMu   sync.Mutex
	speakerInit bool
	speakerRate beep.SampleRate
)

func initSpeaker(sampleRate beep.SampleRate) (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if !speakerInit {
		err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize))
		if err != nil {
			return 0, fmt.Errorf("failed to initialize speaker: %w", err)
		}
		speakerRate = sampleRate
		speakerInit = true
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", sampleRate, SpeakerBufferSize)
	}
	return speakerRate, nil
}

// Speaker plays samples on the system audio device through beep.
type Speaker struct {
	mu            sync.Mutex
	format        beep.Format
	feed          *feedStreamer
	volume        *effects.Volume
	ctrl          *beep.Ctrl
	volumePercent int
}

// NewSpeaker creates a sink; the device is opened on the first Configure.
func NewSpeaker(volumePercent int) *Speaker {
	return &Speaker{
		feed:          &feedStreamer{blocks: make(chan [][2]float64, BlockQueueSize)},
		volumePercent: volumePercent,
	}
}

func (s *Speaker) Configure(format beep.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil && format == s.format {
		return nil
	}

	deviceRate, err := initSpeaker(format.SampleRate)
	if err != nil {
		return err
	}

	var src beep.Streamer = s.feed
	if format.SampleRate != deviceRate {
		log.Debug().Msgf("Resampling %d Hz to %d Hz", format.SampleRate, deviceRate)
		src = beep.Resample(ResampleQuality, format.SampleRate, deviceRate, s.feed)
	}

	if s.ctrl == nil {
		fadeInSamples := deviceRate.N(fadeInDuration)
		s.feed.fadeInTotal = fadeInSamples
		s.feed.fadeInRemaining = fadeInSamples

		s.volume = &effects.Volume{
			Streamer: src,
			Base:     2,
			Volume:   percentToExponent(float64(s.volumePercent)),
			Silent:   s.volumePercent == 0,
		}
		s.ctrl = &beep.Ctrl{
			Streamer: s.volume,
			Paused:   false,
		}
		speaker.Play(s.ctrl)
	} else {
		speaker.Lock()
		s.volume.Streamer = src
		speaker.Unlock()
	}

	s.format = format
	return nil
}

// Write hands samples to the device callback, blocking while the queue of
// pending blocks is full.
func (s *Speaker) Write(ctx context.Context, samples [][2]float64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.feed.blocks <- samples:
		return nil
	}
}

// Drain waits until the device callback has pulled every queued block. It
// makes no progress while the speaker is paused.
func (s *Speaker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for !s.drained() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Speaker) drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return true
	}
	speaker.Lock()
	defer speaker.Unlock()
	return s.feed.empty()
}

func (s *Speaker) Pause() {
	s.setPaused(true)
}

func (s *Speaker) Resume() {
	s.setPaused(false)
}

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
	log.Debug().Bool("paused", paused).Msg("Speaker pause toggled")
}

func (s *Speaker) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		s.feed.reset()
		return
	}
	speaker.Lock()
	s.feed.reset()
	speaker.Unlock()
}

func (s *Speaker) SetVolume(volumePercent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumePercent = volumePercent

	if s.volume == nil {
		log.Debug().Msgf("Volume stored as %d%% (will be applied when playback starts)", volumePercent)
		return
	}

	volumeLevel := percentToExponent(float64(volumePercent))

	speaker.Lock()
	s.volume.Volume = volumeLevel
	s.volume.Silent = volumePercent == 0
	speaker.Unlock()

	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, volumeLevel)
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil {
		speaker.Clear()
		s.ctrl = nil
		s.volume = nil
	}
	s.feed.reset()
	return nil
}

// feedStreamer is pulled by the speaker callback. An empty queue yields
// silence instead of blocking the speaker mutex, and playback fades back in
// after every gap.
type feedStreamer struct {
	blocks          chan [][2]float64
	current         [][2]float64
	fadeInRemaining int
	fadeInTotal     int
}

func (f *feedStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	audioEnd := 0
	for audioEnd < len(samples) {
		if len(f.current) == 0 {
			select {
			case b := <-f.blocks:
				f.current = b
			default:
			}
			if len(f.current) == 0 {
				break
			}
		}
		c := copy(samples[audioEnd:], f.current)
		f.current = f.current[c:]
		audioEnd += c
	}

	for i := audioEnd; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	if f.fadeInRemaining > 0 {
		for i := 0; i < audioEnd; i++ {
			pos := f.fadeInTotal - f.fadeInRemaining
			scale := float64(pos) / float64(f.fadeInTotal)
			samples[i][0] *= scale
			samples[i][1] *= scale
			f.fadeInRemaining--
			if f.fadeInRemaining <= 0 {
				break
			}
		}
	}

	if audioEnd < len(samples) {
		f.fadeInRemaining = f.fadeInTotal
	}

	return len(samples), true
}

func (f *feedStreamer) Err() error {
	return nil
}

func (f *feedStreamer) empty() bool {
	return len(f.blocks) == 0 && len(f.current) == 0
}

// reset drops the partially played block and everything still queued.
func (f *feedStreamer) reset() {
	f.current = nil
	for {
		select {
		case <-f.blocks:
		default:
			return
		}
	}
}
