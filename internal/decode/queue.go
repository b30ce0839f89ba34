package decode

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/glebovdev/streamplay/internal/buffer"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

// DefaultBlockFrames is the number of frames decoded per block.
const DefaultBlockFrames = 4096

// Start describes where in the resource a decode run begins.
type Start struct {
	// Offset is the byte position of the first byte read.
	Offset int64
	// Base is the timestamp of the first decoded frame.
	Base time.Duration
	// SkipTo drops decoded frames that end before this timestamp.
	SkipTo time.Duration
	// ContentLength is the resource length, or a negative value when unknown.
	ContentLength int64
}

// Progress is reported after every block pushed and once more when the
// stream ends cleanly with an exact duration.
type Progress struct {
	// Duration is the estimated total duration, 0 when it cannot be estimated.
	Duration time.Duration
	Exact    bool
}

// Options configures a Queue.
type Options struct {
	BlockFrames int
	OnProgress  func(Progress)
	// SourceErr returns the transport failure that ended the byte stream,
	// which takes precedence over the decoder error it caused.
	SourceErr func() error
}

// Queue decodes one byte stream into the ring.
type Queue struct {
	codec       Codec
	ring        *buffer.Ring
	blockFrames int
	onProgress  func(Progress)
	sourceErr   func() error
}

func New(codec Codec, ring *buffer.Ring, opts Options) *Queue {
	blockFrames := opts.BlockFrames
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}
	return &Queue{
		codec:       codec,
		ring:        ring,
		blockFrames: blockFrames,
		onProgress:  opts.OnProgress,
		sourceErr:   opts.SourceErr,
	}
}

// Run decodes rc until it ends, fails or ctx is cancelled. The ring is
// closed on return so the consumer can drain what was queued. A clean end
// of stream returns nil.
func (q *Queue) Run(ctx context.Context, rc io.ReadCloser, start Start) error {
	defer q.ring.Close()

	counter := &countingReader{rc: rc}
	streamer, format, err := q.codec.Open(counter, start.Offset)
	if err != nil {
		rc.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return q.fail(UnsupportedFormat, start.Offset+counter.n, "cannot open stream", err)
	}
	defer streamer.Close()

	log.Debug().
		Str("codec", q.codec.Name()).
		Int64("offset", start.Offset).
		Dur("base", start.Base).
		Msgf("Decoding stream (sample rate: %d Hz, channels: %d)", format.SampleRate, format.NumChannels)

	var frames int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		samples := make([][2]float64, q.blockFrames)
		n, ok := streamer.Stream(samples)
		if n == 0 && !ok {
			break
		}
		if n == 0 {
			continue
		}

		pts := start.Base + format.SampleRate.D(frames)
		frames += n
		end := start.Base + format.SampleRate.D(frames)
		samples = samples[:n]

		if end <= start.SkipTo {
			continue
		}
		if pts < start.SkipTo {
			drop := format.SampleRate.N(start.SkipTo - pts)
			if drop > 0 && drop < n {
				samples = samples[drop:]
				pts = start.Base + format.SampleRate.D(frames-n+drop)
			}
		}

		block := buffer.Block{
			PTS:      pts,
			Duration: end - pts,
			Samples:  samples,
			Format:   format,
		}
		if err := q.ring.Push(ctx, block); err != nil {
			if errors.Is(err, buffer.ErrClosed) {
				return nil
			}
			return err
		}

		q.report(Progress{Duration: estimateDuration(start, format, frames, counter.n)})
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := streamer.Err(); err != nil {
		return q.fail(CorruptData, start.Offset+counter.n, "stream decoding error", err)
	}
	if err := q.transportErr(); err != nil {
		return err
	}

	exact := start.Base + format.SampleRate.D(frames)
	log.Debug().Dur("duration", exact).Msg("Decoder reached end of stream")
	q.report(Progress{Duration: exact, Exact: true})
	return nil
}

func (q *Queue) report(p Progress) {
	if q.onProgress != nil {
		q.onProgress(p)
	}
}

func (q *Queue) transportErr() error {
	if q.sourceErr == nil {
		return nil
	}
	return q.sourceErr()
}

func (q *Queue) fail(kind ErrorKind, offset int64, reason string, cause error) error {
	if err := q.transportErr(); err != nil {
		return err
	}
	err := &DecodeError{
		Kind:   kind,
		Codec:  q.codec.Name(),
		Offset: offset,
		Reason: reason,
		Cause:  cause,
	}
	log.Error().Err(err).Msg("Decoder failed")
	return err
}

// estimateDuration extrapolates the decoded time over the bytes not yet
// consumed.
func estimateDuration(start Start, format beep.Format, frames int, consumed int64) time.Duration {
	remaining := start.ContentLength - start.Offset
	if start.ContentLength <= 0 || remaining <= 0 || consumed <= 0 || frames <= 0 {
		return 0
	}
	decoded := format.SampleRate.D(frames)
	return start.Base + time.Duration(float64(decoded)*float64(remaining)/float64(consumed))
}

// countingReader tracks how many bytes the codec has pulled. Only the decode
// goroutine reads it.
type countingReader struct {
	rc io.ReadCloser
	n  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Close() error {
	return c.rc.Close()
}
