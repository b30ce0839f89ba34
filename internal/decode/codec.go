// Package decode turns stream bytes into timestamped blocks of samples.
package decode

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// DefaultCodec is used when no codec is configured.
const DefaultCodec = "mp3"

// Codec opens a byte stream of one fixed audio format. Formats are never
// sniffed: the caller picks the codec.
type Codec interface {
	Name() string
	// Resumable reports whether decoding can start at a byte offset other
	// than 0.
	Resumable() bool
	// SeekOffset maps a playback position to the byte offset to fetch from.
	SeekOffset(t, duration time.Duration, contentLength int64) int64
	// Open starts decoding rc, whose first byte sits at offset within the
	// resource.
	Open(rc io.ReadCloser, offset int64) (beep.StreamCloser, beep.Format, error)
}

var registry = map[string]func() Codec{
	"mp3":    func() Codec { return mp3Codec{} },
	"wav":    func() Codec { return &wavCodec{} },
	"flac":   func() Codec { return flacCodec{} },
	"vorbis": func() Codec { return vorbisCodec{} },
}

// Lookup returns a fresh codec by name.
func Lookup(name string) (Codec, error) {
	if name == "" {
		name = DefaultCodec
	}
	newCodec, ok := registry[name]
	if !ok {
		return nil, &DecodeError{
			Kind:   UnsupportedFormat,
			Codec:  name,
			Reason: fmt.Sprintf("no codec named %q", name),
		}
	}
	return newCodec(), nil
}

// Names lists the registered codecs.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ratioOffset estimates the byte position of t assuming a constant bitrate.
func ratioOffset(t, duration time.Duration, contentLength int64) int64 {
	if t <= 0 || duration <= 0 || contentLength <= 0 {
		return 0
	}
	offset := int64(float64(contentLength) * float64(t) / float64(duration))
	if offset >= contentLength {
		offset = contentLength - 1
	}
	return offset
}

// MP3 frames carry their own sync word, so decoding resumes at the next
// frame header after any byte offset.
type mp3Codec struct{}

func (mp3Codec) Name() string    { return "mp3" }
func (mp3Codec) Resumable() bool { return true }

func (mp3Codec) SeekOffset(t, duration time.Duration, contentLength int64) int64 {
	return ratioOffset(t, duration, contentLength)
}

func (mp3Codec) Open(rc io.ReadCloser, _ int64) (beep.StreamCloser, beep.Format, error) {
	return mp3.Decode(rc)
}

type flacCodec struct{}

func (flacCodec) Name() string    { return "flac" }
func (flacCodec) Resumable() bool { return false }

func (flacCodec) SeekOffset(time.Duration, time.Duration, int64) int64 { return 0 }

func (flacCodec) Open(rc io.ReadCloser, offset int64) (beep.StreamCloser, beep.Format, error) {
	if offset != 0 {
		return nil, beep.Format{}, errNotResumable
	}
	s, format, err := flac.Decode(rc)
	if err != nil {
		return nil, beep.Format{}, err
	}
	return &closeBoth{StreamCloser: s, rc: rc}, format, nil
}

type vorbisCodec struct{}

func (vorbisCodec) Name() string    { return "vorbis" }
func (vorbisCodec) Resumable() bool { return false }

func (vorbisCodec) SeekOffset(time.Duration, time.Duration, int64) int64 { return 0 }

func (vorbisCodec) Open(rc io.ReadCloser, offset int64) (beep.StreamCloser, beep.Format, error) {
	if offset != 0 {
		return nil, beep.Format{}, errNotResumable
	}
	return vorbis.Decode(rc)
}

// wavCodec decodes the header once and remembers the sample format, after
// which any frame-aligned offset can be read as raw PCM.
type wavCodec struct {
	mu     sync.Mutex
	format beep.Format
	known  bool
}

func (c *wavCodec) Name() string { return "wav" }

func (c *wavCodec) Resumable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.known
}

func (c *wavCodec) SeekOffset(t, duration time.Duration, contentLength int64) int64 {
	c.mu.Lock()
	format, known := c.format, c.known
	c.mu.Unlock()

	if !known {
		return ratioOffset(t, duration, contentLength)
	}
	offset := wavHeaderSize + int64(format.SampleRate.N(t))*int64(frameSize(format))
	if contentLength > 0 && offset >= contentLength {
		offset = contentLength - 1
	}
	return offset
}

func (c *wavCodec) Open(rc io.ReadCloser, offset int64) (beep.StreamCloser, beep.Format, error) {
	if offset == 0 {
		fr := &frameReader{r: rc}
		s, format, err := wav.Decode(fr)
		if err != nil {
			return nil, beep.Format{}, err
		}
		c.mu.Lock()
		c.format = format
		c.known = true
		c.mu.Unlock()
		return &wavStream{closeBoth: closeBoth{StreamCloser: s, rc: rc}, fr: fr}, format, nil
	}

	c.mu.Lock()
	format, known := c.format, c.known
	c.mu.Unlock()
	if !known {
		return nil, beep.Format{}, errNotResumable
	}

	s, err := newPCMStreamer(rc, format, offset)
	if err != nil {
		return nil, beep.Format{}, err
	}
	return s, format, nil
}

// frameReader fills every read completely. The wav decoder turns each Read
// into len/frameSize frames and drops any trailing partial frame, so short
// reads from a network pipe would otherwise lose bytes mid-stream.
type frameReader struct {
	r   io.Reader
	eof bool
}

func (f *frameReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(f.r, p)
	switch err {
	case io.ErrUnexpectedEOF:
		// Report the tail now and io.EOF on the next call.
		f.eof = true
		err = nil
	case io.EOF:
		f.eof = true
	}
	return n, err
}

// wavStream ends the stream once the body runs out. The wav decoder keeps
// reporting ok with zero frames when the data chunk is shorter than its
// header claims, which is the norm for live streams.
type wavStream struct {
	closeBoth
	fr *frameReader
}

func (s *wavStream) Stream(samples [][2]float64) (int, bool) {
	n, ok := s.closeBoth.Stream(samples)
	if n == 0 && s.fr.eof {
		return 0, false
	}
	return n, ok
}

// closeBoth closes the underlying reader for decoders that only take an
// io.Reader.
type closeBoth struct {
	beep.StreamCloser
	rc io.Closer
}

func (c *closeBoth) Close() error {
	err := c.StreamCloser.Close()
	if cerr := c.rc.Close(); err == nil {
		err = cerr
	}
	return err
}
