package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
)

// Resumed WAV streams assume the canonical RIFF layout: a 44-byte header
// directly followed by interleaved little-endian samples.
const wavHeaderSize = 44

var errNotResumable = errors.New("codec cannot start decoding mid-stream")

func frameSize(f beep.Format) int {
	return f.NumChannels * f.Precision
}

// pcmStreamer reads raw interleaved PCM frames.
type pcmStreamer struct {
	rc     io.ReadCloser
	format beep.Format
	buf    []byte
	err    error
}

// newPCMStreamer positions rc on the first whole frame at or after offset.
func newPCMStreamer(rc io.ReadCloser, format beep.Format, offset int64) (*pcmStreamer, error) {
	size := frameSize(format)
	if size <= 0 || format.Precision > 3 || format.NumChannels > 2 {
		return nil, fmt.Errorf("unsupported PCM layout: %d channels, %d bytes per sample",
			format.NumChannels, format.Precision)
	}

	var skip int64
	if offset < wavHeaderSize {
		skip = wavHeaderSize - offset
	} else if rem := (offset - wavHeaderSize) % int64(size); rem != 0 {
		skip = int64(size) - rem
	}
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, rc, skip); err != nil {
			return nil, err
		}
	}

	return &pcmStreamer{rc: rc, format: format}, nil
}

func (p *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if p.err != nil {
		return 0, false
	}

	size := frameSize(p.format)
	want := len(samples) * size
	if cap(p.buf) < want {
		p.buf = make([]byte, want)
	}
	buf := p.buf[:want]

	read, err := io.ReadFull(p.rc, buf)
	frames := read / size
	for i := 0; i < frames; i++ {
		frame := buf[i*size : (i+1)*size]
		left := p.sample(frame[:p.format.Precision])
		right := left
		if p.format.NumChannels == 2 {
			right = p.sample(frame[p.format.Precision:])
		}
		samples[i] = [2]float64{left, right}
	}

	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			p.err = err
		} else {
			p.err = io.EOF
		}
	}
	return frames, frames > 0
}

func (p *pcmStreamer) sample(b []byte) float64 {
	switch p.format.Precision {
	case 1:
		return (float64(b[0]) - 128) / 128
	case 2:
		return float64(int16(uint16(b[0])|uint16(b[1])<<8)) / (1 << 15)
	default:
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return float64(v) / (1 << 23)
	}
}

func (p *pcmStreamer) Err() error {
	if errors.Is(p.err, io.EOF) {
		return nil
	}
	return p.err
}

func (p *pcmStreamer) Close() error {
	return p.rc.Close()
}
