package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebovdev/streamplay/internal/decode"
	"github.com/glebovdev/streamplay/internal/player"
	"github.com/glebovdev/streamplay/internal/source"
)

type fakeView struct {
	status        player.Status
	played        time.Duration
	duration      time.Duration
	exact         bool
	contentLength int64
	buffer        player.BufferState
	title         string
	err           error
}

func (f *fakeView) Status() player.Status      { return f.status }
func (f *fakeView) PlayedTime() time.Duration  { return f.played }
func (f *fakeView) Duration() time.Duration    { return f.duration }
func (f *fakeView) DurationExact() bool        { return f.exact }
func (f *fakeView) ContentLength() int64       { return f.contentLength }
func (f *fakeView) Buffer() player.BufferState { return f.buffer }
func (f *fakeView) Title() string              { return f.title }
func (f *fakeView) Err() error                 { return f.err }

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{
			name:     "empty slice",
			parts:    []string{},
			expected: "",
		},
		{
			name:     "single part",
			parts:    []string{"PLAYING"},
			expected: "PLAYING",
		},
		{
			name:     "two parts",
			parts:    []string{"PLAYING", "0:10 / 1:00"},
			expected: "PLAYING │ 0:10 / 1:00",
		},
		{
			name:     "nil slice",
			parts:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := joinParts(tt.parts)
			if result != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, result, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "--:--"},
		{-time.Second, "--:--"},
		{999 * time.Millisecond, "0:00"},
		{10 * time.Second, "0:10"},
		{90 * time.Second, "1:30"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatDuration(tt.in); got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	if got := formatSize(0); got != "" {
		t.Errorf("formatSize(0) = %q, want empty", got)
	}
	if got := formatSize(-1); got != "" {
		t.Errorf("formatSize(-1) = %q, want empty", got)
	}
	if got := formatSize(100044); got != "98 KiB" {
		t.Errorf("formatSize(100044) = %q, want 98 KiB", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		played   time.Duration
		duration time.Duration
		filled   int
	}{
		{"unknown duration", 5 * time.Second, 0, 0},
		{"start", 0, 10 * time.Second, 0},
		{"half", 5 * time.Second, 10 * time.Second, 5},
		{"end", 10 * time.Second, 10 * time.Second, 10},
		{"past end", 20 * time.Second, 10 * time.Second, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.played, tt.duration, 10)
			if n := strings.Count(bar, "█"); n != tt.filled {
				t.Errorf("filled = %d, want %d (%q)", n, tt.filled, bar)
			}
			if n := len([]rune(bar)); n != 10 {
				t.Errorf("bar width = %d, want 10", n)
			}
		})
	}
}

func TestRenderVolumeBar(t *testing.T) {
	bar := renderVolumeBar(50, false, "orange", "red")
	if !strings.Contains(bar, "50%") {
		t.Errorf("renderVolumeBar() = %q, expected to contain 50%%", bar)
	}
	if n := strings.Count(bar, "█"); n != volumeBarWidth/2 {
		t.Errorf("filled = %d, want %d", n, volumeBarWidth/2)
	}

	muted := renderVolumeBar(50, true, "orange", "red")
	if !strings.Contains(muted, "[red::s]") {
		t.Errorf("muted volume bar = %q, expected strike-through", muted)
	}

	if over := renderVolumeBar(150, false, "orange", "red"); !strings.Contains(over, "100%") {
		t.Errorf("renderVolumeBar(150) = %q, expected clamp to 100%%", over)
	}
}

func TestFriendlyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "not found",
			err:      &source.TransportError{Kind: source.NotFound, StatusCode: 404},
			contains: "404",
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("open: %w", &source.TransportError{Kind: source.Timeout}),
			contains: "timed out",
		},
		{
			name:     "other status",
			err:      &source.TransportError{Kind: source.ConnectionFailed, StatusCode: 503},
			contains: "503",
		},
		{
			name:     "unsupported format",
			err:      &decode.DecodeError{Kind: decode.UnsupportedFormat, Codec: "flac"},
			contains: "flac",
		},
		{
			name:     "corrupt data",
			err:      &decode.DecodeError{Kind: decode.CorruptData},
			contains: "corrupt",
		},
		{
			name:     "no such host",
			err:      errors.New("dial tcp: lookup example.com: no such host"),
			contains: "Unable to connect",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:80: connection refused"),
			contains: "Connection refused",
		},
		{
			name:     "dial error truncation",
			err:      errors.New("failed to connect: dial tcp something something"),
			contains: "failed to connect",
		},
		{
			name:     "generic error (short)",
			err:      errors.New("some error"),
			contains: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := friendlyErrorMessage(tt.err)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("friendlyErrorMessage(%v) = %q, expected to contain %q",
					tt.err, result, tt.contains)
			}
		})
	}
}

func TestFriendlyErrorMessageLongError(t *testing.T) {
	result := friendlyErrorMessage(errors.New(strings.Repeat("x", 200)))

	if len(result) > 110 {
		t.Errorf("Long error not truncated properly, got length %d", len(result))
	}
}

func TestStatusRendererFormatBufferHealth(t *testing.T) {
	renderer := &StatusRenderer{}

	for _, percent := range []int{0, 50, 100, 120} {
		t.Run(fmt.Sprint(percent), func(t *testing.T) {
			result := renderer.formatBufferHealth(percent)
			if n := len([]rune(result)); n != 5 {
				t.Errorf("formatBufferHealth(%d) returned %d runes, want 5", percent, n)
			}
		})
	}

	if renderer.formatBufferHealth(0) == renderer.formatBufferHealth(100) {
		t.Error("0% and 100% buffer health should look different")
	}
}

func TestStatusRendererAdvanceAnimation(t *testing.T) {
	view := &fakeView{buffer: player.BufferState{Filled: time.Second, HighWatermark: 4 * time.Second}}
	renderer := NewStatusRenderer(view)

	initialFrame := renderer.animFrame

	for i := 0; i < renderer.ticksPerFrame-1; i++ {
		renderer.AdvanceAnimation()
	}

	if renderer.animFrame != initialFrame {
		t.Error("Animation frame changed before ticksPerFrame ticks")
	}

	renderer.AdvanceAnimation()

	if renderer.animFrame != (initialFrame+1)%renderer.maxAnimFrame {
		t.Errorf("Animation frame = %d, want %d",
			renderer.animFrame, (initialFrame+1)%renderer.maxAnimFrame)
	}

	if renderer.bufferHealth != 25 {
		t.Errorf("bufferHealth = %d, want 25", renderer.bufferHealth)
	}
}

func TestStatusRendererRender(t *testing.T) {
	tests := []struct {
		name     string
		view     *fakeView
		contains []string
	}{
		{
			name:     "idle",
			view:     &fakeView{status: player.Idle},
			contains: []string{"IDLE"},
		},
		{
			name:     "waiting",
			view:     &fakeView{status: player.Waiting},
			contains: []string{"WAITING"},
		},
		{
			name: "playing with estimate",
			view: &fakeView{
				status:        player.Playing,
				played:        30 * time.Second,
				duration:      2 * time.Minute,
				contentLength: 2 << 20,
			},
			contains: []string{"PLAYING", "0:30 / ~2:00", "2.0 MiB"},
		},
		{
			name: "paused exact",
			view: &fakeView{
				status:   player.Paused,
				played:   5 * time.Second,
				duration: 10 * time.Second,
				exact:    true,
			},
			contains: []string{"PAUSED", "0:05 / 0:10"},
		},
		{
			name: "finished",
			view: &fakeView{
				status:   player.Finished,
				played:   10 * time.Second,
				duration: 10 * time.Second,
				exact:    true,
			},
			contains: []string{"FINISHED", "0:10 / 0:10"},
		},
		{
			name: "finished with error",
			view: &fakeView{
				status: player.Finished,
				err:    &source.TransportError{Kind: source.NotFound, StatusCode: 404},
			},
			contains: []string{"✗", "404"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewStatusRenderer(tt.view).Render()
			for _, want := range tt.contains {
				if !strings.Contains(result, want) {
					t.Errorf("Render() = %q, expected to contain %q", result, want)
				}
			}
		})
	}
}

func TestStatusRendererMuted(t *testing.T) {
	renderer := NewStatusRenderer(&fakeView{status: player.Playing})
	renderer.SetMuted(true)

	if result := renderer.Render(); !strings.Contains(result, "MUTED") {
		t.Errorf("Render() when muted = %q, expected to contain 'MUTED'", result)
	}

	renderer.SetPrimaryColor("red")
	if result := renderer.Render(); !strings.Contains(result, "[red]") {
		t.Errorf("Render() = %q, expected primary color tag", result)
	}
}

func TestStatusRendererNilPlayer(t *testing.T) {
	renderer := NewStatusRenderer(nil)
	if result := renderer.Render(); !strings.Contains(result, "IDLE") {
		t.Errorf("Render() = %q, expected to contain 'IDLE'", result)
	}
	// Must not touch the nil player.
	renderer.AdvanceAnimation()
}
