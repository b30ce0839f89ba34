package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/streamplay/internal/player"
	"github.com/rivo/tview"
)

// PlayerView is the read side of a player the status line renders from.
type PlayerView interface {
	Status() player.Status
	PlayedTime() time.Duration
	Duration() time.Duration
	DurationExact() bool
	ContentLength() int64
	Buffer() player.BufferState
	Title() string
	Err() error
}

type StatusRenderer struct {
	player        PlayerView
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	bufferHealth         int
	bufferTickCount      int
	bufferTicksPerUpdate int

	primaryColor string
}

func NewStatusRenderer(p PlayerView) *StatusRenderer {
	return &StatusRenderer{
		player:               p,
		maxAnimFrame:         4,
		ticksPerFrame:        8, // Slow down animation (8 ticks per frame)
		bufferTicksPerUpdate: 4,
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}

	s.bufferTickCount++
	if s.bufferTickCount >= s.bufferTicksPerUpdate {
		s.bufferTickCount = 0
		if s.player != nil {
			s.bufferHealth = s.player.Buffer().Health()
		}
	}
}

func (s *StatusRenderer) Render() string {
	if s.player == nil {
		return s.renderIdle()
	}

	switch s.player.Status() {
	case player.Waiting:
		return s.renderWaiting()
	case player.Playing:
		return s.renderPlaying()
	case player.Paused:
		return s.renderPaused()
	case player.Finished:
		return s.renderFinished()
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Press p to play"
	}
	return "○ IDLE │ Press p to play"
}

func (s *StatusRenderer) renderWaiting() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	parts := []string{fmt.Sprintf("%s WAITING", circles[s.animFrame])}
	if s.player != nil {
		parts = append(parts, s.formatBufferHealth(s.bufferHealth))
	}
	return joinParts(parts)
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " PLAYING"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, s.formatProgress())
	if size := formatSize(s.player.ContentLength()); size != "" {
		parts = append(parts, size)
	}
	parts = append(parts, s.formatBufferHealth(s.bufferHealth))

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused() string {
	parts := []string{PauseIcon + " PAUSED"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, s.formatProgress())
	if size := formatSize(s.player.ContentLength()); size != "" {
		parts = append(parts, size)
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderFinished() string {
	if err := s.player.Err(); err != nil {
		return fmt.Sprintf("✗ %s", firstLine(friendlyErrorMessage(err)))
	}
	return joinParts([]string{"■ FINISHED", s.formatProgress()})
}

func (s *StatusRenderer) formatProgress() string {
	duration := formatDuration(s.player.Duration())
	if !s.player.DurationExact() && s.player.Duration() > 0 {
		duration = "~" + duration
	}
	return formatDuration(s.player.PlayedTime()) + " / " + duration
}

func (s *StatusRenderer) formatBufferHealth(percent int) string {
	signalBars := []string{"▁", "▂", "▃", "▅", "▇"}
	const numBars = 5

	filled := (percent * numBars) / 100
	if filled > numBars {
		filled = numBars
	}

	bar := ""
	for i := 0; i < numBars; i++ {
		if i < filled {
			bar += signalBars[i]
		} else {
			bar += "▁"
		}
	}

	return bar
}

// formatDuration renders d as m:ss, or h:mm:ss past an hour. Zero renders
// as --:-- since it means not yet known.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(bytes))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func joinParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " │ " + parts[i]
	}
	return result
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.player.Status() {
	case player.Paused:
		return fmt.Sprintf("[%s]Space[-] resume  [%s]←/→[-] seek  [%s]s[-] stop", keyColor, keyColor, keyColor)
	case player.Playing, player.Waiting:
		return fmt.Sprintf("[%s]Space[-] pause  [%s]←/→[-] seek  [%s]s[-] stop", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]p[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	for row := y; row < y+height; row++ {
		for col := x; col < x+helpWidth; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.helpBackground))
		}
		for col := x + helpWidth; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.background))
		}
	}

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := height / 2
	if helpHeight < 1 {
		helpHeight = 1
	}
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	for row := y; row < y+height; row++ {
		bg := ui.colors.background
		if row < helpBoxEnd {
			bg = ui.colors.helpBackground
		}
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(bg))
		}
	}

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
