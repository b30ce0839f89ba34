// Package ui is the terminal front end for a single stream player.
package ui

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/streamplay/internal/config"
	"github.com/glebovdev/streamplay/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep         = 5
	SeekStep           = 10 * time.Second
	HeaderHeight       = 3
	FooterHeightWide   = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow = 6 // Narrow: 2 rows × 3 lines each
	InfoPanelHeight    = 11
	FooterBreakpoint   = 110 // Width threshold for responsive footer
	RefreshInterval    = 100 * time.Millisecond
	ProgressBarWidth   = 40
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

type UI struct {
	app             *tview.Application
	player          *player.Player
	config          *config.Config
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	urlView         *tview.TextView
	titleView       *tview.TextView
	progressView    *tview.TextView
	sizeView        *tview.TextView
	bufferView      *tview.TextView
	volumeView      *tview.TextView
	errorView       *tview.TextView
	pages           *tview.Pages
	stopUpdates     chan struct{}
	stopOnce        sync.Once
	currentVolume   int
	isMuted         bool
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	statusRenderer  *StatusRenderer
	colors          struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		errorForeground  tcell.Color
	}
}

func NewUI(p *player.Player, cfg *config.Config) *UI {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &UI{
		app:           tview.NewApplication(),
		player:        p,
		config:        cfg,
		stopUpdates:   make(chan struct{}),
		currentVolume: cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.errorForeground = config.GetColor(cfg.Theme.ErrorForeground)

	p.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer(p)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.config.LastURL = ui.player.URL()
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) stop() {
	ui.stopOnce.Do(func() {
		close(ui.stopUpdates)
	})
	ui.player.Stop()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupUI()
	ui.configureScreen()
	ui.app.SetRoot(ui.pages, true)

	go ui.refreshLoop()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) setupUI() {
	header := ui.createHeader()
	info := ui.createInfoPanel()
	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(info, InfoPanelHeight, 0, false).
		AddItem(nil, 0, 1, false).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})

	ui.updateVolumeDisplay()
	ui.refresh()
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 1, 0, false).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false).
		AddItem(nil, 1, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) newValueView() *tview.TextView {
	tv := tview.NewTextView()
	tv.SetDynamicColors(true)
	tv.SetWrap(false)
	tv.SetTextColor(ui.colors.highlight)
	tv.SetBackgroundColor(ui.colors.background)
	return tv
}

func (ui *UI) createInfoPanel() *tview.Flex {
	label := func(text string) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(" " + text)
		tv.SetTextColor(ui.colors.foreground)
		tv.SetBackgroundColor(ui.colors.background)
		tv.SetWrap(false)
		return tv
	}

	ui.urlView = ui.newValueView()
	ui.urlView.SetText(" " + tview.Escape(ui.player.URL()))
	ui.titleView = ui.newValueView()
	ui.progressView = ui.newValueView()
	ui.sizeView = ui.newValueView()
	ui.bufferView = ui.newValueView()
	ui.volumeView = ui.newValueView()
	ui.errorView = ui.newValueView()
	ui.errorView.SetTextColor(ui.colors.errorForeground)

	row := func(name string, value *tview.TextView) *tview.Flex {
		f := tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(label(name), 10, 0, false).
			AddItem(value, 0, 1, false)
		f.SetBackgroundColor(ui.colors.background)
		return f
	}

	panel := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(row("Stream:", ui.urlView), 1, 0, false).
		AddItem(row("Title:", ui.titleView), 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(row("Position:", ui.progressView), 1, 0, false).
		AddItem(row("Size:", ui.sizeView), 1, 0, false).
		AddItem(row("Buffer:", ui.bufferView), 1, 0, false).
		AddItem(row("Volume:", ui.volumeView), 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.errorView, 0, 1, false)
	panel.SetBackgroundColor(ui.colors.background)

	padded := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 2, 0, false).
		AddItem(panel, 0, 1, false).
		AddItem(nil, 2, 0, false)
	padded.SetBackgroundColor(ui.colors.background)
	return padded
}

// renderProgressBar draws played against duration. Without a known
// duration the bar stays empty.
func renderProgressBar(played, duration time.Duration, width int) string {
	filled := 0
	if duration > 0 {
		filled = int(int64(played) * int64(width) / int64(duration))
	}
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (ui *UI) refresh() {
	p := ui.player

	title := p.Title()
	if title == "" {
		title = "-"
	}
	ui.titleView.SetText(" " + tview.Escape(title))

	played, duration := p.PlayedTime(), p.Duration()
	durationText := formatDuration(duration)
	if duration > 0 && !p.DurationExact() {
		durationText = "~" + durationText
	}
	ui.progressView.SetText(fmt.Sprintf(" %s %s / %s",
		renderProgressBar(played, duration, ProgressBarWidth),
		formatDuration(played), durationText))

	size := formatSize(p.ContentLength())
	if size == "" {
		size = "unknown"
	}
	ui.sizeView.SetText(" " + size)

	buf := p.Buffer()
	ui.bufferView.SetText(fmt.Sprintf(" %s %.1fs / %.1fs",
		ui.statusRenderer.formatBufferHealth(buf.Health()),
		buf.Filled.Seconds(), buf.HighWatermark.Seconds()))

	if err := p.Err(); err != nil {
		ui.errorView.SetText(" " + tview.Escape(friendlyErrorMessage(err)))
	} else {
		ui.errorView.SetText("")
	}
}

func (ui *UI) refreshLoop() {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ui.stopUpdates:
			return
		case <-ticker.C:
			ui.statusRenderer.AdvanceAnimation()
			ui.app.QueueUpdateDraw(ui.refresh)
		}
	}
}

// seekBy moves the playback position by delta from where it is now.
func (ui *UI) seekBy(delta time.Duration) {
	target := ui.player.PlayedTime() + delta
	if target < 0 {
		target = 0
	}
	log.Debug().Msgf("Seeking to %v", target)
	ui.player.SeekToProgress(target)
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.player.TogglePause()
			return nil
		case 'p', 'P':
			ui.player.Play()
			ui.SaveConfig()
			return nil
		case 's', 'S':
			ui.player.Stop()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		}
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seekBy(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seekBy(-SeekStep)
		return nil
	case tcell.KeyUp:
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyDown:
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}
