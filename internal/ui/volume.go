package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/streamplay/internal/config"
	"github.com/rs/zerolog/log"
)

const volumeBarWidth = 20

// renderVolumeBar draws the volume as a horizontal gauge with a percentage.
// While muted the remembered level is shown struck through.
func renderVolumeBar(volume int, muted bool, highlight, mutedColor string) string {
	volume = config.ClampVolume(volume)
	filled := (volume * volumeBarWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", volumeBarWidth-filled)

	if muted {
		return fmt.Sprintf("[%s]%s[-] [%s::s]%d%%[-::-]", mutedColor, bar, mutedColor, volume)
	}
	return fmt.Sprintf("[%s]%s[-] %d%%", highlight, bar, volume)
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView == nil {
		return
	}

	ui.mu.Lock()
	displayVolume := ui.currentVolume
	isMuted := ui.isMuted
	if isMuted {
		displayVolume = ui.config.Volume
	}
	ui.mu.Unlock()

	ui.volumeView.SetText(" " + renderVolumeBar(displayVolume, isMuted,
		ui.colors.highlight.String(), ui.config.Theme.MutedVolume))
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()

	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
		ui.mu.Unlock()

		ui.player.SetVolume(ui.currentVolume)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", ui.currentVolume)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	ui.mu.Unlock()

	ui.player.SetVolume(ui.currentVolume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", ui.currentVolume)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		if ui.currentVolume == 0 {
			ui.config.Volume = config.DefaultVolume
		} else {
			ui.config.Volume = ui.currentVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		log.Debug().Msgf("Muted, saved volume %d%%", ui.config.Volume)
	}
	ui.statusRenderer.SetMuted(ui.isMuted)
	ui.mu.Unlock()

	ui.player.SetVolume(ui.currentVolume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}
