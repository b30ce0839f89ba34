package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "streamplay"
	AppTagline      = "Terminal stream player"
	AppDescription  = "A terminal player for audio streams served over HTTP"
	AppAuthor       = "Ilya Glebov"
	AppProjectURL   = "https://github.com/glebovdev/streamplay"
	AppProjectShort = "github.com/glebovdev/streamplay"

	ConfigDir      = ".config/streamplay"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100
	DefaultCodec   = "mp3"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/streamplay/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// UserAgent is sent with every stream request unless the config overrides it.
func UserAgent() string {
	return fmt.Sprintf("streamplay/%s", AppVersion)
}

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	MutedVolume      string `yaml:"muted_volume"`
	HeaderBackground string `yaml:"header_background"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
	ErrorForeground  string `yaml:"error_foreground"`
}

// Buffer tunes the decoded audio queue between decoder and playback.
type Buffer struct {
	LowWatermark  time.Duration `yaml:"low_watermark"`
	HighWatermark time.Duration `yaml:"high_watermark"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	UnderrunPolls int           `yaml:"underrun_polls"`
	BlockFrames   int           `yaml:"block_frames"`
}

type Network struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	UserAgent      string        `yaml:"user_agent"`
	IcyMetadata    bool          `yaml:"icy_metadata"`
}

type Cache struct {
	Enabled bool          `yaml:"enabled"`
	Expiry  time.Duration `yaml:"expiry"`
}

type Config struct {
	Volume    int     `yaml:"volume"`
	LastURL   string  `yaml:"last_url"`
	Autostart bool    `yaml:"autostart"`
	Codec     string  `yaml:"codec"`
	Buffer    Buffer  `yaml:"buffer"`
	Network   Network `yaml:"network"`
	Cache     Cache   `yaml:"cache"`
	Theme     Theme   `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

// normalize clamps values a hand-edited file may have put out of range.
func (c *Config) normalize() {
	defaults := DefaultConfig()

	c.Volume = ClampVolume(c.Volume)
	if c.Codec == "" {
		c.Codec = defaults.Codec
	}
	if c.Buffer.HighWatermark <= 0 {
		c.Buffer.HighWatermark = defaults.Buffer.HighWatermark
	}
	if c.Buffer.LowWatermark < 0 || c.Buffer.LowWatermark > c.Buffer.HighWatermark {
		c.Buffer.LowWatermark = defaults.Buffer.LowWatermark
	}
	if c.Buffer.PollTimeout <= 0 {
		c.Buffer.PollTimeout = defaults.Buffer.PollTimeout
	}
	if c.Buffer.UnderrunPolls <= 0 {
		c.Buffer.UnderrunPolls = defaults.Buffer.UnderrunPolls
	}
	if c.Buffer.BlockFrames <= 0 {
		c.Buffer.BlockFrames = defaults.Buffer.BlockFrames
	}
	if c.Network.ConnectTimeout <= 0 {
		c.Network.ConnectTimeout = defaults.Network.ConnectTimeout
	}
	if c.Network.ReadTimeout <= 0 {
		c.Network.ReadTimeout = defaults.Network.ReadTimeout
	}
	if c.Cache.Expiry <= 0 {
		c.Cache.Expiry = defaults.Cache.Expiry
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:    DefaultVolume,
		LastURL:   "",
		Autostart: false,
		Codec:     DefaultCodec,
		Buffer: Buffer{
			LowWatermark:  500 * time.Millisecond,
			HighWatermark: 5 * time.Second,
			PollTimeout:   100 * time.Millisecond,
			UnderrunPolls: 3,
			BlockFrames:   4096,
		},
		Network: Network{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    5 * time.Second,
			IcyMetadata:    true,
		},
		Cache: Cache{
			Enabled: false,
			Expiry:  7 * 24 * time.Hour,
		},
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			MutedVolume:      "#fe0702",
			HeaderBackground: "#473533",
			HelpBackground:   "#322f45",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
			ErrorForeground:  "#fe0702",
		},
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
