package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.LastURL != "" {
		t.Errorf("DefaultConfig().LastURL = %q, want empty string", cfg.LastURL)
	}

	if cfg.Autostart != false {
		t.Errorf("DefaultConfig().Autostart = %v, want false", cfg.Autostart)
	}

	if cfg.Codec != DefaultCodec {
		t.Errorf("DefaultConfig().Codec = %q, want %q", cfg.Codec, DefaultCodec)
	}

	if cfg.Buffer.LowWatermark >= cfg.Buffer.HighWatermark {
		t.Errorf("low watermark %v must be below high watermark %v", cfg.Buffer.LowWatermark, cfg.Buffer.HighWatermark)
	}

	if cfg.Buffer.UnderrunPolls != 3 {
		t.Errorf("DefaultConfig().Buffer.UnderrunPolls = %d, want 3", cfg.Buffer.UnderrunPolls)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Volume = 85
	testCfg.LastURL = "http://example.com/stream.mp3"
	testCfg.Codec = "vorbis"
	testCfg.Buffer.HighWatermark = 8 * time.Second
	testCfg.Network.ReadTimeout = 12 * time.Second
	testCfg.Cache.Enabled = true

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}
	if loadedCfg.LastURL != testCfg.LastURL {
		t.Errorf("Load().LastURL = %q, want %q", loadedCfg.LastURL, testCfg.LastURL)
	}
	if loadedCfg.Codec != "vorbis" {
		t.Errorf("Load().Codec = %q, want vorbis", loadedCfg.Codec)
	}
	if loadedCfg.Buffer.HighWatermark != 8*time.Second {
		t.Errorf("Load().Buffer.HighWatermark = %v, want 8s", loadedCfg.Buffer.HighWatermark)
	}
	if loadedCfg.Network.ReadTimeout != 12*time.Second {
		t.Errorf("Load().Network.ReadTimeout = %v, want 12s", loadedCfg.Network.ReadTimeout)
	}
	if !loadedCfg.Cache.Enabled {
		t.Error("Load().Cache.Enabled = false, want true")
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with non-existent file returned Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.LastURL != "" {
		t.Errorf("Load() with non-existent file returned LastURL = %q, want empty string", cfg.LastURL)
	}
}

func TestVolumeValidation(t *testing.T) {
	tests := []struct {
		name           string
		inputVolume    int
		expectedVolume int
	}{
		{"valid volume 50", 50, 50},
		{"valid volume 0", 0, 0},
		{"valid volume 100", 100, 100},
		{"negative volume", -10, 0},
		{"volume over 100", 150, 100},
		{"volume way over 100", 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("HOME", tmpDir)

			testCfg := DefaultConfig()
			testCfg.Volume = tt.inputVolume

			err := testCfg.Save()
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loadedCfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loadedCfg.Volume != tt.expectedVolume {
				t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, tt.expectedVolume)
			}
		})
	}
}

func TestDurationsFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	content := `volume: 40
codec: wav
buffer:
  low_watermark: 250ms
  high_watermark: 3s
  poll_timeout: 50ms
network:
  connect_timeout: 2s
cache:
  enabled: true
  expiry: 24h
`
	_ = os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(content), 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Buffer.LowWatermark != 250*time.Millisecond {
		t.Errorf("LowWatermark = %v, want 250ms", cfg.Buffer.LowWatermark)
	}
	if cfg.Buffer.HighWatermark != 3*time.Second {
		t.Errorf("HighWatermark = %v, want 3s", cfg.Buffer.HighWatermark)
	}
	if cfg.Buffer.PollTimeout != 50*time.Millisecond {
		t.Errorf("PollTimeout = %v, want 50ms", cfg.Buffer.PollTimeout)
	}
	if cfg.Network.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want 2s", cfg.Network.ConnectTimeout)
	}
	if cfg.Cache.Expiry != 24*time.Hour {
		t.Errorf("Cache.Expiry = %v, want 24h", cfg.Cache.Expiry)
	}
	// Unset keys keep their defaults.
	if cfg.Network.ReadTimeout != DefaultConfig().Network.ReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.Network.ReadTimeout)
	}
	if !cfg.Network.IcyMetadata {
		t.Error("IcyMetadata should stay enabled by default")
	}
}

func TestNormalize(t *testing.T) {
	defaults := DefaultConfig()

	cfg := &Config{
		Volume: 300,
		Buffer: Buffer{
			LowWatermark:  10 * time.Second,
			HighWatermark: 2 * time.Second,
			PollTimeout:   -time.Second,
		},
	}
	cfg.normalize()

	if cfg.Volume != MaxVolume {
		t.Errorf("Volume = %d, want %d", cfg.Volume, MaxVolume)
	}
	if cfg.Codec != DefaultCodec {
		t.Errorf("Codec = %q, want %q", cfg.Codec, DefaultCodec)
	}
	if cfg.Buffer.LowWatermark != defaults.Buffer.LowWatermark {
		t.Errorf("LowWatermark above high watermark should reset, got %v", cfg.Buffer.LowWatermark)
	}
	if cfg.Buffer.HighWatermark != 2*time.Second {
		t.Errorf("HighWatermark = %v, want 2s", cfg.Buffer.HighWatermark)
	}
	if cfg.Buffer.PollTimeout != defaults.Buffer.PollTimeout {
		t.Errorf("PollTimeout = %v, want default", cfg.Buffer.PollTimeout)
	}
	if cfg.Buffer.UnderrunPolls != defaults.Buffer.UnderrunPolls {
		t.Errorf("UnderrunPolls = %d, want default", cfg.Buffer.UnderrunPolls)
	}
}

func TestThemeDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, _ := Load()
	defaults := DefaultConfig().Theme

	if cfg.Theme != defaults {
		t.Errorf("Load().Theme = %+v, want defaults %+v", cfg.Theme, defaults)
	}
}

func TestThemePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Theme.Highlight = "#00ff00"
	testCfg.Theme.ErrorForeground = "red"

	if err := testCfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Theme.Highlight != "#00ff00" {
		t.Errorf("Theme.Highlight = %q, want #00ff00", loadedCfg.Theme.Highlight)
	}
	if loadedCfg.Theme.ErrorForeground != "red" {
		t.Errorf("Theme.ErrorForeground = %q, want red", loadedCfg.Theme.ErrorForeground)
	}
}

func TestGetColor(t *testing.T) {
	tests := []struct {
		name     string
		colorStr string
	}{
		{"empty string returns default", ""},
		{"default keyword returns default", "default"},
		{"named color white", "white"},
		{"named color red", "red"},
		{"hex color", "#FF0000"},
		{"hex color lowercase", "#ff0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetColor(tt.colorStr)
			isDefault := tt.colorStr == "" || tt.colorStr == "default"
			if isDefault && result != 0 {
				t.Errorf("GetColor(%q) = %v, want ColorDefault (0)", tt.colorStr, result)
			}
			if !isDefault && result == 0 {
				t.Errorf("GetColor(%q) returned ColorDefault", tt.colorStr)
			}
		})
	}
}

func TestAutostartPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.LastURL = "http://example.com/live.mp3"
	testCfg.Autostart = true

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Autostart != true {
		t.Errorf("Load().Autostart = %v, want true", loadedCfg.Autostart)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	configPath := filepath.Join(configDir, ConfigFileName)

	invalidYAML := []byte("this is not: valid: yaml: [")
	_ = os.WriteFile(configPath, invalidYAML, 0644)

	cfg, err := Load()
	if err == nil {
		t.Log("Load() returned no error for invalid YAML, but returned default config")
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with invalid YAML returned Volume = %d, want default %d", cfg.Volume, DefaultVolume)
	}
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if path == "" {
		t.Error("GetConfigPath() returned empty string")
	}

	if !filepath.IsAbs(path) {
		t.Errorf("GetConfigPath() = %q, want absolute path", path)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, "streamplay/") {
		t.Errorf("UserAgent() = %q, want streamplay/ prefix", ua)
	}
}
