package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/streamplay/internal/cache"
	"github.com/glebovdev/streamplay/internal/config"
	"github.com/glebovdev/streamplay/internal/decode"
	"github.com/glebovdev/streamplay/internal/output"
	"github.com/glebovdev/streamplay/internal/player"
	"github.com/glebovdev/streamplay/internal/source"
	"github.com/glebovdev/streamplay/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const headlessInterval = 500 * time.Millisecond

var (
	versionFlag  = flag.Bool("version", false, "Show version information")
	debugFlag    = flag.Bool("debug", false, "Enable debug logging")
	codecFlag    = flag.String("codec", "", fmt.Sprintf("Stream codec %v (default from config)", decode.Names()))
	volumeFlag   = flag.Int("volume", -1, "Volume 0..100 (default from config)")
	nullFlag     = flag.Bool("null", false, "Play without an audio device")
	headlessFlag = flag.Bool("headless", false, "No TUI, print status lines until playback finishes")
	seekFlag     = flag.Duration("seek", 0, "Seek to this position once playback starts (e.g. 1m30s)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [url]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Without a url the last played stream is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging() {
	switch {
	case *debugFlag:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)

		cacheDir, err := cache.GetCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
			cacheDir = os.TempDir()
		}
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
		}
		logPath := filepath.Join(cacheDir, "debug.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
			logFile = os.Stderr
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
		fmt.Printf("Debug log: %s\n", logPath)
		log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
	case *headlessFlag:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	default:
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
	}
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	if *debugFlag {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
	}
	applyFlags(cfg)

	url := flag.Arg(0)
	if url == "" {
		url = cfg.LastURL
	}
	if url == "" {
		flag.Usage()
		os.Exit(2)
	}

	client := source.NewClient(clientOptions(cfg))

	if source.IsPlaylistURL(url) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Network.ConnectTimeout+cfg.Network.ReadTimeout)
		resolved, err := client.ResolvePlaylist(ctx, url)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve playlist: %v\n", err)
			os.Exit(1)
		}
		log.Info().Msgf("Playlist %s resolved to %s", url, resolved)
		url = resolved
	}

	var sink output.Sink
	if *nullFlag {
		sink = output.NewNull()
	} else {
		sink = output.NewSpeaker(cfg.Volume)
	}

	streamPlayer := player.New(url, player.Options{
		Codec:         cfg.Codec,
		Client:        client,
		Sink:          sink,
		LowWatermark:  cfg.Buffer.LowWatermark,
		HighWatermark: cfg.Buffer.HighWatermark,
		PollTimeout:   cfg.Buffer.PollTimeout,
		UnderrunPolls: cfg.Buffer.UnderrunPolls,
		BlockFrames:   cfg.Buffer.BlockFrames,
		Autoplay:      *headlessFlag || cfg.Autostart || flag.Arg(0) != "",
		OnStatusChange: func(from, to player.Status) {
			log.Debug().Msgf("Status %s -> %s", from, to)
		},
	})
	defer streamPlayer.Close()

	if *seekFlag > 0 {
		go seekOnceStarted(streamPlayer, *seekFlag)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if *headlessFlag {
		code := runHeadless(streamPlayer, sigChan)
		streamPlayer.Close()
		os.Exit(code)
	}

	streamUI := ui.NewUI(streamPlayer, cfg)
	streamUI.SaveConfig()

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		streamUI.Shutdown()
	}()

	log.Info().Msg("Starting UI...")

	uiDone := make(chan error, 1)
	go func() {
		uiDone <- streamUI.Run()
	}()

	if err := <-uiDone; err != nil {
		log.Error().Err(err).Msg("Error running UI")
		streamPlayer.Close()
		os.Exit(1)
	}

	log.Info().Msgf("%s stopped", config.AppName)
}

func applyFlags(cfg *config.Config) {
	if *codecFlag != "" {
		cfg.Codec = *codecFlag
	}
	if *volumeFlag >= 0 {
		cfg.Volume = config.ClampVolume(*volumeFlag)
	}
}

func clientOptions(cfg *config.Config) source.Options {
	opts := source.Options{
		UserAgent:      cfg.Network.UserAgent,
		ConnectTimeout: cfg.Network.ConnectTimeout,
		ReadTimeout:    cfg.Network.ReadTimeout,
		IcyMetadata:    cfg.Network.IcyMetadata,
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.UserAgent()
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewCache(cfg.Cache.Expiry)
		if err != nil {
			log.Warn().Err(err).Msg("Stream cache disabled")
			return opts
		}
		if err := c.CleanExpired(); err != nil {
			log.Debug().Err(err).Msg("Failed to clean expired cache entries")
		}
		opts.Cache = c
	}
	return opts
}

// seekOnceStarted waits for the first Playing state and seeks there once.
func seekOnceStarted(p *player.Player, at time.Duration) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		switch p.Status() {
		case player.Playing:
			log.Debug().Msgf("Initial seek to %v", at)
			p.SeekToProgress(at)
			return
		case player.Finished:
			return
		}
	}
}

func runHeadless(p *player.Player, sigChan <-chan os.Signal) int {
	ticker := time.NewTicker(headlessInterval)
	defer ticker.Stop()

	fmt.Printf("Streaming %s\n", p.URL())
	lastLine := ""
	for {
		select {
		case <-sigChan:
			p.Stop()
			return 130
		case <-ticker.C:
		}

		status := p.Status()
		line := statusLine(p)
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}

		if status == player.Finished {
			if err := p.Err(); err != nil {
				fmt.Fprintf(os.Stderr, "Playback failed: %v\n", err)
				return 1
			}
			return 0
		}
	}
}

func statusLine(p *player.Player) string {
	line := fmt.Sprintf("%-8s %s / %s  buffer %.1fs",
		p.Status(),
		p.PlayedTime().Truncate(time.Second),
		p.Duration().Truncate(time.Second),
		p.Buffer().Filled.Seconds())
	if title := p.Title(); title != "" {
		line += "  " + title
	}
	return line
}
