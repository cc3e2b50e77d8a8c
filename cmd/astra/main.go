// Command astra is the main entry point for the Astra voice session server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/astra/internal/api"
	"github.com/MrWong99/astra/internal/config"
	"github.com/MrWong99/astra/internal/controller"
	"github.com/MrWong99/astra/internal/health"
	"github.com/MrWong99/astra/internal/i18n"
	"github.com/MrWong99/astra/internal/observe"
	"github.com/MrWong99/astra/internal/strengths"
	"github.com/MrWong99/astra/pkg/audio"
	"github.com/MrWong99/astra/pkg/audio/wavfile"
	"github.com/MrWong99/astra/pkg/live"
	geminilive "github.com/MrWong99/astra/pkg/live/gemini"
	openailive "github.com/MrWong99/astra/pkg/live/openai"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "astra: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "astra: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("astra starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "astra",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Live provider ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := reg.CreateLive(cfg.Live)
	if err != nil {
		slog.Error("failed to create live provider", "name", cfg.Live.Name, "err", err)
		return 1
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	in, out, closeAudio, err := buildAudioDevices(cfg)
	if err != nil {
		slog.Error("failed to open audio devices", "err", err)
		return 1
	}
	defer closeAudio()

	// ── Controller ────────────────────────────────────────────────────────────
	ctrlOpts := []controller.Option{
		controller.WithProviderName(cfg.Live.Name),
		controller.WithModel(cfg.Live.Model),
		controller.WithLogger(logger),
	}
	if cfg.Session.Voice != "" {
		ctrlOpts = append(ctrlOpts, controller.WithVoice(cfg.Session.Voice))
	}
	if cfg.Session.Language != "" {
		ctrlOpts = append(ctrlOpts, controller.WithLanguage(i18n.Parse(cfg.Session.Language)))
	}
	if cfg.Session.ConnectTimeout > 0 {
		ctrlOpts = append(ctrlOpts, controller.WithConnectTimeout(cfg.Session.ConnectTimeout))
	}
	if cfg.Strengths.JournalPath != "" {
		ctrlOpts = append(ctrlOpts, controller.WithStore(strengths.NewJournaledStore(cfg.Strengths.JournalPath)))
	}

	ctrl := controller.New(provider, in, out, ctrlOpts...)
	defer ctrl.Disconnect()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.LanguageChanged {
			slog.Info("language changed", "language", d.NewLanguage)
			ctrl.SetLanguage(i18n.Parse(d.NewLanguage))
		}
		if d.VoiceChanged {
			slog.Info("voice changed, takes effect on next connect", "voice", d.NewVoice)
			ctrl.SetVoice(d.NewVoice)
		}
	})
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── API server ────────────────────────────────────────────────────────────
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srvOpts := []api.Option{
		api.WithLogger(logger),
		api.WithCheckers(health.Checker{
			Name: "live_provider",
			Check: func(context.Context) error {
				if cfg.Live.Name == "" {
					return errors.New("no live provider configured")
				}
				return nil
			},
		}),
	}
	if cfg.Server.TLS != nil {
		srvOpts = append(srvOpts, api.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	server := api.New(addr, ctrl, srvOpts...)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the live provider factories that ship with
// Astra into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("openai-realtime", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []openailive.Option
		if entry.Model != "" {
			opts = append(opts, openailive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openailive.WithBaseURL(entry.BaseURL))
		}
		return openailive.New(entry.APIKey, opts...), nil
	})

	for _, name := range config.ValidProviderNames["live"] {
		slog.Debug("registered provider", "kind", "live", "name", name)
	}
}

// buildAudioDevices opens the file-backed capture and playback devices so a
// full session can run without audio hardware. The returned closer releases
// the output file.
func buildAudioDevices(cfg *config.Config) (audio.InputDevice, audio.OutputDevice, func(), error) {
	inPath := cfg.Audio.InputWAV
	if inPath == "" {
		return nil, nil, nil, errors.New("audio.input_wav is required")
	}
	outPath := cfg.Audio.OutputWAV
	if outPath == "" {
		return nil, nil, nil, errors.New("audio.output_wav is required")
	}

	var inOpts []wavfile.InputOption
	if cfg.Audio.InputRate > 0 {
		inOpts = append(inOpts, wavfile.WithSourceRate(cfg.Audio.InputRate))
	}
	in := wavfile.NewInput(inPath, inOpts...)
	out, err := wavfile.CreateOutput(outPath, audio.PlaybackFormat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create output %q: %w", outPath, err)
	}

	closeAudio := func() {
		if err := out.Close(); err != nil {
			slog.Warn("close output device", "err", err)
		}
	}
	return in, out, closeAudio, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
