package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"taskvoice/internal/audio"
	"taskvoice/internal/backend"
	"taskvoice/internal/config"
	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
	"taskvoice/internal/lockout"
	"taskvoice/internal/ports"
	"taskvoice/internal/providers/airtable"
	"taskvoice/internal/providers/deepgram"
	"taskvoice/internal/providers/elevenlabs"
	"taskvoice/internal/providers/tasklet"
	"taskvoice/internal/store"
	"taskvoice/internal/threads"
	"taskvoice/internal/transcript"
	"taskvoice/internal/usage"
	"taskvoice/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config        config.Config
	Controller    *usecase.SessionController
	Conversations *usecase.Conversations
	Gate          *lockout.Gate
	Threads       *threads.Service
	Usage         *usage.Monitor
	KV            *kv.Badger
	Logger        *slog.Logger

	threadStore  *store.Store
	usageEnabled bool
	closers      []func() error
}

// Build loads configuration and wires all backend dependencies. Events may
// also implement ports.UsageSink to receive telemetry updates.
func Build(ctx context.Context, events ports.EventSink, logger *slog.Logger) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(ctx, cfg, events, logger)
}

// BuildWithConfig wires dependencies for an already resolved configuration.
func BuildWithConfig(ctx context.Context, cfg config.Config, events ports.EventSink, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, Logger: logger}

	substitutions, err := transcript.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}

	if err := s.openStorage(cfg.Storage, logger); err != nil {
		s.Close()
		return nil, err
	}

	lockoutEnabled, err := kv.LockoutEnabled(ctx, s.KV, cfg.Lockout.Enabled)
	if err != nil {
		logger.Warn("lockout preference unreadable, using default", "error", err)
	}
	if lockoutEnabled && cfg.Lockout.Secret == "" {
		logger.Warn("lockout enabled without a secret phrase; gate stays open")
	}
	s.Gate = lockout.NewGate(lockout.Config{
		Enabled:         lockoutEnabled,
		Secret:          cfg.Lockout.Secret,
		Level1Duration:  cfg.Lockout.Level1,
		Level2Duration:  cfg.Lockout.Level2,
		LockoutDuration: cfg.Lockout.Duration,
	}, events.LockChanged)
	s.closers = append(s.closers, func() error { s.Gate.Close(); return nil })

	table := airtable.NewClient(airtable.Config{
		JobsURL:  cfg.Airtable.JobsURL,
		UsageURL: cfg.Airtable.UsageURL,
		Token:    cfg.Airtable.Token,
		Fields: airtable.Fields{
			JobID:        cfg.Airtable.Fields.JobID,
			JobStatus:    cfg.Airtable.Fields.JobStatus,
			ResponseText: cfg.Airtable.Fields.ResponseText,
			Usage:        cfg.Airtable.Fields.Usage,
			RefreshEpoch: cfg.Airtable.Fields.RefreshEpoch,
			Created:      cfg.Airtable.Fields.Created,
		},
	})
	jobs := backend.New(
		tasklet.NewClient(tasklet.Config{WebhookURL: cfg.Tasklet.WebhookURL, Timeout: cfg.Tasklet.Timeout}),
		table,
		backend.Config{
			PollInterval: cfg.Airtable.PollInterval,
			PollTimeout:  cfg.Airtable.PollTimeout,
			Logger:       logger.With("component", "backend"),
		},
	)

	var synth ports.Synthesizer
	if cfg.ElevenLabs.APIKey != "" && cfg.ElevenLabs.VoiceID != "" {
		synth = elevenlabs.NewClient(elevenlabs.Config{
			APIKey:          cfg.ElevenLabs.APIKey,
			VoiceID:         cfg.ElevenLabs.VoiceID,
			BaseURL:         cfg.ElevenLabs.BaseURL,
			ModelID:         cfg.ElevenLabs.Model,
			Stability:       cfg.ElevenLabs.Stability,
			SimilarityBoost: cfg.ElevenLabs.SimilarityBoost,
		})
	} else {
		logger.Info("speech synthesis not configured; replies use the local voice")
	}

	player := audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand)
	speaker := audio.NewCommandSpeaker(cfg.Audio.SpeakerCommand, cfg.Audio.SpeakerArgs...)
	s.closers = append(s.closers, player.Stop, speaker.Stop)

	s.Threads = threads.NewService(s.threadStore, s.KV, logger.With("component", "threads"))

	s.Controller = usecase.NewSessionController(usecase.Dependencies{
		Audio: audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		Provider: deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Endpointing: cfg.Deepgram.EndpointingMS,
			KeepAlive:   cfg.Deepgram.KeepAlive,
			Logger:      logger.With("component", "deepgram"),
		}),
		Rules:       substitutions,
		Backend:     jobs,
		Synthesizer: synth,
		Player:      player,
		Speaker:     speaker,
		Gate:        s.Gate,
		Recorder:    s.Threads,
		Events:      events,
		Logger:      logger.With("component", "session"),
	}, usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Streaming: ports.StreamingConfig{
			SampleRate:     cfg.Audio.SampleRate,
			Channels:       cfg.Audio.Channels,
			Encoding:       "linear16",
			InterimResults: true,
		},
		ChunkSize:      cfg.Session.ChunkSize,
		StreamingGrace: cfg.Session.StreamingGrace,
		CommitDelay:    cfg.Session.CommitDelay,
		PrefetchDelay:  cfg.Session.PrefetchDelay,
		ErrorIndicator: cfg.Session.ErrorIndicator,
	})
	s.closers = append(s.closers, func() error { s.Controller.Close(); return nil })
	s.Conversations = usecase.NewConversations(s.Threads, s.Controller)

	var onUsage func(domain.UsageSnapshot)
	if sink, ok := events.(ports.UsageSink); ok {
		onUsage = sink.UsageChanged
	}
	s.usageEnabled = table.Configured()
	s.Usage = usage.NewMonitor(table, s.KV, usage.Config{
		Interval: cfg.Airtable.UsageInterval,
		Logger:   logger.With("component", "usage"),
		OnChange: onUsage,
	})

	if _, _, err := s.Conversations.Restore(ctx); err != nil {
		logger.Warn("could not restore current thread", "error", err)
		events.SessionError(domain.ErrorCodeStorage, err.Error())
	}
	if err := s.Usage.LoadCached(ctx); err != nil {
		logger.Debug("no cached usage snapshot", "error", err)
	}

	return s, nil
}

func (s *Services) openStorage(cfg config.StorageConfig, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	s.threadStore = db
	s.closers = append(s.closers, db.Close)

	badger, err := kv.Open(kv.Options{Dir: cfg.KVDir, Logger: logger.With("component", "kv")})
	if err != nil {
		return err
	}
	s.KV = badger
	s.closers = append(s.closers, badger.Close)
	return nil
}

// UsageConfigured reports whether the telemetry table is set up.
func (s *Services) UsageConfigured() bool {
	return s.usageEnabled
}

// Run starts background work until ctx is done. Usage polling only runs when
// the telemetry table is configured.
func (s *Services) Run(ctx context.Context) {
	if !s.usageEnabled {
		s.Logger.Info("usage telemetry not configured")
		<-ctx.Done()
		return
	}
	s.Usage.Run(ctx)
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
