package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration. Values resolve as defaults, then the
// YAML file, then environment variables.
type Config struct {
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	Audio      AudioConfig      `yaml:"audio"`
	Rules      RulesConfig      `yaml:"rules"`
	Session    SessionConfig    `yaml:"session"`
	Tasklet    TaskletConfig    `yaml:"tasklet"`
	Airtable   AirtableConfig   `yaml:"airtable"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
	Lockout    LockoutConfig    `yaml:"lockout"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`

	// File is the YAML file that was applied, if any.
	File string `yaml:"-"`
}

type DeepgramConfig struct {
	APIKey        string        `yaml:"api_key"`
	APIBaseURL    string        `yaml:"api_base"`
	Model         string        `yaml:"model"`
	Language      string        `yaml:"language"`
	SmartFormat   bool          `yaml:"smart_format"`
	EndpointingMS int           `yaml:"endpointing_ms"`
	KeepAlive     time.Duration `yaml:"keepalive"`
}

type AudioConfig struct {
	RecorderCommand string   `yaml:"recorder_command"`
	InputFormat     string   `yaml:"input_format"`
	InputDevice     string   `yaml:"input_device"`
	SampleRate      int      `yaml:"sample_rate"`
	Channels        int      `yaml:"channels"`
	PlayerCommand   string   `yaml:"player_command"`
	SpeakerCommand  string   `yaml:"speaker_command"`
	SpeakerArgs     []string `yaml:"speaker_args"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type SessionConfig struct {
	ChunkSize      int           `yaml:"chunk_size"`
	StreamingGrace time.Duration `yaml:"streaming_grace"`
	CommitDelay    time.Duration `yaml:"commit_delay"`
	PrefetchDelay  time.Duration `yaml:"prefetch_delay"`
	ErrorIndicator time.Duration `yaml:"error_indicator"`
}

type TaskletConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type AirtableConfig struct {
	JobsURL       string         `yaml:"jobs_url"`
	UsageURL      string         `yaml:"usage_url"`
	Token         string         `yaml:"token"`
	Fields        AirtableFields `yaml:"fields"`
	PollInterval  time.Duration  `yaml:"poll_interval"`
	PollTimeout   time.Duration  `yaml:"poll_timeout"`
	UsageInterval time.Duration  `yaml:"usage_interval"`
}

type AirtableFields struct {
	JobID        string `yaml:"job_id"`
	JobStatus    string `yaml:"job_status"`
	ResponseText string `yaml:"response_text"`
	Usage        string `yaml:"usage"`
	RefreshEpoch string `yaml:"refresh_epoch"`
	Created      string `yaml:"created"`
}

type ElevenLabsConfig struct {
	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
}

type LockoutConfig struct {
	// Enabled is the default until the user toggles the preference.
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	Level1   time.Duration `yaml:"level1"`
	Level2   time.Duration `yaml:"level2"`
	Duration time.Duration `yaml:"duration"`
}

type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database"`
	KVDir        string `yaml:"kv_dir"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in configuration rooted at home.
func Defaults(home string) Config {
	dataDir := filepath.Join(home, ".local", "share", "taskvoice")
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    "en-US",
			SmartFormat: true,
			KeepAlive:   5 * time.Second,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			PlayerCommand:   "ffplay",
			SpeakerCommand:  "espeak-ng",
		},
		Rules: RulesConfig{
			Path:           filepath.Join(home, ".config", "taskvoice", "substitutions.rules"),
			IterationLimit: 30,
		},
		Session: SessionConfig{
			ChunkSize:      4096,
			StreamingGrace: time.Second,
			CommitDelay:    1300 * time.Millisecond,
			PrefetchDelay:  500 * time.Millisecond,
			ErrorIndicator: 3 * time.Second,
		},
		Tasklet: TaskletConfig{Timeout: 15 * time.Second},
		Airtable: AirtableConfig{
			Fields: AirtableFields{
				JobID:        "Job ID",
				JobStatus:    "Job Status",
				ResponseText: "Response Text",
				Usage:        "TASKLET_USAGE_PERCENTAGE",
				RefreshEpoch: "TASKLET_REFRESH_EPOCH",
				Created:      "Created",
			},
			PollInterval:  time.Second,
			PollTimeout:   120 * time.Second,
			UsageInterval: 30 * time.Second,
		},
		ElevenLabs: ElevenLabsConfig{
			BaseURL:         "https://api.elevenlabs.io/v1",
			Model:           "eleven_turbo_v2",
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		Lockout: LockoutConfig{
			Level1:   3 * time.Second,
			Level2:   time.Second,
			Duration: 60 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DatabasePath: filepath.Join(dataDir, "threads.sqlite"),
			KVDir:        filepath.Join(dataDir, "kv"),
		},
		API: APIConfig{Addr: "127.0.0.1:8765"},
		Log: LogConfig{Level: "info"},
	}
}

// Load resolves configuration from defaults, the optional YAML file and
// environment variables.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Defaults(home)

	path := strings.TrimSpace(os.Getenv("TASKVOICE_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ".config", "taskvoice", "config.yaml")
	}
	if err := applyFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// applyFile overlays the YAML file at path. A missing default file is not an
// error; a missing explicit one is.
func applyFile(cfg *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.File = path
	return nil
}

func applyEnv(cfg *Config) {
	d := &cfg.Deepgram
	d.APIKey = envOrDefault("DEEPGRAM_API_KEY", d.APIKey)
	d.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", d.APIBaseURL)
	d.Model = envOrDefault("DEEPGRAM_MODEL", d.Model)
	d.Language = envOrDefault("DEEPGRAM_LANGUAGE", d.Language)
	d.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", d.SmartFormat)
	d.EndpointingMS = envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", d.EndpointingMS)

	a := &cfg.Audio
	a.RecorderCommand = envOrDefault("TASKVOICE_FFMPEG_COMMAND", a.RecorderCommand)
	a.InputFormat = envOrDefault("TASKVOICE_AUDIO_INPUT_FORMAT", a.InputFormat)
	a.InputDevice = firstNonEmpty(os.Getenv("TASKVOICE_AUDIO_INPUT_DEVICE"), os.Getenv("DEEPGRAM_PULSE_SOURCE"), a.InputDevice)
	a.SampleRate = envOrDefaultInt("TASKVOICE_SAMPLE_RATE", a.SampleRate)
	a.Channels = envOrDefaultInt("TASKVOICE_CHANNELS", a.Channels)
	a.PlayerCommand = envOrDefault("TASKVOICE_PLAYER_COMMAND", a.PlayerCommand)
	a.SpeakerCommand = envOrDefault("TASKVOICE_SPEAKER_COMMAND", a.SpeakerCommand)

	cfg.Rules.Path = envOrDefault("TASKVOICE_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("TASKVOICE_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	s := &cfg.Session
	s.ChunkSize = envOrDefaultInt("TASKVOICE_AUDIO_CHUNK_SIZE", s.ChunkSize)
	s.StreamingGrace = envOrDefaultMillis("TASKVOICE_STREAMING_GRACE_MS", s.StreamingGrace)
	s.CommitDelay = envOrDefaultMillis("TASKVOICE_COMMIT_DELAY_MS", s.CommitDelay)
	s.PrefetchDelay = envOrDefaultMillis("TASKVOICE_PREFETCH_DELAY_MS", s.PrefetchDelay)

	cfg.Tasklet.WebhookURL = envOrDefault("TASKLET_WEBHOOK_URL", cfg.Tasklet.WebhookURL)

	at := &cfg.Airtable
	at.JobsURL = envOrDefault("AIRTABLE_API_URL", at.JobsURL)
	at.UsageURL = envOrDefault("AIRTABLE_TELEMETRY_URL", at.UsageURL)
	at.Token = envOrDefault("AIRTABLE_TOKEN", at.Token)
	at.PollInterval = envOrDefaultMillis("TASKVOICE_POLL_INTERVAL_MS", at.PollInterval)
	at.PollTimeout = envOrDefaultMillis("TASKVOICE_POLL_TIMEOUT_MS", at.PollTimeout)

	e := &cfg.ElevenLabs
	e.APIKey = envOrDefault("ELEVENLABS_API_KEY", e.APIKey)
	e.VoiceID = envOrDefault("ELEVENLABS_VOICE_ID", e.VoiceID)
	e.Model = envOrDefault("ELEVENLABS_MODEL", e.Model)

	cfg.Lockout.Enabled = envOrDefaultBool("TASKVOICE_LOCKOUT_ENABLED", cfg.Lockout.Enabled)
	cfg.Lockout.Secret = envOrDefault("TASKVOICE_SECRET_PHRASE", cfg.Lockout.Secret)

	if dir := strings.TrimSpace(os.Getenv("TASKVOICE_DATA_DIR")); dir != "" {
		cfg.Storage = StorageConfig{
			DataDir:      dir,
			DatabasePath: filepath.Join(dir, "threads.sqlite"),
			KVDir:        filepath.Join(dir, "kv"),
		}
	}
	cfg.API.Addr = envOrDefault("TASKVOICE_API_ADDR", cfg.API.Addr)
	cfg.Log.Level = envOrDefault("TASKVOICE_LOG_LEVEL", cfg.Log.Level)
}

// normalize repairs values that would break the runtime.
func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.CommitDelay <= 0 {
		cfg.Session.CommitDelay = 1300 * time.Millisecond
	}
	if cfg.Session.PrefetchDelay <= 0 || cfg.Session.PrefetchDelay >= cfg.Session.CommitDelay {
		cfg.Session.PrefetchDelay = cfg.Session.CommitDelay * 5 / 13
	}
	if cfg.Airtable.UsageURL == "" {
		cfg.Airtable.UsageURL = cfg.Airtable.JobsURL
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
