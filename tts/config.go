package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config contains all SDK configuration options.
type Config struct {
	// Engine selects the platform voice driver: "auto" detects one for the
	// current OS, "fake" uses the in-memory driver.
	Engine string `yaml:"engine" mapstructure:"engine" env:"VOXKIT_ENGINE" envDefault:"auto"`

	Queue    QueueConfig    `yaml:"queue" mapstructure:"queue"`
	Speech   SpeechConfig   `yaml:"speech" mapstructure:"speech"`
	Neural   NeuralConfig   `yaml:"neural" mapstructure:"neural"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// QueueConfig controls the utterance queue and dispatch loop.
type QueueConfig struct {
	Capacity     int           `yaml:"capacity" mapstructure:"capacity" env:"VOXKIT_QUEUE_CAPACITY" envDefault:"100"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval" env:"VOXKIT_QUEUE_POLL_INTERVAL" envDefault:"50ms"`
}

// SpeechConfig holds the initial speech parameters.
type SpeechConfig struct {
	Rate   float64 `yaml:"rate" mapstructure:"rate" env:"VOXKIT_SPEECH_RATE" envDefault:"1.0"`
	Pitch  float64 `yaml:"pitch" mapstructure:"pitch" env:"VOXKIT_SPEECH_PITCH" envDefault:"1.0"`
	Volume float64 `yaml:"volume" mapstructure:"volume" env:"VOXKIT_SPEECH_VOLUME" envDefault:"1.0"`
	Voice  string  `yaml:"voice" mapstructure:"voice" env:"VOXKIT_SPEECH_VOICE"`
}

// NeuralConfig configures the neural backend.
type NeuralConfig struct {
	Model          string   `yaml:"model" mapstructure:"model" env:"VOXKIT_NEURAL_MODEL"`
	Style          string   `yaml:"style" mapstructure:"style" env:"VOXKIT_NEURAL_STYLE"`
	ModelsDir      string   `yaml:"models_dir" mapstructure:"models_dir" env:"VOXKIT_NEURAL_MODELS_DIR"`
	BundledDirs    []string `yaml:"bundled_dirs" mapstructure:"bundled_dirs" env:"VOXKIT_NEURAL_BUNDLED_DIRS" envSeparator:":"`
	RuntimeLibrary string   `yaml:"runtime_library" mapstructure:"runtime_library" env:"VOXKIT_NEURAL_RUNTIME_LIBRARY"`
	Threads        int      `yaml:"threads" mapstructure:"threads" env:"VOXKIT_NEURAL_THREADS" envDefault:"0"`
	SampleRate     int      `yaml:"playback_sample_rate" mapstructure:"playback_sample_rate" env:"VOXKIT_NEURAL_PLAYBACK_SAMPLE_RATE" envDefault:"44100"`
}

// CacheConfig configures the synthesized audio cache.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" mapstructure:"enabled" env:"VOXKIT_CACHE_ENABLED" envDefault:"true"`
	Dir              string `yaml:"dir" mapstructure:"dir" env:"VOXKIT_CACHE_DIR"`
	MemoryMB         int    `yaml:"memory_mb" mapstructure:"memory_mb" env:"VOXKIT_CACHE_MEMORY_MB" envDefault:"64"`
	DiskMB           int    `yaml:"disk_mb" mapstructure:"disk_mb" env:"VOXKIT_CACHE_DISK_MB" envDefault:"512"`
	CompressionLevel int    `yaml:"compression_level" mapstructure:"compression_level" env:"VOXKIT_CACHE_COMPRESSION_LEVEL" envDefault:"3"`
}

// DownloadConfig selects where model files are fetched from.
type DownloadConfig struct {
	// Source is "http" (the descriptor's URL) or "nats" (a JetStream object store mirror).
	Source  string        `yaml:"source" mapstructure:"source" env:"VOXKIT_DOWNLOAD_SOURCE" envDefault:"http"`
	NATSURL string        `yaml:"nats_url" mapstructure:"nats_url" env:"VOXKIT_DOWNLOAD_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Bucket  string        `yaml:"bucket" mapstructure:"bucket" env:"VOXKIT_DOWNLOAD_BUCKET" envDefault:"voxkit-models"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" env:"VOXKIT_DOWNLOAD_TIMEOUT" envDefault:"30m"`
}

// LogConfig configures logging.
type LogConfig struct {
	File  string `yaml:"file" mapstructure:"file" env:"VOXKIT_LOG_FILE"`
	Debug bool   `yaml:"debug" mapstructure:"debug" env:"VOXKIT_LOG_DEBUG" envDefault:"false"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: "auto",
		Queue: QueueConfig{
			Capacity:     100,
			PollInterval: 50 * time.Millisecond,
		},
		Speech: SpeechConfig{
			Rate:   DefaultRate,
			Pitch:  DefaultPitch,
			Volume: DefaultVolume,
		},
		Neural: NeuralConfig{
			SampleRate: 44100,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         64,
			DiskMB:           512,
			CompressionLevel: 3,
		},
		Download: DownloadConfig{
			Source:  "http",
			NATSURL: "nats://127.0.0.1:4222",
			Bucket:  "voxkit-models",
			Timeout: 30 * time.Minute,
		},
	}
}

// LoadConfigFromEnv returns the defaults overridden by VOXKIT_* environment
// variables.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return DefaultConfig(), fmt.Errorf("error parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validEngines := []string{"auto", "espeak", "say", "sapi", "fake"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.PollInterval < 10*time.Millisecond || c.Queue.PollInterval > time.Second {
		return fmt.Errorf("poll interval must be between 10ms and 1s, got %v", c.Queue.PollInterval)
	}

	if !inRange(c.Speech.Rate, MinRate, MaxRate) {
		return fmt.Errorf("rate must be between %.1f and %.1f, got %f", MinRate, MaxRate, c.Speech.Rate)
	}
	if !inRange(c.Speech.Pitch, MinPitch, MaxPitch) {
		return fmt.Errorf("pitch must be between %.1f and %.1f, got %f", MinPitch, MaxPitch, c.Speech.Pitch)
	}
	if !inRange(c.Speech.Volume, MinVolume, MaxVolume) {
		return fmt.Errorf("volume must be between %.1f and %.1f, got %f", MinVolume, MaxVolume, c.Speech.Volume)
	}

	if c.Neural.Threads < 0 {
		return fmt.Errorf("neural threads must not be negative, got %d", c.Neural.Threads)
	}
	if c.Neural.SampleRate != 44100 && c.Neural.SampleRate != 48000 {
		return fmt.Errorf("playback sample rate must be 44100 or 48000, got %d", c.Neural.SampleRate)
	}

	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("compression level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
	}
	if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
		return fmt.Errorf("cache sizes must not be negative")
	}

	switch strings.ToLower(c.Download.Source) {
	case "http", "nats":
		c.Download.Source = strings.ToLower(c.Download.Source)
	default:
		return fmt.Errorf("invalid download source '%s': must be http or nats", c.Download.Source)
	}
	if c.Download.Source == "nats" && c.Download.Bucket == "" {
		return fmt.Errorf("download bucket cannot be empty when source is nats")
	}

	return nil
}

// Save writes the configuration to path as YAML.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadConfigFile reads a YAML configuration file on top of the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
