package tts

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	if cfg.Queue.Capacity != 100 {
		t.Errorf("Default queue capacity should be 100, got %d", cfg.Queue.Capacity)
	}

	if cfg.Engine != "auto" {
		t.Errorf("Default engine should be auto, got %s", cfg.Engine)
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid engine",
			modify:  func(c *Config) { c.Engine = "invalid" },
			wantErr: true,
			errMsg:  "invalid engine",
		},
		{
			name:   "engine is case insensitive",
			modify: func(c *Config) { c.Engine = "FAKE" },
		},
		{
			name:    "zero capacity",
			modify:  func(c *Config) { c.Queue.Capacity = 0 },
			wantErr: true,
			errMsg:  "queue capacity",
		},
		{
			name:    "poll interval too short",
			modify:  func(c *Config) { c.Queue.PollInterval = time.Millisecond },
			wantErr: true,
			errMsg:  "poll interval",
		},
		{
			name:    "rate too high",
			modify:  func(c *Config) { c.Speech.Rate = 2.5 },
			wantErr: true,
			errMsg:  "rate must be between",
		},
		{
			name:    "volume too high",
			modify:  func(c *Config) { c.Speech.Volume = 1.5 },
			wantErr: true,
			errMsg:  "volume must be between",
		},
		{
			name:    "bad playback sample rate",
			modify:  func(c *Config) { c.Neural.SampleRate = 22050 },
			wantErr: true,
			errMsg:  "playback sample rate",
		},
		{
			name:    "bad download source",
			modify:  func(c *Config) { c.Download.Source = "ftp" },
			wantErr: true,
			errMsg:  "invalid download source",
		},
		{
			name: "nats without bucket",
			modify: func(c *Config) {
				c.Download.Source = "nats"
				c.Download.Bucket = ""
			},
			wantErr: true,
			errMsg:  "bucket cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("VOXKIT_ENGINE", "fake")
	t.Setenv("VOXKIT_QUEUE_CAPACITY", "7")
	t.Setenv("VOXKIT_SPEECH_RATE", "1.5")
	t.Setenv("VOXKIT_NEURAL_BUNDLED_DIRS", "/a:/b")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}

	if cfg.Engine != "fake" {
		t.Errorf("Engine = %q, want fake", cfg.Engine)
	}
	if cfg.Queue.Capacity != 7 {
		t.Errorf("Capacity = %d, want 7", cfg.Queue.Capacity)
	}
	if cfg.Speech.Rate != 1.5 {
		t.Errorf("Rate = %f, want 1.5", cfg.Speech.Rate)
	}
	if len(cfg.Neural.BundledDirs) != 2 || cfg.Neural.BundledDirs[1] != "/b" {
		t.Errorf("BundledDirs = %v, want [/a /b]", cfg.Neural.BundledDirs)
	}
	if cfg.Queue.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v, want default 50ms", cfg.Queue.PollInterval)
	}
}

func TestLoadConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("engine", "fake")
	v.Set("queue.capacity", 12)
	v.Set("queue.poll_interval", "80ms")
	v.Set("neural.model", "supertonic-en")
	v.Set("download.source", "nats")
	v.Set("cache.enabled", false)

	cfg, err := LoadConfigFromViper(v)
	if err != nil {
		t.Fatalf("LoadConfigFromViper failed: %v", err)
	}

	if cfg.Queue.Capacity != 12 {
		t.Errorf("Capacity = %d, want 12", cfg.Queue.Capacity)
	}
	if cfg.Queue.PollInterval != 80*time.Millisecond {
		t.Errorf("PollInterval = %v, want 80ms", cfg.Queue.PollInterval)
	}
	if cfg.Neural.Model != "supertonic-en" {
		t.Errorf("Model = %q, want supertonic-en", cfg.Neural.Model)
	}
	if cfg.Download.Source != "nats" {
		t.Errorf("Source = %q, want nats", cfg.Download.Source)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache should be disabled")
	}
}

func TestLoadConfigFromViperInvalid(t *testing.T) {
	v := viper.New()
	v.Set("speech.volume", 4.0)

	if _, err := LoadConfigFromViper(v); err == nil {
		t.Error("Expected validation error for volume 4.0")
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "voxkit.yml")

	cfg := DefaultConfig()
	cfg.Engine = "fake"
	cfg.Queue.PollInterval = 75 * time.Millisecond
	cfg.Neural.Style = "F1"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if loaded.Engine != "fake" || loaded.Neural.Style != "F1" {
		t.Errorf("Loaded config mismatch: %+v", loaded)
	}
	if loaded.Queue.PollInterval != 75*time.Millisecond {
		t.Errorf("PollInterval = %v, want 75ms", loaded.Queue.PollInterval)
	}
}
