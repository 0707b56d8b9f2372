package tts

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFromViper starts from the environment-derived configuration and
// applies every key set in the given viper instance (config file or flags).
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if v == nil {
		v = viper.GetViper()
	}

	if v.IsSet("engine") {
		cfg.Engine = v.GetString("engine")
	}

	// Queue settings
	if v.IsSet("queue.capacity") {
		cfg.Queue.Capacity = v.GetInt("queue.capacity")
	}
	if v.IsSet("queue.poll_interval") {
		cfg.Queue.PollInterval = v.GetDuration("queue.poll_interval")
	}

	// Speech settings
	if v.IsSet("speech.rate") {
		cfg.Speech.Rate = v.GetFloat64("speech.rate")
	}
	if v.IsSet("speech.pitch") {
		cfg.Speech.Pitch = v.GetFloat64("speech.pitch")
	}
	if v.IsSet("speech.volume") {
		cfg.Speech.Volume = v.GetFloat64("speech.volume")
	}
	if v.IsSet("speech.voice") {
		cfg.Speech.Voice = v.GetString("speech.voice")
	}

	cfg.Neural = loadNeuralConfig(v, cfg.Neural)
	cfg.Cache = loadCacheConfig(v, cfg.Cache)
	cfg.Download = loadDownloadConfig(v, cfg.Download)

	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}
	if v.IsSet("log.debug") {
		cfg.Log.Debug = v.GetBool("log.debug")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadNeuralConfig(v *viper.Viper, cfg NeuralConfig) NeuralConfig {
	if v.IsSet("neural.model") {
		cfg.Model = v.GetString("neural.model")
	}
	if v.IsSet("neural.style") {
		cfg.Style = v.GetString("neural.style")
	}
	if v.IsSet("neural.models_dir") {
		cfg.ModelsDir = v.GetString("neural.models_dir")
	}
	if v.IsSet("neural.bundled_dirs") {
		cfg.BundledDirs = v.GetStringSlice("neural.bundled_dirs")
	}
	if v.IsSet("neural.runtime_library") {
		cfg.RuntimeLibrary = v.GetString("neural.runtime_library")
	}
	if v.IsSet("neural.threads") {
		cfg.Threads = v.GetInt("neural.threads")
	}
	if v.IsSet("neural.playback_sample_rate") {
		cfg.SampleRate = v.GetInt("neural.playback_sample_rate")
	}
	return cfg
}

func loadCacheConfig(v *viper.Viper, cfg CacheConfig) CacheConfig {
	if v.IsSet("cache.enabled") {
		cfg.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		cfg.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		cfg.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		cfg.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.compression_level") {
		cfg.CompressionLevel = v.GetInt("cache.compression_level")
	}
	return cfg
}

func loadDownloadConfig(v *viper.Viper, cfg DownloadConfig) DownloadConfig {
	if v.IsSet("download.source") {
		cfg.Source = v.GetString("download.source")
	}
	if v.IsSet("download.nats_url") {
		cfg.NATSURL = v.GetString("download.nats_url")
	}
	if v.IsSet("download.bucket") {
		cfg.Bucket = v.GetString("download.bucket")
	}
	if v.IsSet("download.timeout") {
		cfg.Timeout = v.GetDuration("download.timeout")
	}
	return cfg
}
