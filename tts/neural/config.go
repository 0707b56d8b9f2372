package neural

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Files every multi-stage model directory contains.
const (
	ConfigFile     = "tts.json"
	IndexerFile    = "unicode_indexer.json"
	DurationGraph  = "duration_predictor.onnx"
	EncoderGraph   = "text_encoder.onnx"
	EstimatorGraph = "vector_estimator.onnx"
	VocoderGraph   = "vocoder.onnx"
	StylesDir      = "voice_styles"
)

// DenoiseSteps is the fixed length of the latent refinement schedule.
const DenoiseSteps = 5

// RequiredFiles lists the files LoadModel expects in a model directory.
var RequiredFiles = []string{
	ConfigFile,
	IndexerFile,
	DurationGraph,
	EncoderGraph,
	EstimatorGraph,
	VocoderGraph,
}

// ModelConfig holds the acoustic parameters of a model.
type ModelConfig struct {
	SampleRate     int
	BaseChunkSize  int
	CompressFactor int
	LatentDim      int
}

// DefaultModelConfig returns the parameters used when tts.json omits them.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		SampleRate:     44100,
		BaseChunkSize:  512,
		CompressFactor: 6,
		LatentDim:      24,
	}
}

// ChunkSize is the number of output samples one latent frame produces.
func (c ModelConfig) ChunkSize() int {
	return c.BaseChunkSize * c.CompressFactor
}

// Channels is the latent channel count fed to the estimator.
func (c ModelConfig) Channels() int {
	return c.LatentDim * c.CompressFactor
}

type rawConfig struct {
	AE struct {
		SampleRate    int `json:"sample_rate"`
		BaseChunkSize int `json:"base_chunk_size"`
	} `json:"ae"`
	TTL struct {
		ChunkCompressFactor int `json:"chunk_compress_factor"`
		LatentDim           int `json:"latent_dim"`
	} `json:"ttl"`
}

// LoadModelConfig reads tts.json from dir. A missing file yields defaults.
func LoadModelConfig(dir string) (ModelConfig, error) {
	cfg := DefaultModelConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read model config: %w", err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse model config: %w", err)
	}
	if raw.AE.SampleRate > 0 {
		cfg.SampleRate = raw.AE.SampleRate
	}
	if raw.AE.BaseChunkSize > 0 {
		cfg.BaseChunkSize = raw.AE.BaseChunkSize
	}
	if raw.TTL.ChunkCompressFactor > 0 {
		cfg.CompressFactor = raw.TTL.ChunkCompressFactor
	}
	if raw.TTL.LatentDim > 0 {
		cfg.LatentDim = raw.TTL.LatentDim
	}
	return cfg, nil
}
