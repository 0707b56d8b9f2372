package models

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/dgnsrekt/voxkit/tts"
	"github.com/pelletier/go-toml/v2"
)

//go:embed registry.toml
var registryTOML []byte

// Registry is a catalog of downloadable models.
type Registry struct {
	models []tts.ModelDescriptor
	byID   map[string]int
}

type catalog struct {
	Models []entry `toml:"model"`
}

type entry struct {
	ID            string   `toml:"id"`
	Name          string   `toml:"name"`
	SizeBytes     int64    `toml:"size_bytes"`
	Language      string   `toml:"language"`
	SampleRate    int      `toml:"sample_rate"`
	DownloadURL   string   `toml:"download_url"`
	Architecture  string   `toml:"architecture"`
	DefaultStyle  string   `toml:"default_style,omitempty"`
	RequiredFiles []string `toml:"required_files"`
	Description   string   `toml:"description,omitempty"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the embedded catalog.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = ParseRegistry(registryTOML)
	})
	return defaultReg, defaultErr
}

// ParseRegistry reads a TOML catalog.
func ParseRegistry(data []byte) (*Registry, error) {
	var c catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse model registry: %w", err)
	}
	return NewRegistry(c.descriptors()...)
}

// NewRegistry builds a catalog from descriptors, keeping their order.
func NewRegistry(models ...tts.ModelDescriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(models))}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model %q has no id", m.Name)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		if m.DownloadURL == "" {
			return nil, fmt.Errorf("model %q has no download url", m.ID)
		}
		r.byID[m.ID] = len(r.models)
		r.models = append(r.models, m)
	}
	return r, nil
}

// ListAvailableModels returns every catalog entry.
func (r *Registry) ListAvailableModels() []tts.ModelDescriptor {
	out := make([]tts.ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}

// GetModelByID looks up a descriptor.
func (r *Registry) GetModelByID(id string) (tts.ModelDescriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return tts.ModelDescriptor{}, false
	}
	return r.models[i], true
}

// Marshal encodes the catalog as TOML.
func (r *Registry) Marshal() ([]byte, error) {
	c := catalog{Models: make([]entry, len(r.models))}
	for i, m := range r.models {
		c.Models[i] = entry{
			ID:            m.ID,
			Name:          m.Name,
			SizeBytes:     m.SizeBytes,
			Language:      m.Language,
			SampleRate:    m.SampleRate,
			DownloadURL:   m.DownloadURL,
			Architecture:  m.Architecture.String(),
			DefaultStyle:  m.DefaultStyle,
			RequiredFiles: m.RequiredFiles,
			Description:   m.Description,
		}
	}
	return toml.Marshal(c)
}

func (c catalog) descriptors() []tts.ModelDescriptor {
	out := make([]tts.ModelDescriptor, 0, len(c.Models))
	for _, e := range c.Models {
		arch := tts.ArchitectureSingleFile
		if strings.EqualFold(e.Architecture, tts.ArchitectureMultiStage.String()) {
			arch = tts.ArchitectureMultiStage
		}
		out = append(out, tts.ModelDescriptor{
			ID:            e.ID,
			Name:          e.Name,
			SizeBytes:     e.SizeBytes,
			Language:      e.Language,
			SampleRate:    e.SampleRate,
			DownloadURL:   e.DownloadURL,
			Architecture:  arch,
			RequiredFiles: e.RequiredFiles,
			DefaultStyle:  e.DefaultStyle,
			Description:   strings.TrimSpace(e.Description),
		})
	}
	return out
}
