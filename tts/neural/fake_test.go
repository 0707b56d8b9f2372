package neural

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakeRuntime stands in for a graph runtime. Each stage produces outputs of
// the right shape from its inputs.
type fakeRuntime struct {
	mu          sync.Mutex
	calls       map[string]int
	latents     [][]float32
	steps       []float32
	totalSteps  []float32
	onEstimator func(step int)
	failOpen    string
	closed      bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{calls: make(map[string]int)}
}

func (r *fakeRuntime) Open(path string, inputs, outputs []string) (Session, error) {
	name := filepath.Base(path)
	if name == r.failOpen {
		return nil, errors.New("open failed")
	}
	return &fakeSession{rt: r, name: name}, nil
}

func (r *fakeRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRuntime) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRuntime) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

type fakeSession struct {
	rt   *fakeRuntime
	name string
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) Run(in map[string]*Tensor) (map[string]*Tensor, error) {
	s.rt.mu.Lock()
	s.rt.calls[s.name]++
	hook := s.rt.onEstimator
	s.rt.mu.Unlock()

	switch s.name {
	case DurationGraph:
		n := int64(in["text_ids"].Len())
		d := make([]float32, n)
		for i := range d {
			d[i] = 0.05
		}
		return map[string]*Tensor{"duration": {Shape: []int64{1, n}, Float: d}}, nil

	case EncoderGraph:
		n := int64(in["text_ids"].Len())
		return map[string]*Tensor{"text_emb": Ones(1, 4, n)}, nil

	case EstimatorGraph:
		lat := in["noisy_latent"]
		step := in["current_step"].Float[0]

		s.rt.mu.Lock()
		if step == 0 {
			s.rt.latents = append(s.rt.latents, append([]float32(nil), lat.Float...))
		}
		s.rt.steps = append(s.rt.steps, step)
		s.rt.totalSteps = append(s.rt.totalSteps, in["total_step"].Float[0])
		s.rt.mu.Unlock()

		if hook != nil {
			hook(int(step))
		}
		out := make([]float32, len(lat.Float))
		for i, v := range lat.Float {
			out[i] = v * 0.5
		}
		return map[string]*Tensor{"denoised_latent": {Shape: lat.Shape, Float: out}}, nil

	case VocoderGraph:
		lat := in["latent"]
		chunks := lat.Shape[2]
		wav := make([]float32, chunks*3072)
		for i := range wav {
			wav[i] = 0.1
		}
		return map[string]*Tensor{"wav_tts": {Shape: []int64{1, int64(len(wav))}, Float: wav}}, nil
	}
	return nil, fmt.Errorf("unknown graph %s", s.name)
}

// writeModel lays out a complete model directory with the given styles.
func writeModel(t *testing.T, styles ...string) string {
	t.Helper()
	dir := t.TempDir()

	write := func(name string, v interface{}) {
		t.Helper()
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(ConfigFile, map[string]interface{}{
		"ae":  map[string]int{"sample_rate": 44100, "base_chunk_size": 512},
		"ttl": map[string]int{"chunk_compress_factor": 6, "latent_dim": 24},
	})

	table := make([]int64, 128)
	for i := range table {
		table[i] = int64(i)
	}
	table['~'] = -1
	write(IndexerFile, table)

	for _, g := range []string{DurationGraph, EncoderGraph, EstimatorGraph, VocoderGraph} {
		if err := os.WriteFile(filepath.Join(dir, g), []byte("graph"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	for _, s := range styles {
		write(filepath.Join(StylesDir, s+".json"), map[string]interface{}{
			"style_ttl": map[string]interface{}{
				"dims": []int{1, 2, 2},
				"data": [][][]float64{{{0.1, 0.2}, {0.3, 0.4}}},
			},
			"style_dp": map[string]interface{}{
				"dims": []int{1, 2},
				"data": []float64{0.5, 0.6},
			},
		})
	}
	return dir
}
