//go:build cgo

package onnx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgnsrekt/voxkit/tts"
	"github.com/dgnsrekt/voxkit/tts/neural"
	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process-wide. It is created by the first
// Runtime and destroyed when the last one closes.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnv(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			return tts.NewError(tts.KindEngineError, "failed to initialize onnxruntime", err).
				WithContext("library", lib)
		}
	}
	envRefs++
	return nil
}

func releaseEnv() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// Runtime implements neural.Runtime.
type Runtime struct {
	opts Options

	mu     sync.Mutex
	closed bool
}

var _ neural.Runtime = (*Runtime)(nil)

// New loads the onnxruntime library and prepares the environment.
func New(opts Options) (*Runtime, error) {
	if err := acquireEnv(opts.libraryPath()); err != nil {
		return nil, err
	}
	return &Runtime{opts: opts}, nil
}

// Open implements neural.Runtime.
func (r *Runtime) Open(path string, inputs, outputs []string) (neural.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("onnx runtime closed")
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer so.Destroy()
	if r.opts.Threads > 0 {
		if err := so.SetIntraOpNumThreads(r.opts.Threads); err != nil {
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	s, err := ort.NewDynamicAdvancedSession(path, inputs, outputs, so)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &session{s: s, inputs: inputs, outputs: outputs}, nil
}

// Close implements neural.Runtime.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return releaseEnv()
}

type session struct {
	mu      sync.Mutex
	s       *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

func (s *session) Run(in map[string]*neural.Tensor) (map[string]*neural.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]ort.Value, len(s.inputs))
	defer func() {
		for _, v := range values {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}()
	for i, name := range s.inputs {
		t, ok := in[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("missing input %q", name)
		}
		v, err := toValue(t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		values[i] = v
	}

	outs := make([]ort.Value, len(s.outputs))
	if err := s.s.Run(values, outs); err != nil {
		return nil, err
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				_ = v.Destroy()
			}
		}
	}()

	result := make(map[string]*neural.Tensor, len(outs))
	for i, v := range outs {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", s.outputs[i], err)
		}
		result[s.outputs[i]] = t
	}
	return result, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s == nil {
		return nil
	}
	err := s.s.Destroy()
	s.s = nil
	return err
}

func toValue(t *neural.Tensor) (ort.Value, error) {
	shape := ort.NewShape(t.Shape...)
	if t.IsInt() {
		v, err := ort.NewTensor(shape, t.Int)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := ort.NewTensor(shape, t.Float)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func fromValue(v ort.Value) (*neural.Tensor, error) {
	switch x := v.(type) {
	case *ort.Tensor[float32]:
		data := append([]float32(nil), x.GetData()...)
		return &neural.Tensor{Shape: []int64(x.GetShape()), Float: data}, nil
	case *ort.Tensor[int64]:
		data := append([]int64(nil), x.GetData()...)
		return &neural.Tensor{Shape: []int64(x.GetShape()), Int: data}, nil
	default:
		return nil, fmt.Errorf("unsupported output type %T", v)
	}
}
