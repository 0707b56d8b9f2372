//go:build !cgo

package onnx

import (
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/dgnsrekt/voxkit/tts/neural"
)

// Runtime is unavailable without cgo.
type Runtime struct{}

var _ neural.Runtime = (*Runtime)(nil)

// New always fails: onnxruntime needs cgo.
func New(opts Options) (*Runtime, error) {
	return nil, tts.NewError(tts.KindNotSupported, "neural synthesis requires a cgo build", nil)
}

// Open implements neural.Runtime.
func (r *Runtime) Open(path string, inputs, outputs []string) (neural.Session, error) {
	return nil, tts.NewError(tts.KindNotSupported, "neural synthesis requires a cgo build", nil)
}

// Close implements neural.Runtime.
func (r *Runtime) Close() error { return nil }
