package neural

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/dgnsrekt/voxkit/internal/audio"
	"github.com/dgnsrekt/voxkit/internal/logging"
	"github.com/dgnsrekt/voxkit/tts"
)

// minTokenDuration is the floor applied to each predicted duration, in
// seconds, before rate scaling.
const minTokenDuration = 0.01

// Pipeline runs the four model stages that turn text into samples.
type Pipeline struct {
	cfg ModelConfig
	tok *Tokenizer

	duration  Session
	encoder   Session
	estimator Session
	vocoder   Session

	metrics *logging.Recorder
}

// SynthesisOptions parameterises one Synthesize call.
type SynthesisOptions struct {
	Style  *Style
	Rate   float64
	Volume float64
	// Progress, when set, is called with the fraction of work done.
	Progress func(float64)
}

// OpenPipeline loads the model in dir using rt.
func OpenPipeline(rt Runtime, dir string, metrics *logging.Recorder) (*Pipeline, error) {
	cfg, err := LoadModelConfig(dir)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(filepath.Join(dir, IndexerFile))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, tok: tok, metrics: metrics}
	graphs := []struct {
		dst     *Session
		file    string
		inputs  []string
		outputs []string
	}{
		{&p.duration, DurationGraph, durationInputs, durationOutputs},
		{&p.encoder, EncoderGraph, encoderInputs, encoderOutputs},
		{&p.estimator, EstimatorGraph, estimatorInputs, estimatorOutputs},
		{&p.vocoder, VocoderGraph, vocoderInputs, vocoderOutputs},
	}
	for _, g := range graphs {
		s, err := rt.Open(filepath.Join(dir, g.file), g.inputs, g.outputs)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to open %s: %w", g.file, err)
		}
		*g.dst = s
	}
	return p, nil
}

// Config returns the model parameters.
func (p *Pipeline) Config() ModelConfig {
	return p.cfg
}

// Close releases every opened session.
func (p *Pipeline) Close() error {
	var first error
	for _, s := range []Session{p.duration, p.encoder, p.estimator, p.vocoder} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Synthesize turns text into mono samples at the model sample rate.
// Cancellation of ctx is observed between stages and between denoise steps
// and yields a Cancelled error with no audio.
func (p *Pipeline) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (samples []float32, err error) {
	if opts.Style == nil {
		return nil, tts.NewError(tts.KindSynthesis, "no voice style selected", nil)
	}
	rate := opts.Rate
	if rate <= 0 {
		rate = tts.DefaultRate
	}

	span := p.metrics.Start("neural", text)
	defer func() { span.End(len(samples), false, err) }()

	ids := p.tok.Encode(text)
	if len(ids) == 0 {
		return nil, tts.NewError(tts.KindSynthesis, "text produced no tokens", nil)
	}
	n := int64(len(ids))
	textIDs, err := IntTensor(ids, 1, n)
	if err != nil {
		return nil, tts.Wrap(tts.KindSynthesis, "token tensor", err)
	}
	textMask := Ones(1, 1, n)
	span.Mark("tokenize")

	if err := checkAbort(ctx); err != nil {
		return nil, err
	}
	out, err := run(p.duration, "duration", map[string]*Tensor{
		"text_ids":  textIDs,
		"style_dp":  opts.Style.DP,
		"text_mask": textMask,
	})
	if err != nil {
		return nil, err
	}
	total, chunks := p.length(out.Float, rate)
	span.Mark("duration")

	if err := checkAbort(ctx); err != nil {
		return nil, err
	}
	out, err = run(p.encoder, "text_emb", map[string]*Tensor{
		"text_ids":  textIDs,
		"style_ttl": opts.Style.TTL,
		"text_mask": textMask,
	})
	if err != nil {
		return nil, err
	}
	textEmb := out
	span.Mark("encode")

	channels := int64(p.cfg.Channels())
	latent, err := FloatTensor(GaussianNoise(Seed(text), int(channels)*chunks), 1, channels, int64(chunks))
	if err != nil {
		return nil, tts.Wrap(tts.KindSynthesis, "latent tensor", err)
	}
	latentMask := Ones(1, 1, int64(chunks))
	totalStep := Scalar(DenoiseSteps)

	for step := 0; step < DenoiseSteps; step++ {
		if err := checkAbort(ctx); err != nil {
			return nil, err
		}
		out, err = run(p.estimator, "denoised_latent", map[string]*Tensor{
			"noisy_latent": latent,
			"text_emb":     textEmb,
			"style_ttl":    opts.Style.TTL,
			"latent_mask":  latentMask,
			"text_mask":    textMask,
			"current_step": Scalar(float32(step)),
			"total_step":   totalStep,
		})
		if err != nil {
			return nil, err
		}
		if out.Len() != latent.Len() {
			return nil, tts.Errorf(tts.KindSynthesis, "estimator returned %d values, want %d", out.Len(), latent.Len())
		}
		latent = &Tensor{Shape: latent.Shape, Float: out.Float}
		if opts.Progress != nil {
			opts.Progress(float64(step+1) / float64(DenoiseSteps+1))
		}
	}
	span.Mark("denoise")

	if err := checkAbort(ctx); err != nil {
		return nil, err
	}
	out, err = run(p.vocoder, "wav_tts", map[string]*Tensor{"latent": latent})
	if err != nil {
		return nil, err
	}
	samples = out.Float
	if len(samples) > total {
		samples = samples[:total]
	}
	if opts.Volume != 1 {
		audio.Scale(samples, opts.Volume)
	}
	span.Mark("vocode")

	if opts.Progress != nil {
		opts.Progress(1)
	}
	return samples, nil
}

// length converts predicted durations into the output sample count and the
// number of latent chunks needed to produce it.
func (p *Pipeline) length(durations []float32, rate float64) (samples, chunks int) {
	var seconds float64
	for _, d := range durations {
		seconds += math.Max(float64(d), minTokenDuration) / rate
	}
	samples = int(seconds * float64(p.cfg.SampleRate))
	if samples < 1 {
		samples = 1
	}
	size := p.cfg.ChunkSize()
	chunks = (samples + size - 1) / size
	return samples, chunks
}

func run(s Session, output string, inputs map[string]*Tensor) (*Tensor, error) {
	outs, err := s.Run(inputs)
	if err != nil {
		return nil, tts.Wrap(tts.KindSynthesis, "graph execution failed", err)
	}
	t, ok := outs[output]
	if !ok || t == nil || t.IsInt() {
		return nil, tts.Errorf(tts.KindSynthesis, "graph did not produce float output %q", output)
	}
	return t, nil
}

func checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return tts.Wrap(tts.KindCancelled, "synthesis aborted", err)
	}
	return nil
}
