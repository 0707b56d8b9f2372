package neural

// Runtime executes graph files. It is implemented by tts/neural/onnx and by
// in-memory fakes in tests.
type Runtime interface {
	// Open loads the graph at path, binding the named inputs and outputs.
	Open(path string, inputs, outputs []string) (Session, error)
	Close() error
}

// Session is one loaded graph.
type Session interface {
	// Run feeds inputs by name and returns the bound outputs by name.
	Run(inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close() error
}

// Graph I/O names. These are dictated by the model graphs and must match
// exactly.
var (
	durationInputs   = []string{"text_ids", "style_dp", "text_mask"}
	durationOutputs  = []string{"duration"}
	encoderInputs    = []string{"text_ids", "style_ttl", "text_mask"}
	encoderOutputs   = []string{"text_emb"}
	estimatorInputs  = []string{"noisy_latent", "text_emb", "style_ttl", "latent_mask", "text_mask", "current_step", "total_step"}
	estimatorOutputs = []string{"denoised_latent"}
	vocoderInputs    = []string{"latent"}
	vocoderOutputs   = []string{"wav_tts"}
)
