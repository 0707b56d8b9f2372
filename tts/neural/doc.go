// Package neural implements on-device neural speech synthesis.
//
// A model directory holds four graphs (duration predictor, text encoder,
// vector estimator and vocoder), a tts.json with acoustic parameters, a
// unicode_indexer.json tokenizer table and a voice_styles directory. The
// Pipeline chains the graphs; the Engine owns a loaded Pipeline and its
// styles; the Backend adapts an Engine and an audio sink to
// tts.NeuralBackend.
//
// Synthesis is deterministic: the initial latent noise is seeded from a hash
// of the input text, so identical text always yields identical audio.
package neural
