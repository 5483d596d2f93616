// Package features converts raw PCM waveforms into the log-mel feature
// matrices consumed by the acoustic model. The pipeline is preemphasis,
// framing, Hamming windowing, FFT power spectrum, mel filterbank, log
// compression, low-frame-rate stacking, and optional mean-variance
// normalization. Every step has a fixed numeric contract so output is
// reproducible across runs.
package features
