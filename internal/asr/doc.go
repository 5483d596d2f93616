// Package asr turns a captured waveform into a token sequence: feature
// extraction, one acoustic-model call through the inference engine, and
// greedy CTC decoding. Token-to-text conversion is delegated to an optional
// external tokenizer.
package asr
