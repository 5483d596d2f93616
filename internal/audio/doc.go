// Package audio provides PCM sample handling for the capture pipeline:
// int16/float32 conversion, a bounded pre-speech ring buffer, and WAV
// encoding/decoding for utterance dumps.
package audio
