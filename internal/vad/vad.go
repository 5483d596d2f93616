package vad

// Detector classifies audio frames as speech or non-speech.
//
// Probability returns a smoothed speech probability in [0, 1] for one
// device frame. Reset clears all per-session state and must be called at
// the start of every capture session; a detector instance serves one
// session at a time.
//
// The variant is chosen at construction. Callers never dispatch on a type
// tag per frame.
type Detector interface {
	Probability(frame []float32) float32
	Reset()
}
