package audio

import "fmt"

// Ring is a fixed-capacity ring buffer of float32 PCM samples. The capture
// callback writes device frames into it while no speech is detected, so the
// start of an utterance can be seeded with the audio immediately preceding
// the trigger. Write never allocates; the oldest samples are overwritten
// once the buffer is full.
//
// Ring is not safe for concurrent use; the capture session guards it with
// its own mutex.
type Ring struct {
	buf   []float32
	start int // index of the oldest sample
	size  int // number of valid samples
}

// NewRing creates a ring buffer holding at most capacity samples.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	return &Ring{buf: make([]float32, capacity)}, nil
}

// Write appends samples, overwriting the oldest data when full.
func (r *Ring) Write(samples []float32) {
	cap := len(r.buf)

	// Only the trailing capacity-worth of a large write can survive.
	if len(samples) >= cap {
		copy(r.buf, samples[len(samples)-cap:])
		r.start = 0
		r.size = cap
		return
	}

	end := (r.start + r.size) % cap
	n := copy(r.buf[end:], samples)
	if n < len(samples) {
		copy(r.buf, samples[n:])
	}

	r.size += len(samples)
	if r.size > cap {
		r.start = (r.start + r.size - cap) % cap
		r.size = cap
	}
}

// Snapshot returns the buffered samples in chronological order.
func (r *Ring) Snapshot() []float32 {
	out := make([]float32, r.size)
	n := copy(out, r.buf[r.start:min(r.start+r.size, len(r.buf))])
	if n < r.size {
		copy(out[n:], r.buf)
	}
	return out
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int { return r.size }

// Cap returns the buffer capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Reset discards all buffered samples.
func (r *Ring) Reset() {
	r.start = 0
	r.size = 0
}
