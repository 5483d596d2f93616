// Package capture records one utterance from a live audio input stream.
// A Session runs a voice-activity-driven state machine inside the device
// callback: it keeps a bounded pre-speech ring while idle, starts recording
// when speech probability crosses the trigger threshold, and stops on a
// sustained silence window, a hard time cap, an external stop request, or a
// device failure. The controller takes the accumulated waveform only after
// the machine reaches Stopped; a session is not reusable.
package capture
