// Package vad provides voice activity detection for the capture session.
// A Detector maps a fixed-size audio frame to a smoothed speech probability
// in [0, 1]. Two variants exist: a stateless energy detector and a stateful
// neural detector that carries recurrent model state across calls.
package vad
