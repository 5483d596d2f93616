// Package ctc decodes frame-level classifier output into a token id
// sequence using greedy CTC collapse.
package ctc
