package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

const (
	// DefaultLoopWindow is how many recent tool calls the detector keeps.
	DefaultLoopWindow = 8
	// DefaultLoopThreshold is how many identical signatures within the
	// window flag a loop.
	DefaultLoopThreshold = 3

	minLoopWindow = 6
	maxLoopWindow = 10
)

// LoopDetector tracks signatures of recent tool calls and flags a call
// once an identical signature repeats threshold times within the window.
// Matching is exact: a one-byte difference in normalized input is a
// different signature.
type LoopDetector struct {
	window    int
	threshold int
	recent    []string
}

// NewLoopDetector creates a detector. Out-of-range values fall back to the
// defaults (window 6-10, threshold at least 2).
func NewLoopDetector(window, threshold int) *LoopDetector {
	if window < minLoopWindow || window > maxLoopWindow {
		window = DefaultLoopWindow
	}
	if threshold < 2 {
		threshold = DefaultLoopThreshold
	}
	return &LoopDetector{window: window, threshold: threshold}
}

// Observe records a tool call and reports whether it completes a loop.
func (d *LoopDetector) Observe(name string, input json.RawMessage) bool {
	sig := callSignature(name, input)
	d.recent = append(d.recent, sig)
	if len(d.recent) > d.window {
		d.recent = d.recent[len(d.recent)-d.window:]
	}

	count := 0
	for _, s := range d.recent {
		if s == sig {
			count++
		}
	}
	return count >= d.threshold
}

// Reset clears the detector's history. Called at the start of every run.
func (d *LoopDetector) Reset() {
	d.recent = d.recent[:0]
}

// callSignature computes a deterministic signature for a tool call
// (name + hash of normalized arguments).
func callSignature(name string, input json.RawMessage) string {
	h := sha256.Sum256(normalizeInput(input))
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// normalizeInput canonicalizes JSON input so that key order does not
// affect the signature. Re-marshaling through interface{} sorts object
// keys at every depth. Non-JSON input is hashed as-is.
func normalizeInput(input json.RawMessage) []byte {
	if len(input) == 0 {
		return []byte("{}")
	}
	var v interface{}
	if err := json.Unmarshal(input, &v); err != nil {
		return input
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return input
	}
	return normalized
}
