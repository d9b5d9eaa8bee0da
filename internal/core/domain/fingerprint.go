package domain

import (
	"fmt"
	"strings"
)

// EmbeddingFingerprint captures everything that determines the vector
// space an embedding lives in. Vectors produced under different
// fingerprints must never share a collection.
type EmbeddingFingerprint struct {
	Provider   AIProvider
	Model      string
	Dimensions int
	Normalize  bool
}

// String returns the stable textual form stored alongside records.
func (f EmbeddingFingerprint) String() string {
	norm := "raw"
	if f.Normalize {
		norm = "l2"
	}
	return fmt.Sprintf("%s/%s/%d/%s",
		strings.ToLower(string(f.Provider)), strings.ToLower(f.Model), f.Dimensions, norm)
}
