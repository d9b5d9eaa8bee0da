// Package memory provides in-process implementations of the driven storage
// ports: a brute-force cosine vector index and a manifest store. Contents
// are lost when the process exits.
package memory
