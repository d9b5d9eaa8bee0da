// Package connectors holds the document sources the ingest pipeline reads
// from. Each source implements driven.DocumentSource and, when it can
// observe changes, driven.ChangeWatcher.
//
// The filesystem source is the only one wired today.
package connectors
