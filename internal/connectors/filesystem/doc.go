// Package filesystem discovers and reads source documents from local disk
// and watches a data directory for changes with fsnotify.
package filesystem
