// Package normalisers turns raw file bytes into text documents. Each
// subpackage handles one format; Registry picks the right one for a file
// by MIME type or extension and falls back to plain text.
package normalisers
