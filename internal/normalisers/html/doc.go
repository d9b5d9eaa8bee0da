// Package html provides a Normaliser for HTML pages. Scripts, styles and
// comments are dropped, block elements become line breaks, and entities are
// decoded.
package html
