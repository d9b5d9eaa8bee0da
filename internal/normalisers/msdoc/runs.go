package msdoc

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

// recoverRuns returns the distinct runs of readable text in data, both
// UTF-16LE and 8-bit, one per line.
func (n *Normaliser) recoverRuns(data []byte) string {
	runs := append(n.wideRuns(data), n.narrowRuns(data)...)

	seen := make(map[string]bool, len(runs))
	lines := make([]string, 0, len(runs))
	for _, r := range runs {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		lines = append(lines, r)
	}
	return strings.Join(lines, "\n")
}

// narrowRuns returns runs of printable 8-bit characters.
func (n *Normaliser) narrowRuns(data []byte) []string {
	var runs []string
	var cur []rune
	flush := func() {
		if len(cur) >= n.minRun && hasLetters(cur) {
			runs = append(runs, string(cur))
		}
		cur = cur[:0]
	}
	for _, b := range data {
		if r := rune(b); isText(r) && b < 0x80 {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return runs
}

// wideRuns returns runs of printable UTF-16LE characters, at either byte
// alignment.
func (n *Normaliser) wideRuns(data []byte) []string {
	var runs []string
	for align := 0; align < 2; align++ {
		var cur []uint16
		flush := func() {
			if len(cur) >= n.minRun {
				if rs := utf16.Decode(cur); hasLetters(rs) && !isNarrowShadow(cur) {
					runs = append(runs, string(rs))
				}
			}
			cur = cur[:0]
		}
		for i := align; i+1 < len(data); i += 2 {
			u := uint16(data[i]) | uint16(data[i+1])<<8
			if isText(rune(u)) {
				cur = append(cur, u)
				continue
			}
			flush()
		}
		flush()
	}
	return runs
}

// isNarrowShadow reports whether a wide run is mostly pairs of ASCII bytes
// read as one code unit, which narrowRuns already covers.
func isNarrowShadow(units []uint16) bool {
	shadow := 0
	for _, u := range units {
		lo, hi := byte(u), byte(u>>8)
		if hi != 0 && lo < 0x80 && hi < 0x80 {
			shadow++
		}
	}
	return shadow*2 > len(units)
}

func isText(r rune) bool {
	switch r {
	case '\t', '\r', '\n':
		return true
	}
	return unicode.IsPrint(r) && r != unicode.ReplacementChar
}

func hasLetters(rs []rune) bool {
	letters := 0
	for _, r := range rs {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters*2 >= len(rs)
}
