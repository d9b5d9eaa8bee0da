package msdoc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

var errEncrypted = errors.New("document is encrypted")

const (
	fibIdent      = 0xA5EC
	fibFlagsOff   = 0x0A
	fibWhichTable = 0x0200
	fibEncrypted  = 0x0100
	fibBaseLen    = 32

	// clxPair is the index of fcClx/lcbClx in FibRgFcLcb97.
	clxPair = 33

	clxPrc  = 0x01
	clxPcdt = 0x02

	pcdLen         = 8
	fcCompressed   = 0x40000000
	fcOffsetMask   = 0x3FFFFFFF
	maxPieceLength = 1 << 26
)

// fib holds the parts of the file information block needed to read the
// main document text.
type fib struct {
	table   string
	ccpText uint32
	fcClx   uint32
	lcbClx  uint32
}

// piece is one entry of the piece table: characters [cpStart, cpEnd)
// stored at fc in the WordDocument stream.
type piece struct {
	cpStart, cpEnd uint32
	fc             uint32
	compressed     bool
}

// mainText decodes the main document text of a WordDocument stream.
// Footnotes, headers and other story text after ccpText are left out.
func mainText(word []byte, streams map[string][]byte) (string, error) {
	f, err := readFIB(word)
	if err != nil {
		return "", err
	}
	table, ok := streams[f.table]
	if !ok {
		return "", fmt.Errorf("no %s stream", f.table)
	}
	pieces, err := readPieces(table, f.fcClx, f.lcbClx)
	if err != nil {
		return "", err
	}
	text, err := pieceText(word, pieces, f.ccpText)
	if err != nil {
		return "", err
	}
	return cleanText(text), nil
}

func readFIB(word []byte) (fib, error) {
	var f fib
	if len(word) < fibBaseLen+2 {
		return f, errors.New("short file information block")
	}
	if binary.LittleEndian.Uint16(word) != fibIdent {
		return f, errors.New("not a Word binary document")
	}
	flags := binary.LittleEndian.Uint16(word[fibFlagsOff:])
	if flags&fibEncrypted != 0 {
		return f, errEncrypted
	}
	f.table = table0Stream
	if flags&fibWhichTable != 0 {
		f.table = table1Stream
	}

	// FibRgW, FibRgLw and FibRgFcLcb each follow a count.
	pos := fibBaseLen
	csw, ok := u16(word, pos)
	if !ok {
		return f, errors.New("truncated FibRgW")
	}
	pos += 2 + int(csw)*2

	cslw, ok := u16(word, pos)
	if !ok || cslw < 4 {
		return f, errors.New("truncated FibRgLw")
	}
	lw := pos + 2
	if f.ccpText, ok = u32(word, lw+12); !ok {
		return f, errors.New("truncated FibRgLw")
	}
	pos = lw + int(cslw)*4

	cbRgFcLcb, ok := u16(word, pos)
	if !ok || cbRgFcLcb <= clxPair {
		return f, errors.New("no piece table in FibRgFcLcb")
	}
	pair := pos + 2 + clxPair*8
	fcClx, ok1 := u32(word, pair)
	lcbClx, ok2 := u32(word, pair+4)
	if !ok1 || !ok2 || lcbClx == 0 {
		return f, errors.New("no piece table in FibRgFcLcb")
	}
	f.fcClx, f.lcbClx = fcClx, lcbClx
	return f, nil
}

// readPieces parses the Clx at fcClx in the table stream: any Prc
// entries are skipped and the PlcPcd of the Pcdt is returned.
func readPieces(table []byte, fcClx, lcbClx uint32) ([]piece, error) {
	end := uint64(fcClx) + uint64(lcbClx)
	if end > uint64(len(table)) {
		return nil, errors.New("piece table outside the table stream")
	}
	clx := table[fcClx:end]

	for i := 0; i < len(clx); {
		switch clx[i] {
		case clxPrc:
			cb, ok := u16(clx, i+1)
			if !ok || int16(cb) < 0 {
				return nil, errors.New("truncated Prc")
			}
			i += 3 + int(cb)
		case clxPcdt:
			lcb, ok := u32(clx, i+1)
			if !ok || uint64(i+5)+uint64(lcb) > uint64(len(clx)) {
				return nil, errors.New("truncated Pcdt")
			}
			return parsePlcPcd(clx[i+5 : i+5+int(lcb)])
		default:
			return nil, fmt.Errorf("unexpected Clx entry 0x%02x", clx[i])
		}
	}
	return nil, errors.New("no Pcdt in Clx")
}

func parsePlcPcd(plc []byte) ([]piece, error) {
	if len(plc) < 4+4+pcdLen || (len(plc)-4)%(4+pcdLen) != 0 {
		return nil, errors.New("malformed PlcPcd")
	}
	n := (len(plc) - 4) / (4 + pcdLen)
	pcds := plc[4*(n+1):]

	pieces := make([]piece, 0, n)
	for i := 0; i < n; i++ {
		start := binary.LittleEndian.Uint32(plc[4*i:])
		end := binary.LittleEndian.Uint32(plc[4*(i+1):])
		if end < start || end-start > maxPieceLength {
			return nil, errors.New("malformed PlcPcd")
		}
		raw := binary.LittleEndian.Uint32(pcds[i*pcdLen+2:])
		p := piece{cpStart: start, cpEnd: end, fc: raw & fcOffsetMask, compressed: raw&fcCompressed != 0}
		if p.compressed {
			p.fc /= 2
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// pieceText concatenates the first limit characters described by pieces.
func pieceText(word []byte, pieces []piece, limit uint32) (string, error) {
	var b strings.Builder
	decoder := charmap.Windows1252.NewDecoder()
	for _, p := range pieces {
		if p.cpStart >= limit {
			break
		}
		count := min(p.cpEnd, limit) - p.cpStart
		if p.compressed {
			data, err := slice(word, p.fc, count)
			if err != nil {
				return "", err
			}
			text, err := decoder.Bytes(data)
			if err != nil {
				return "", fmt.Errorf("decode piece at %d: %w", p.fc, err)
			}
			b.Write(text)
			continue
		}
		data, err := slice(word, p.fc, 2*count)
		if err != nil {
			return "", err
		}
		units := make([]uint16, count)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		b.WriteString(string(utf16.Decode(units)))
	}
	return b.String(), nil
}

// Word control characters in the text stream.
const (
	chCell         = 0x07
	chLineBreak    = 0x0B
	chPageBreak    = 0x0C
	chParagraph    = 0x0D
	chSectionBreak = 0x0E
	chFieldBegin   = 0x13
	chFieldSep     = 0x14
	chFieldEnd     = 0x15
	chNBHyphen     = 0x1E
)

// cleanText maps Word control characters to plain text. Field
// instructions are dropped and field results kept.
func cleanText(s string) string {
	var (
		b strings.Builder
		// fields holds one entry per open field: true while its
		// instruction part is being read.
		fields []bool
	)
	inCode := func() bool {
		for _, code := range fields {
			if code {
				return true
			}
		}
		return false
	}

	for _, r := range s {
		switch r {
		case chFieldBegin:
			fields = append(fields, true)
			continue
		case chFieldSep:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case chFieldEnd:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if inCode() {
			continue
		}
		switch {
		case r == chParagraph || r == chCell || r == chLineBreak || r == chPageBreak || r == chSectionBreak:
			b.WriteByte('\n')
		case r == chNBHyphen:
			b.WriteByte('-')
		case r == ' ':
			b.WriteByte(' ')
		case r == '\t' || r >= 0x20:
			b.WriteRune(r)
		}
	}
	return joinLines(b.String())
}

func joinLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func slice(data []byte, off, n uint32) ([]byte, error) {
	end := uint64(off) + uint64(n)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("piece at %d runs past the WordDocument stream", off)
	}
	return data[off:end], nil
}

func u16(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[off:]), true
}

func u32(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[off:]), true
}
