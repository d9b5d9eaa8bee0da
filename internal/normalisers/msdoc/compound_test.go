package msdoc

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

// Compound file constants for version 3 files with 512 byte sectors.
const (
	cfbSectorSize = 512
	cfbMiniCutoff = 4096
	cfbEndOfChain = 0xFFFFFFFE
	cfbFreeSect   = 0xFFFFFFFF
	cfbFATSect    = 0xFFFFFFFD
	cfbNoStream   = 0xFFFFFFFF
	cfbDirEntry   = 128
)

var le = binary.LittleEndian

type stream struct {
	name string
	data []byte
}

// compoundFile builds a minimal compound binary file holding streams
// below the root storage. Streams are padded to the mini stream cutoff so
// every stream lives in regular sectors.
func compoundFile(t *testing.T, streams ...stream) []byte {
	t.Helper()

	fat := []uint32{cfbFATSect}
	chain := func(sectors int) uint32 {
		start := uint32(len(fat))
		for i := 0; i < sectors; i++ {
			if i == sectors-1 {
				fat = append(fat, cfbEndOfChain)
			} else {
				fat = append(fat, uint32(len(fat)+1))
			}
		}
		return start
	}

	entriesPerSector := cfbSectorSize / cfbDirEntry
	dirSectors := (len(streams) + 1 + entriesPerSector - 1) / entriesPerSector
	dirStart := chain(dirSectors)

	padded := make([][]byte, len(streams))
	starts := make([]uint32, len(streams))
	for i, s := range streams {
		size := max(cfbMiniCutoff, (len(s.data)+cfbSectorSize-1)/cfbSectorSize*cfbSectorSize)
		padded[i] = make([]byte, size)
		copy(padded[i], s.data)
		starts[i] = chain(size / cfbSectorSize)
	}
	require.LessOrEqual(t, len(fat), cfbSectorSize/4, "fixture needs a single FAT sector")

	header := make([]byte, cfbSectorSize)
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(header[24:], 0x003E)
	le.PutUint16(header[26:], 0x0003)
	le.PutUint16(header[28:], 0xFFFE)
	le.PutUint16(header[30:], 9)
	le.PutUint16(header[32:], 6)
	le.PutUint32(header[44:], 1)
	le.PutUint32(header[48:], dirStart)
	le.PutUint32(header[56:], cfbMiniCutoff)
	le.PutUint32(header[60:], cfbEndOfChain)
	le.PutUint32(header[68:], cfbEndOfChain)
	le.PutUint32(header[76:], 0)
	for i := 1; i < 109; i++ {
		le.PutUint32(header[76+4*i:], cfbFreeSect)
	}

	fatSector := make([]byte, cfbSectorSize)
	for i := 0; i < cfbSectorSize/4; i++ {
		v := uint32(cfbFreeSect)
		if i < len(fat) {
			v = fat[i]
		}
		le.PutUint32(fatSector[4*i:], v)
	}

	dir := make([]byte, dirSectors*cfbSectorSize)
	for i := 0; i < dirSectors*entriesPerSector; i++ {
		e := dir[i*cfbDirEntry : (i+1)*cfbDirEntry]
		le.PutUint32(e[68:], cfbNoStream)
		le.PutUint32(e[72:], cfbNoStream)
		le.PutUint32(e[76:], cfbNoStream)
	}
	root := dir[:cfbDirEntry]
	dirEntry(root, "Root Entry", 5, cfbEndOfChain, 0)
	if len(streams) > 0 {
		le.PutUint32(root[76:], 1)
	}
	for i := range streams {
		e := dir[(i+1)*cfbDirEntry : (i+2)*cfbDirEntry]
		dirEntry(e, streams[i].name, 2, starts[i], len(padded[i]))
		if i+1 < len(streams) {
			le.PutUint32(e[68:], uint32(i+2))
		}
	}

	out := append(header, fatSector...)
	out = append(out, dir...)
	for _, p := range padded {
		out = append(out, p...)
	}
	return out
}

func dirEntry(e []byte, name string, objectType byte, start uint32, size int) {
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		le.PutUint16(e[2*i:], u)
	}
	le.PutUint16(e[64:], uint16(2*(len(units)+1)))
	e[66] = objectType
	e[67] = 1
	le.PutUint32(e[116:], start)
	le.PutUint64(e[120:], uint64(size))
}

func utf16le(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

// textPiece is one piece of document text, stored as 8-bit or UTF-16LE.
type textPiece struct {
	text string
	wide bool
}

// fibSize leaves room for a Word 97 file information block.
const fibSize = 1024

// wordStreams builds WordDocument and 1Table streams whose piece table
// maps pieces in order. The first ccpText characters are the main text.
func wordStreams(flags uint16, ccpText int, pieces ...textPiece) (word, table []byte) {
	word = make([]byte, fibSize)
	le.PutUint16(word[0:], fibIdent)
	le.PutUint16(word[2:], 0x00C1)
	le.PutUint16(word[fibFlagsOff:], flags|fibWhichTable)
	le.PutUint16(word[32:], 14)
	le.PutUint16(word[62:], 22)
	le.PutUint32(word[64+12:], uint32(ccpText))
	le.PutUint16(word[152:], 93)

	cps := []uint32{0}
	var fcs []uint32
	for _, p := range pieces {
		off := uint32(len(word))
		var n int
		if p.wide {
			word = append(word, utf16le(p.text)...)
			n = len(utf16.Encode([]rune(p.text)))
			fcs = append(fcs, off)
		} else {
			word = append(word, []byte(p.text)...)
			n = len(p.text)
			fcs = append(fcs, (off*2)|fcCompressed)
		}
		cps = append(cps, cps[len(cps)-1]+uint32(n))
	}

	plc := make([]byte, 0, 4*len(cps)+pcdLen*len(fcs))
	for _, cp := range cps {
		plc = le.AppendUint32(plc, cp)
	}
	for _, fc := range fcs {
		plc = append(plc, 0, 0)
		plc = le.AppendUint32(plc, fc)
		plc = append(plc, 0, 0)
	}
	table = append([]byte{clxPcdt}, le.AppendUint32(nil, uint32(len(plc)))...)
	table = append(table, plc...)

	pair := 154 + clxPair*8
	le.PutUint32(word[pair:], 0)
	le.PutUint32(word[pair+4:], uint32(len(table)))
	return word, table
}
