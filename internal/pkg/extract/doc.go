package extract

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

const minDocRun = 4

// docText recovers readable text from a legacy Word binary. The text stream of
// a .doc file is stored either as UTF-16LE or as 8 bit characters inside an
// OLE container, so both encodings are scanned and the richer result wins.
func docText(b []byte) string {
	wide := utf16Runs(b)
	narrow := byteRuns(b)
	if len(wide) >= len(narrow) {
		return wide
	}
	return narrow
}

func utf16Runs(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])|uint16(b[i+1])<<8)
	}
	return collectRuns(utf16.Decode(units))
}

func byteRuns(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return collectRuns(runes)
}

func collectRuns(runes []rune) string {
	var (
		out strings.Builder
		run []rune
	)
	flush := func() {
		if countLetters(run) >= minDocRun {
			out.WriteString(string(run))
			out.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, r := range runes {
		if r == '\r' || r == '\n' {
			flush()
			continue
		}
		if r == unicode.ReplacementChar || !(unicode.IsPrint(r) || r == '\t') || r > unicode.MaxLatin1 && !unicode.IsLetter(r) && !unicode.IsPunct(r) {
			flush()
			continue
		}
		run = append(run, r)
	}
	flush()
	return out.String()
}

func countLetters(run []rune) int {
	n := 0
	for _, r := range run {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
