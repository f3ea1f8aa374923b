package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter address and its argument, e.g. `G1` or `X-2.5`.
type Word struct {
	W   byte
	Arg float64
}

// IsAxis reports whether the word addresses one of the linear axes the
// interpreter tracks.
func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z':
		return true
	}
	return false
}

// IsValid reports whether the address is an upper-case letter.
func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// formatFloat renders f with at most prec decimals and no trailing zeros.
func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// String renders the word as sent on the wire, rounded to 4 decimals.
func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
