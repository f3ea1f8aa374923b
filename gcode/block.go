package gcode

import (
	"errors"
	"strings"
)

// Block is one line of gcode.
type Block []Word

// Arg returns the argument of the first word with letter w.
func (b Block) Arg(w byte) (float64, bool) {
	for _, g := range b {
		if g.W == w {
			return g.Arg, true
		}
	}
	return 0, false
}

// SetArg replaces the argument of the first word with letter w, appending
// a new word if none exists.
func (b Block) SetArg(w byte, val float64) Block {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return b
		}
	}
	return append(b, Word{W: w, Arg: val})
}

// Has reports if the block contains the exact word.
func (b Block) Has(w Word) bool {
	for _, g := range b {
		if g == w {
			return true
		}
	}
	return false
}

// Args returns the words that don't belong to a modal group (axes, P, S, etc).
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}
func (b Block) Clone() Block {
	if b == nil {
		return nil
	}
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) HasModal() bool {
	for _, g := range b {
		if g.ModalGroup() != ModalGroupNone {
			return true
		}
	}
	return false
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return errors.New("word was repeated in a block: " + string(g.W))
		}
		checkWord[g.W] = true
		m := g.ModalGroup()
		if m != ModalGroupNone && m != ModalGroupNonModal && checkModal[m] {
			return errors.New("multiple words from same modal group: " + b.String())
		}
		checkModal[m] = true
	}

	return nil
}

// String renders the block without spaces, as sent to the controller.
func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}
