package gcode

import "io"

// Reader is a source of Blocks. Read returns io.EOF after the last Block.
type Reader interface {
	Read() (Block, error)
}

// BlocksReader reads from a slice of already parsed Blocks.
type BlocksReader struct {
	Blocks []Block
	n      int
}

// Read returns the next Block, without copying it.
func (b *BlocksReader) Read() (Block, error) {
	if b.n == len(b.Blocks) {
		return nil, io.EOF
	}

	b.n++
	return b.Blocks[b.n-1], nil
}
