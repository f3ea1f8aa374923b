package machine

import "github.com/mastercactapus/gsend/gcode"

// Command is one block to send to the controller, along with the
// interpreter context valid before the block executes.
type Command struct {
	Block   gcode.Block
	Context gcode.Context
}

func (c Command) String() string { return c.Block.String() }

// Batch is an ordered sequence of commands for a single run.
type Batch []Command

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	c := make(Batch, len(b))
	for i, cmd := range b {
		c[i] = Command{Block: cmd.Block.Clone(), Context: cmd.Context}
	}
	return c
}

// Blocks returns the blocks of the batch in order.
func (b Batch) Blocks() []gcode.Block {
	res := make([]gcode.Block, len(b))
	for i, cmd := range b {
		res[i] = cmd.Block
	}
	return res
}
