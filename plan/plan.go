// Package plan turns gcode programs into batches ready to stream.
package plan

import (
	"fmt"
	"io"
	"os"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/meshlevel"
)

// Options adjust how a program is planned.
type Options struct {
	// Mesh, if set, levels the program against a probed surface.
	Mesh meshlevel.ZOffsetter

	// Granularity is the longest leveled segment, in mm.
	Granularity float64
}

const defaultGranularity = 1.0

// Build reads every block from r and pairs it with the interpreter
// context in effect before it runs, starting from start.
func Build(r gcode.Reader, start gcode.Context) (machine.Batch, error) {
	in := gcode.NewInterpreter()
	in.SetContext(start)

	var batch machine.Batch
	for {
		b, err := r.Read()
		if err == io.EOF {
			return batch, nil
		}
		if err != nil {
			return nil, err
		}

		ctx := in.Context()
		err = in.Run(b)
		if err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", len(batch)+1, b, err)
		}
		batch = append(batch, machine.Command{Block: b, Context: ctx})
	}
}

// BuildWith is Build with mesh leveling applied first.
func BuildWith(r gcode.Reader, start gcode.Context, opt Options) (machine.Batch, error) {
	if opt.Mesh == nil {
		return Build(r, start)
	}
	if opt.Granularity <= 0 {
		opt.Granularity = defaultGranularity
	}
	return Build(meshlevel.New(meshlevel.Config{
		ZOffsetter:  opt.Mesh,
		Granularity: opt.Granularity,
		Start:       start,
		Reader:      r,
	}), start)
}

// ParseFile plans the program stored at path.
func ParseFile(path string, start gcode.Context, opt Options) (machine.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return BuildWith(gcode.NewParser(f), start, opt)
}
