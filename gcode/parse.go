package gcode

import (
	"bytes"
	"io"
)

// ReadAll collects every remaining Block from r.
func ReadAll(r Reader) ([]Block, error) {
	var b []Block
	for {
		bl, err := r.Read()
		if err == io.EOF {
			return b, nil
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
}

func Parse(data string) ([]Block, error) {
	return ReadAll(NewParser(bytes.NewBufferString(data)))
}

func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}
