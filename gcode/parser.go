package gcode

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a line the parser could not understand.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gcode: line %d: %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("gcode: line %d: invalid or unhandled line: %q", e.Line, e.Text)
}
func (e *ParseError) Unwrap() error { return e.Err }

// Parser reads Blocks from a gcode program, one line at a time.
type Parser struct {
	br   *bufio.Reader
	line int
}

var _ Reader = &Parser{}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx        = regexp.MustCompile(`^([A-Z][+\-]?[0-9]*\.?[0-9]*)+$`)
	rxSplit   = regexp.MustCompile(`[A-Z][+\-]?[0-9]*\.?[0-9]*`)
	rxComment = regexp.MustCompile(`\([^)]*\)`)
)

// Line returns the number of the last line read.
func (p *Parser) Line() int { return p.line }

func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}
		p.line++

		s = strings.SplitN(s, ";", 2)[0]
		s = rxComment.ReplaceAllString(s, "")
		s = strings.Replace(s, " ", "", -1)
		s = strings.Replace(s, "\t", "", -1)
		s = strings.TrimSpace(s)
		s = strings.ToUpper(s)

		if s == "" || s == "%" {
			continue
		}

		if !rx.MatchString(s) {
			return nil, &ParseError{Line: p.line, Text: s}
		}

		codes := rxSplit.FindAllString(s, -1)
		res := make(Block, 0, len(codes))

		for _, c := range codes {
			if c[0] == 'N' {
				// line numbers are never sent
				continue
			}
			arg, err := strconv.ParseFloat(c[1:], 64)
			if err != nil {
				return nil, &ParseError{Line: p.line, Text: s, Err: err}
			}
			res = append(res, Word{W: c[0], Arg: arg})
		}
		if len(res) == 0 {
			continue
		}

		return res, nil
	}
}
