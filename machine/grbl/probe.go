package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/gsend/coord"
)

// ProbeResult is a `[PRB:x,y,z:ok]` report in machine coordinates.
type ProbeResult struct {
	coord.Point
	Valid bool
}

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

func parseProbe(data string) (*ProbeResult, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	if parts[0] != "PRB" || len(parts) != 3 {
		return nil, errors.New("not a probe report: " + data)
	}

	var res ProbeResult
	var err error
	res.Valid = parts[2] == "1"
	res.Point, err = parseCoords(parts[1])
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// FindProbe returns the first probe report in a command response.
func FindProbe(resp string) (*ProbeResult, bool) {
	for _, line := range strings.Split(resp, "\n") {
		if !strings.HasPrefix(line, "[PRB:") {
			continue
		}
		res, err := parseProbe(line)
		if err != nil {
			return nil, false
		}
		return res, true
	}
	return nil, false
}
