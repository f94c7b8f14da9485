package peaks

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xtxerr/tonestore/internal/errors"
)

// ReadPoints reads a spectrum as "frequency,magnitude" lines. A first line
// that does not parse as numbers is taken as a header. Lines starting with
// '#' are skipped.
func ReadPoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var points []Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return points, nil
		}
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "read points: %v", err)
		}

		p, err := parsePair(rec[0], rec[1])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, errors.Wrapf(err, "line %d", line)
		}
		points = append(points, p)
	}
}

// ParsePoint parses "frequency:magnitude".
func ParsePoint(s string) (Point, error) {
	freq, mag, ok := strings.Cut(s, ":")
	if !ok {
		return Point{}, fmt.Errorf("%w: point %q is not frequency:magnitude", errors.ErrInvalidInput, s)
	}
	return parsePair(freq, mag)
}

func parsePair(freq, mag string) (Point, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(freq), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: frequency %q", errors.ErrInvalidInput, freq)
	}
	m, err := strconv.ParseFloat(strings.TrimSpace(mag), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: magnitude %q", errors.ErrInvalidInput, mag)
	}
	return Point{Frequency: f, Magnitude: m}, nil
}
