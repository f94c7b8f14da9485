// Package peaks selects a sparse, pitch-spaced set of peaks from a sampled
// magnitude spectrum.
//
// Processing has two stages. Local maxima are found over the interior
// samples; those are then filtered by height and de-duplicated in pitch
// space, so two retained peaks are always at least MinNoteDistance
// semitones apart regardless of where they sit in the spectrum.
//
// An Extractor holds only its constants. Process is a pure function of its
// input and may be called from any number of goroutines.
package peaks

import (
	"math"
	"slices"

	"github.com/xtxerr/tonestore/config"
)

// Point is one spectrum sample.
type Point struct {
	Frequency float64 // Hz, increasing across a spectrum
	Magnitude float64
}

// Peak is a selected local maximum.
type Peak struct {
	Location float64 // Hz
	Height   float64
}

// Note returns the peak's continuous note number.
func (p Peak) Note() float64 {
	return FreqToNote(p.Location)
}

// Extractor holds the peak selection constants.
type Extractor struct {
	// HeightCutoff drops candidates with Height <= HeightCutoff.
	HeightCutoff float64

	// MinNoteDistance is the half-width, in semitones, of the window
	// within which only the highest candidate survives.
	MinNoteDistance float64
}

// DefaultExtractor returns an Extractor with the default constants.
func DefaultExtractor() Extractor {
	return Extractor{
		HeightCutoff:    config.DefaultHeightCutoff,
		MinNoteDistance: config.DefaultMinNoteDistance,
	}
}

// Process returns the peaks of points, ordered by increasing frequency.
// Fewer than three points have no interior sample and yield no peaks.
func (e Extractor) Process(points []Point) []Peak {
	return e.Select(LocalMaxima(points))
}

// LocalMaxima returns every interior sample i with
// y[i-1] <= y[i] >= y[i+1]. Plateaus yield one candidate per sample.
func LocalMaxima(points []Point) []Peak {
	if len(points) < 3 {
		return nil
	}

	var candidates []Peak
	for i := 1; i < len(points)-1; i++ {
		y := points[i].Magnitude
		if points[i-1].Magnitude <= y && y >= points[i+1].Magnitude {
			candidates = append(candidates, Peak{
				Location: points[i].Frequency,
				Height:   y,
			})
		}
	}
	return candidates
}

// Select filters candidates by height and merges those closer than
// MinNoteDistance semitones.
//
// Candidates are walked in increasing frequency with a single acceptance
// window [NoteToFreq(c-d), NoteToFreq(c+d)] centred on the current winner's
// note c. A candidate inside the window replaces the winner only if it is
// strictly higher, and the window moves with the winner. A candidate
// outside the window closes it and opens a new one. Candidates with a
// non-positive or non-finite frequency have no pitch and are dropped.
func (e Extractor) Select(candidates []Peak) []Peak {
	// NaN heights and locations fail these comparisons and are dropped
	// before sorting.
	sorted := make([]Peak, 0, len(candidates))
	for _, c := range candidates {
		if c.Height > e.HeightCutoff && c.Location > 0 && !math.IsInf(c.Location, 1) {
			sorted = append(sorted, c)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Peak) int {
		switch {
		case a.Location < b.Location:
			return -1
		case a.Location > b.Location:
			return 1
		default:
			return 0
		}
	})

	var (
		peaks   []Peak
		current Peak
		open    bool
		lo, hi  float64
	)
	for _, c := range sorted {
		if open && c.Location >= lo && c.Location <= hi {
			if c.Height > current.Height {
				current = c
				lo, hi = e.window(current)
			}
			continue
		}

		if open {
			peaks = append(peaks, current)
		}
		current, open = c, true
		lo, hi = e.window(current)
	}
	if open {
		peaks = append(peaks, current)
	}
	return peaks
}

// window returns the frequency bounds of the acceptance window around p.
func (e Extractor) window(p Peak) (lo, hi float64) {
	n := p.Note()
	return NoteToFreq(n - e.MinNoteDistance), NoteToFreq(n + e.MinNoteDistance)
}

// FreqToNote converts a frequency to a continuous note number
// (A4 = 440 Hz = 69, 12 notes per octave).
func FreqToNote(freq float64) float64 {
	return 12*math.Log2(freq/config.ReferenceFrequency) + config.ReferenceNote
}

// NoteToFreq converts a continuous note number to a frequency.
func NoteToFreq(note float64) float64 {
	return config.ReferenceFrequency * math.Exp2((note-config.ReferenceNote)/12)
}

// Dense lays peaks out as fixed-width feature channels: heights and
// locations of the first width peaks, zero-padded.
func Dense(peaks []Peak, width int) (heights, locations []float32) {
	heights = make([]float32, width)
	locations = make([]float32, width)
	for i, p := range peaks {
		if i >= width {
			break
		}
		heights[i] = float32(p.Height)
		locations[i] = float32(p.Location)
	}
	return heights, locations
}
