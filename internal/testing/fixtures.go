package testing

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Small geometry used across tests so files stay tiny.
const (
	BandCount = 16
	NoteCount = 8
	ChunkSize = 4
)

// Config returns a configuration rooted in a fresh temporary directory.
// Chunks are small so multi-chunk reads are exercised by short batches.
func Config(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Path = filepath.Join(dir, "test.tone")
	cfg.ChunkSize = ChunkSize
	cfg.Geometry = config.GeometryConfig{BandCount: BandCount, NoteCount: NoteCount}
	cfg.Export.Dir = filepath.Join(dir, "export")
	cfg.Export.Workers = 3
	return cfg
}

// Events returns n distinct events starting at offset.
func Events(n int, offset int32) []types.Event {
	events := make([]types.Event, n)
	for i := range events {
		k := offset + int32(i)
		events[i] = types.Event{
			Start:    k * 480,
			Duration: 240 + k%5,
			Note:     21 + k%88,
			Velocity: float32(k%10) / 10,
		}
	}
	return events
}

// Labels returns n distinct labels with notes of the given width.
func Labels(n, width int) []types.Label {
	labels := make([]types.Label, n)
	for i := range labels {
		notes := make([]float32, width)
		notes[i%width] = 1
		labels[i] = types.Label{
			Onset:     float32(i%2) * 0.75,
			Polyphony: float32(i % 4),
			Notes:     notes,
		}
	}
	return labels
}

// Features returns n distinct features whose channels all have width bands.
func Features(n, width int) []types.Feature {
	features := make([]types.Feature, n)
	for i := range features {
		f := types.Feature{
			Spectrum:      make([]float32, width),
			SpectralFlux:  make([]float32, width),
			PeakHeights:   make([]float32, width),
			PeakFlux:      make([]float32, width),
			PeakLocations: make([]float32, width),
		}
		for b := 0; b < width; b++ {
			x := float64(i*width + b)
			f.Spectrum[b] = float32(math.Abs(math.Sin(x / 7)))
			f.SpectralFlux[b] = float32(math.Cos(x / 5))
			f.PeakHeights[b] = float32(b%3) / 3
			f.PeakFlux[b] = float32(i) - float32(b)/10
			f.PeakLocations[b] = float32(55 * (b + 1))
		}
		features[i] = f
	}
	return features
}

// Point is a frequency/magnitude pair, mirroring the peak extractor input.
type Point struct {
	Frequency float64
	Magnitude float64
}

// TwoPeakSpectrum returns seven points with local maxima at 224 Hz and
// 445 Hz, roughly an octave apart.
func TwoPeakSpectrum() []Point {
	freqs := []float64{220, 224, 230, 440, 445, 450, 880}
	mags := []float64{0.01, 0.2, 0.01, 0.01, 0.3, 0.01, 0.01}

	points := make([]Point, len(freqs))
	for i := range freqs {
		points[i] = Point{Frequency: freqs[i], Magnitude: mags[i]}
	}
	return points
}

// HarmonicSpectrum returns a sampled magnitude curve with a peak at every
// harmonic of fundamental between low and high, stepping by step Hz.
func HarmonicSpectrum(fundamental, low, high, step float64) []Point {
	var points []Point
	for f := low; f <= high; f += step {
		var m float64
		for h := fundamental; h <= high; h += fundamental {
			d := (f - h) / (h * 0.01)
			m += math.Exp(-d*d) / (h / fundamental)
		}
		points = append(points, Point{Frequency: f, Magnitude: m})
	}
	return points
}
