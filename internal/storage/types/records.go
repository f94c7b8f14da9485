package types

import "slices"

// Event is one recorded note.
// It is written once and never modified; its fields live in four parallel
// 1-D tables under the events group.
type Event struct {
	Start    int32   // Sample/frame offset, >= 0
	Duration int32   // Frame count, >= 0
	Note     int32   // MIDI-style pitch number, 0..127
	Velocity float32 // Intended 0..1, not enforced
}

// Label is the supervision target for one analysis window.
type Label struct {
	Onset     float32   // Likelihood of a note beginning in the window
	Polyphony float32   // Expected number of sounding notes
	Notes     []float32 // One entry per pitch, length = configured note count
}

// Equal reports whether two labels hold the same values.
func (l Label) Equal(o Label) bool {
	return l.Onset == o.Onset &&
		l.Polyphony == o.Polyphony &&
		slices.Equal(l.Notes, o.Notes)
}

// Feature is the derived signal representation of one analysis window.
// All channels share the configured band count.
type Feature struct {
	Spectrum      []float32
	SpectralFlux  []float32
	PeakHeights   []float32
	PeakFlux      []float32
	PeakLocations []float32
}

// Width returns the band count established by the spectrum channel.
func (f Feature) Width() int {
	return len(f.Spectrum)
}

// Equal reports whether two features hold the same values.
func (f Feature) Equal(o Feature) bool {
	return slices.Equal(f.Spectrum, o.Spectrum) &&
		slices.Equal(f.SpectralFlux, o.SpectralFlux) &&
		slices.Equal(f.PeakHeights, o.PeakHeights) &&
		slices.Equal(f.PeakFlux, o.PeakFlux) &&
		slices.Equal(f.PeakLocations, o.PeakLocations)
}
