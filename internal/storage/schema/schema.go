// Package schema is the catalog of tables held by a tonestore file.
//
// Table is a closed enumeration: every table the store knows about is a
// constant here, with its group, dataset name, element type, rank, and the
// geometry dimension that fixes its width. CreateInFile is the only code
// path that creates datasets.
package schema

import (
	"fmt"
	"strings"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/dataset"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Group names.
const (
	GroupEvents   = "events"
	GroupLabels   = "labels"
	GroupFeatures = "features"
)

// Table identifies one dataset in the store.
type Table uint8

const (
	EventsStart Table = iota
	EventsDuration
	EventsNote
	EventsVelocity
	LabelsOnset
	LabelsPolyphony
	LabelsNotes
	FeaturesSpectrum
	FeaturesSpectralFlux
	FeaturesPeakHeights
	FeaturesPeakFlux
	FeaturesPeakLocations

	numTables
)

// Dim names the geometry setting that fixes a 2-D table's width.
type Dim uint8

const (
	DimNone  Dim = iota // 1-D table
	DimBands            // Geometry.BandCount
	DimNotes            // Geometry.NoteCount
)

// Info describes a table.
type Info struct {
	Group string
	Name  string
	Elem  types.Elem
	Rank  types.Rank
	Dim   Dim
}

var catalog = [numTables]Info{
	EventsStart:    {GroupEvents, "eventsStart", types.ElemInt32, types.Scalar, DimNone},
	EventsDuration: {GroupEvents, "eventsDuration", types.ElemInt32, types.Scalar, DimNone},
	EventsNote:     {GroupEvents, "eventsNote", types.ElemInt32, types.Scalar, DimNone},
	EventsVelocity: {GroupEvents, "eventsVelocity", types.ElemFloat32, types.Scalar, DimNone},

	LabelsOnset:     {GroupLabels, "labelsOnset", types.ElemFloat32, types.Scalar, DimNone},
	LabelsPolyphony: {GroupLabels, "labelsPolyphony", types.ElemFloat32, types.Scalar, DimNone},
	LabelsNotes:     {GroupLabels, "labelsNotes", types.ElemFloat32, types.Vector, DimNotes},

	FeaturesSpectrum:      {GroupFeatures, "spectrum", types.ElemFloat32, types.Vector, DimBands},
	FeaturesSpectralFlux:  {GroupFeatures, "spectralFlux", types.ElemFloat32, types.Vector, DimBands},
	FeaturesPeakHeights:   {GroupFeatures, "peakHeights", types.ElemFloat32, types.Vector, DimBands},
	FeaturesPeakFlux:      {GroupFeatures, "peakFlux", types.ElemFloat32, types.Vector, DimBands},
	FeaturesPeakLocations: {GroupFeatures, "peakLocations", types.ElemFloat32, types.Vector, DimBands},
}

// Groups returns the top-level groups in creation order.
func Groups() []string {
	return []string{GroupEvents, GroupLabels, GroupFeatures}
}

// All returns every table in catalog order.
func All() []Table {
	tables := make([]Table, numTables)
	for i := range tables {
		tables[i] = Table(i)
	}
	return tables
}

// InGroup returns the tables of one group in catalog order.
func InGroup(group string) []Table {
	var tables []Table
	for _, t := range All() {
		if catalog[t].Group == group {
			tables = append(tables, t)
		}
	}
	return tables
}

// Valid reports whether t is a catalog table.
func (t Table) Valid() bool {
	return t < numTables
}

// Info returns the table's catalog entry.
func (t Table) Info() Info {
	if !t.Valid() {
		return Info{}
	}
	return catalog[t]
}

// Path returns the dataset path "group/name".
func (t Table) Path() string {
	info := t.Info()
	return info.Group + "/" + info.Name
}

// String returns the dataset name.
func (t Table) String() string {
	if !t.Valid() {
		return fmt.Sprintf("table(%d)", uint8(t))
	}
	return catalog[t].Name
}

// Width returns the row width of t under the given geometry.
func (t Table) Width(geo config.GeometryConfig) int {
	switch t.Info().Dim {
	case DimBands:
		return geo.BandCount
	case DimNotes:
		return geo.NoteCount
	default:
		return 1
	}
}

// Spec returns the dataset spec for t.
func (t Table) Spec(chunkSize int, geo config.GeometryConfig) dataset.Spec {
	info := t.Info()
	return dataset.Spec{
		Elem:      info.Elem,
		Rank:      info.Rank,
		Width:     t.Width(geo),
		ChunkRows: chunkSize,
	}
}

// Parse resolves a table by dataset name ("eventsStart") or path
// ("events/eventsStart"). Matching is case-insensitive.
func Parse(name string) (Table, error) {
	for _, t := range All() {
		if strings.EqualFold(name, t.String()) || strings.EqualFold(name, t.Path()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, errors.ErrUnknownTable)
}

// CreateInFile creates the groups and one empty dataset per table in f.
// 1-D tables hold one element per row; 2-D tables take their width from
// geo and keep it for the life of the file.
func CreateInFile(f *dataset.File, chunkSize int, geo config.GeometryConfig) error {
	if chunkSize <= 0 {
		return errors.NewValidation("chunk_size", "must be positive")
	}
	if geo.BandCount <= 0 {
		return errors.NewValidation("geometry.band_count", "must be positive")
	}
	if geo.NoteCount <= 0 {
		return errors.NewValidation("geometry.note_count", "must be positive")
	}

	for _, g := range Groups() {
		if err := f.CreateGroup(g); err != nil {
			return fmt.Errorf("create group %s: %w", g, err)
		}
	}

	for _, t := range All() {
		if err := f.CreateDataset(t.Path(), t.Spec(chunkSize, geo)); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

// Verify checks an opened file against the catalog. Every table must be
// present with the catalog's element type and rank, and 2-D tables must
// have the width geo expects.
func Verify(f *dataset.File, geo config.GeometryConfig) error {
	for _, t := range All() {
		ds, err := f.Info(t.Path())
		if err != nil {
			return err
		}

		want := t.Info()
		if ds.Spec.Elem != want.Elem || ds.Spec.Rank != want.Rank {
			return errors.NewNotCompatible(t.Path(),
				fmt.Sprintf("stored %s %s, catalog has %s %s", ds.Spec.Rank, ds.Spec.Elem, want.Rank, want.Elem))
		}
		if w := t.Width(geo); ds.Spec.Width != w {
			return errors.NewWidthMismatch(t.Path(), w, ds.Spec.Width)
		}
	}
	return nil
}

// GeometryOf reads the widths recorded in f. It is used to open a store
// without knowing the configuration it was created with.
func GeometryOf(f *dataset.File) (config.GeometryConfig, error) {
	var geo config.GeometryConfig

	bands, err := f.Info(FeaturesSpectrum.Path())
	if err != nil {
		return geo, err
	}
	notes, err := f.Info(LabelsNotes.Path())
	if err != nil {
		return geo, err
	}

	geo.BandCount = bands.Spec.Width
	geo.NoteCount = notes.Spec.Width
	return geo, nil
}
