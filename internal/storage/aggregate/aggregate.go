// Package aggregate computes summary statistics over table values, with
// quantiles estimated by DDSketch.
package aggregate

import (
	"fmt"
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/tonestore/internal/storage/dataset"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

// Summary maintains running statistics over a stream of values.
type Summary struct {
	mu sync.Mutex

	table    string
	accuracy float64

	// Running statistics
	count int64
	sum   float64
	min   float64
	max   float64

	// NaN values are counted separately and kept out of the sketch
	nan int64

	sketch *ddsketch.DDSketch
}

// Result is a snapshot of a Summary.
type Result struct {
	Table string
	Count int64
	NaN   int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64

	// Quantiles are nil while Count is zero.
	P50 *float64
	P90 *float64
	P99 *float64
}

// New creates a Summary for table with the given DDSketch relative
// accuracy (0.01 = 1% error).
func New(table string, accuracy float64) (*Summary, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, fmt.Errorf("create sketch: %w", err)
	}

	return &Summary{
		table:    table,
		accuracy: accuracy,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		sketch:   sketch,
	}, nil
}

// Add adds a value to the summary.
func (s *Summary) Add(value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(value)
}

func (s *Summary) add(value float64) {
	if math.IsNaN(value) {
		s.nan++
		return
	}

	s.count++
	s.sum += value

	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}

	// The default sketch only rejects values beyond its indexable range
	_ = s.sketch.Add(value)
}

// AddValues adds every value to s.
func AddValues[T types.Element](s *Summary, values []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range values {
		s.add(float64(v))
	}
}

// Count returns the number of values added.
func (s *Summary) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Merge combines another summary into this one.
func (s *Summary) Merge(other *Summary) error {
	if other == nil || other == s {
		return nil
	}

	s.mu.Lock()
	other.mu.Lock()
	defer s.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 && other.nan == 0 {
		return nil
	}

	if err := s.sketch.MergeWith(other.sketch); err != nil {
		return fmt.Errorf("merge sketch: %w", err)
	}

	s.count += other.count
	s.nan += other.nan
	s.sum += other.sum
	s.min = min(s.min, other.min)
	s.max = max(s.max, other.max)
	return nil
}

// Reset clears the summary.
func (s *Summary) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count = 0
	s.nan = 0
	s.sum = 0
	s.min = math.MaxFloat64
	s.max = -math.MaxFloat64
	s.sketch.Clear()
}

// Result returns the current statistics.
func (s *Summary) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Result{
		Table: s.table,
		Count: s.count,
		NaN:   s.nan,
		Sum:   s.sum,
	}
	if s.count == 0 {
		return r
	}

	r.Min = s.min
	r.Max = s.max
	r.Mean = s.sum / float64(s.count)

	quantile := func(q float64) *float64 {
		v, err := s.sketch.GetValueAtQuantile(q)
		if err != nil {
			return nil
		}
		// Sketch estimates can overshoot the observed range slightly
		v = min(max(v, s.min), s.max)
		return &v
	}
	r.P50 = quantile(0.50)
	r.P90 = quantile(0.90)
	r.P99 = quantile(0.99)
	return r
}

// SummarizeTable streams every value of table t in f through a new Summary,
// batch rows at a time. 2-D tables contribute every element of every row.
func SummarizeTable(f *dataset.File, t schema.Table, accuracy float64, batch int) (Result, error) {
	if batch <= 0 {
		batch = 4096
	}

	s, err := New(t.String(), accuracy)
	if err != nil {
		return Result{}, err
	}

	rows, err := f.Rows(t.Path())
	if err != nil {
		return Result{}, err
	}

	for start := int64(0); start < rows; start += int64(batch) {
		count := min(int64(batch), rows-start)

		switch t.Info().Elem {
		case types.ElemInt32:
			values, err := dataset.ReadRange[int32](f, t.Path(), start, count)
			if err != nil {
				return Result{}, fmt.Errorf("summarize %s: %w", t, err)
			}
			AddValues(s, values)
		default:
			values, err := dataset.ReadRange[float32](f, t.Path(), start, count)
			if err != nil {
				return Result{}, fmt.Errorf("summarize %s: %w", t, err)
			}
			AddValues(s, values)
		}
	}

	return s.Result(), nil
}
