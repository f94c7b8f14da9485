package shell

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/xtxerr/tonestore/internal/peaks"
	"github.com/xtxerr/tonestore/internal/storage"
	"github.com/xtxerr/tonestore/internal/storage/aggregate"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	"github.com/xtxerr/tonestore/internal/storage/types"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(false)
	return t
}

// PrintInfo writes store identity and per-table row counts.
func PrintInfo(w io.Writer, info storage.Info) {
	fmt.Fprintf(w, "store:      %s\n", info.Path)
	fmt.Fprintf(w, "id:         %s\n", info.ID)
	fmt.Fprintf(w, "size:       %d bytes\n", info.Size)
	fmt.Fprintf(w, "geometry:   %d bands, %d notes\n", info.Geometry.BandCount, info.Geometry.NoteCount)
	fmt.Fprintf(w, "consistent: %t\n", info.Consistent)
	if info.Truncated > 0 {
		fmt.Fprintf(w, "truncated:  %d bytes of torn tail\n", info.Truncated)
	}
	fmt.Fprintln(w)

	t := newTable(w, "TABLE", "GROUP", "ROWS")
	for _, tbl := range schema.All() {
		t.Append([]string{tbl.String(), tbl.Info().Group, strconv.FormatInt(info.Counts[tbl], 10)})
	}
	t.Render()
}

// PrintEvent writes one event.
func PrintEvent(w io.Writer, index int64, e types.Event) {
	fmt.Fprintf(w, "events[%d]: start=%d duration=%d note=%d velocity=%g\n",
		index, e.Start, e.Duration, e.Note, e.Velocity)
}

// PrintLabel writes one label. Only the active notes are listed.
func PrintLabel(w io.Writer, index int64, l types.Label) {
	fmt.Fprintf(w, "labels[%d]: onset=%g polyphony=%g notes=%s\n",
		index, l.Onset, l.Polyphony, sparse(l.Notes))
}

// PrintFeature writes one feature row, one line per channel.
func PrintFeature(w io.Writer, index int64, f types.Feature) {
	fmt.Fprintf(w, "features[%d]: %d bands\n", index, f.Width())
	fmt.Fprintf(w, "  spectrum:      %s\n", sparse(f.Spectrum))
	fmt.Fprintf(w, "  spectralFlux:  %s\n", sparse(f.SpectralFlux))
	fmt.Fprintf(w, "  peakHeights:   %s\n", sparse(f.PeakHeights))
	fmt.Fprintf(w, "  peakFlux:      %s\n", sparse(f.PeakFlux))
	fmt.Fprintf(w, "  peakLocations: %s\n", sparse(f.PeakLocations))
}

// sparse formats the non-zero entries of v as {index:value ...}.
func sparse(v []float32) string {
	var parts []string
	for i, x := range v {
		if x != 0 {
			parts = append(parts, fmt.Sprintf("%d:%g", i, x))
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// PrintSummaries writes column summaries as a table.
func PrintSummaries(w io.Writer, results []aggregate.Result) {
	t := newTable(w, "TABLE", "COUNT", "NAN", "MIN", "MAX", "MEAN", "P50", "P90", "P99")
	for _, r := range results {
		t.Append([]string{
			r.Table,
			strconv.FormatInt(r.Count, 10),
			strconv.FormatInt(r.NaN, 10),
			num(r.Min), num(r.Max), num(r.Mean),
			opt(r.P50), opt(r.P90), opt(r.P99),
		})
	}
	t.Render()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func opt(v *float64) string {
	if v == nil {
		return "-"
	}
	return num(*v)
}

// PrintRows writes query results. Columns are sorted by name.
func PrintRows(w io.Writer, rows []map[string]interface{}) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	t := newTable(w, columns...)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = fmt.Sprint(row[c])
		}
		t.Append(cells)
	}
	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// PrintPeaks writes peaks with their note numbers.
func PrintPeaks(w io.Writer, ps []peaks.Peak) {
	t := newTable(w, "HZ", "NOTE", "HEIGHT")
	for _, p := range ps {
		t.Append([]string{num(p.Location), strconv.FormatFloat(p.Note(), 'f', 2, 64), num(p.Height)})
	}
	t.Render()
}

// PrintExport writes the files written by an export.
func PrintExport(w io.Writer, results []parquet.Result) {
	t := newTable(w, "TABLE", "ROWS", "BYTES", "PATH")
	for _, r := range results {
		t.Append([]string{r.Table.String(), strconv.FormatInt(r.Rows, 10), strconv.FormatInt(r.Bytes, 10), r.Path})
	}
	t.Render()
}
