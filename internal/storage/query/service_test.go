package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/tonestore/internal/storage/featuredb"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	testutil "github.com/xtxerr/tonestore/internal/testing"
)

// exportAll writes a small store and exports the given tables.
func exportAll(t *testing.T, tables []schema.Table) string {
	t.Helper()

	cfg := testutil.Config(t)
	db, err := featuredb.Create(cfg.Path, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.WriteEvents(testutil.Events(11, 0)))
	require.NoError(t, db.WriteLabels(testutil.Labels(4, testutil.NoteCount)))
	require.NoError(t, db.WriteFeatures(testutil.Features(3, testutil.BandCount)))

	dir := t.TempDir()
	for _, tbl := range tables {
		_, err := parquet.ExportTable(db.File(), tbl, dir, parquet.DefaultOptions())
		require.NoError(t, err)
	}
	return dir
}

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(testutil.Config(t))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestExecuteSQL(t *testing.T) {
	svc := newService(t)

	results, err := svc.ExecuteSQL(context.Background(), "SELECT 1 AS value")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, int64(1), svc.Stats().QueriesExecuted)

	_, err = svc.ExecuteSQL(context.Background(), "SELEC nonsense")
	assert.Error(t, err)
	assert.Equal(t, int64(1), svc.Stats().Errors)
}

func TestMaxRows(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Query.MaxRows = 5
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	results, err := svc.ExecuteSQL(context.Background(), "SELECT * FROM range(100)")
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int64(1), svc.Stats().RowsTruncated)
}

func TestAttachTables(t *testing.T) {
	ctx := context.Background()
	dir := exportAll(t, schema.All())
	svc := newService(t)

	views, err := svc.Attach(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, views, len(schema.All())+len(schema.Groups()))
	assert.Contains(t, svc.Views(), "events")

	results, err := svc.ExecuteSQL(ctx, "SELECT count(*) AS n FROM eventsNote")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 11, results[0]["n"])

	want := testutil.Events(11, 0)[3]
	results, err = svc.ExecuteSQL(ctx, `SELECT "eventsStart", "eventsNote" FROM events WHERE idx = 3`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, want.Start, results[0]["eventsStart"])
	assert.EqualValues(t, want.Note, results[0]["eventsNote"])

	results, err = svc.ExecuteSQL(ctx, `SELECT len("values") AS width FROM spectrum WHERE idx = 0`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, testutil.BandCount, results[0]["width"])
}

func TestAttachPartialExport(t *testing.T) {
	dir := exportAll(t, []schema.Table{schema.EventsStart, schema.LabelsOnset, schema.LabelsPolyphony, schema.LabelsNotes})
	svc := newService(t)

	views, err := svc.Attach(context.Background(), dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"eventsStart", "labelsOnset", "labelsPolyphony", "labelsNotes", "labels"}, views)

	_, err = svc.ExecuteSQL(context.Background(), "SELECT * FROM events")
	assert.Error(t, err)
}

func TestAttachEmptyDir(t *testing.T) {
	svc := newService(t)
	views, err := svc.Attach(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}
