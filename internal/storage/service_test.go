package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xtxerr/tonestore/internal/errors"
	"github.com/xtxerr/tonestore/internal/storage/config"
	"github.com/xtxerr/tonestore/internal/storage/parquet"
	"github.com/xtxerr/tonestore/internal/storage/publish"
	"github.com/xtxerr/tonestore/internal/storage/schema"
	testutil "github.com/xtxerr/tonestore/internal/testing"
)

// populated creates a store with 10 events, 6 labels and 5 features.
// Snappy keeps the export path free of codec goroutines.
func populated(t *testing.T) *Service {
	t.Helper()

	cfg := testutil.Config(t)
	cfg.Export.Compression = "snappy"
	svc, err := Create(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	db := svc.DB()
	require.NoError(t, db.WriteEvents(testutil.Events(10, 0)))
	require.NoError(t, db.WriteLabels(testutil.Labels(6, testutil.NoteCount)))
	require.NoError(t, db.WriteFeatures(testutil.Features(5, testutil.BandCount)))
	return svc
}

func TestCreateInvalidConfig(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Geometry.BandCount = 0

	_, err := Create(cfg)
	assert.True(t, errors.IsValidation(err))

	_, statErr := os.Stat(cfg.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(testutil.Config(t))
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	svc := populated(t)

	info := svc.Info()
	assert.Equal(t, svc.DB().File().ID().String(), info.ID)
	assert.False(t, info.ReadOnly)
	assert.Equal(t, int64(10), info.Records[schema.GroupEvents])
	assert.Equal(t, int64(6), info.Records[schema.GroupLabels])
	assert.Equal(t, int64(5), info.Records[schema.GroupFeatures])
	assert.Equal(t, int64(5), info.Counts[schema.FeaturesPeakLocations])
	assert.True(t, info.Consistent)
	assert.Equal(t, testutil.BandCount, info.Geometry.BandCount)
}

func TestOpenReadOnlyTakesGeometryFromFile(t *testing.T) {
	svc := populated(t)
	cfg := *svc.Config()
	require.NoError(t, svc.Close())

	cfg.Geometry = config.GeometryConfig{BandCount: 999, NoteCount: 999}
	ro, err := OpenReadOnly(&cfg)
	require.NoError(t, err)
	defer ro.Close()

	info := ro.Info()
	assert.True(t, info.ReadOnly)
	assert.Equal(t, testutil.BandCount, info.Geometry.BandCount)
	assert.Equal(t, int64(10), info.Records[schema.GroupEvents])
}

func TestExport(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := populated(t)
	dir := filepath.Join(t.TempDir(), "out")

	results, err := svc.Export(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, len(schema.All()))

	for i, r := range results {
		assert.Equal(t, schema.All()[i], r.Table)
		assert.FileExists(t, r.Path)
		assert.Equal(t, parquet.FilePath(dir, r.Table), r.Path)
		assert.Equal(t, svc.DB().Counts()[r.Table], r.Rows, r.Table.String())
	}

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Exports)
	assert.Equal(t, int64(len(schema.All())), stats.TablesWritten)
	assert.Equal(t, int64(4*10+3*6+5*5), stats.RowsExported)
}

func TestExportDefaultDir(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := populated(t)
	results, err := svc.Export(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, parquet.FilePath(svc.Config().Export.Dir, schema.EventsStart), results[0].Path)
}

func TestExportCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := populated(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Export(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := populated(t)
	dir := t.TempDir()
	_, err := src.Export(context.Background(), dir)
	require.NoError(t, err)

	dst, err := Create(testutil.Config(t))
	require.NoError(t, err)
	defer dst.Close()

	results, err := dst.Import(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, results, len(schema.All()))
	assert.Equal(t, src.DB().Counts(), dst.DB().Counts())

	want, err := src.DB().ReadFeatureAtIndex(3)
	require.NoError(t, err)
	got, err := dst.DB().ReadFeatureAtIndex(3)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ev, err := dst.DB().ReadEventAtIndex(9)
	require.NoError(t, err)
	assert.Equal(t, testutil.Events(10, 0)[9], ev)
}

func TestImportSkipsMissingTables(t *testing.T) {
	svc, err := Create(testutil.Config(t))
	require.NoError(t, err)
	defer svc.Close()

	results, err := svc.Import(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.True(t, svc.DB().Consistent())
}

func TestSummarize(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := populated(t)
	results, err := svc.Summarize(context.Background(), schema.EventsNote, schema.FeaturesSpectrum)
	require.NoError(t, err)
	require.Len(t, results, 2)

	notes := results[0]
	assert.Equal(t, "eventsNote", notes.Table)
	assert.Equal(t, int64(10), notes.Count)
	assert.Equal(t, 21.0, notes.Min)
	assert.Equal(t, 30.0, notes.Max)
	require.NotNil(t, notes.P50)

	assert.Equal(t, int64(5*testutil.BandCount), results[1].Count)

	all, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, len(schema.All()))
}

func TestQueryExportsToTemp(t *testing.T) {
	svc := populated(t)

	rows, err := svc.Query(context.Background(), "", "SELECT count(*) AS n FROM events")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 10, rows[0]["n"])

	assert.Equal(t, int64(1), svc.Stats().Query.QueriesExecuted)
}

func TestQueryExistingExport(t *testing.T) {
	svc := populated(t)
	dir := t.TempDir()
	_, err := svc.Export(context.Background(), dir)
	require.NoError(t, err)

	rows, err := svc.Query(context.Background(), dir, "SELECT max(value) AS p FROM labelsPolyphony")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["p"])
}

type recordingUploader struct {
	keys []string
}

func (u *recordingUploader) Upload(_ context.Context, key, _ string) (int64, error) {
	u.keys = append(u.keys, key)
	return 1, nil
}

func TestPublish(t *testing.T) {
	svc := populated(t)
	dir := t.TempDir()
	results, err := svc.Export(context.Background(), dir)
	require.NoError(t, err)

	up := &recordingUploader{}
	objects, err := svc.Publish(context.Background(), publish.NewWithUploader(up, "runs"), dir, results)
	require.NoError(t, err)
	assert.Len(t, objects, len(results))

	id := svc.DB().File().ID().String()
	assert.Equal(t, "runs/"+id+"/events/eventsStart.parquet", up.keys[0])
	assert.Equal(t, int64(len(results)), svc.Stats().Published)
}

func TestCloseTwice(t *testing.T) {
	svc, err := Create(testutil.Config(t))
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}
