package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-map/internal/dataset"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSyncAndQuery(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	require.NoError(t, d.SyncDistricts(ctx, []dataset.District{
		{Adcode: 510000, Name: "四川省", ParentAdcode: 100000, Level: "province"},
		{Adcode: 320000, Name: "江苏省", ParentAdcode: 100000, Level: "province"},
	}))
	require.NoError(t, d.SyncWaters(ctx, []dataset.WaterFeature{
		{Name: "长江", Type: "LineString", Coordinates: orb.LineString{{100, 30}, {110, 30}}},
		{Name: "无名", Type: ""},
	}))

	tables, err := d.Tables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"districts", "waters"}, tables)

	res, err := d.Query(ctx, "SELECT name FROM districts ORDER BY adcode", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.Columns)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "江苏省", res.Rows[0]["name"])

	res, err = d.Query(ctx, "SELECT wkt FROM waters WHERE idx = 0", 0)
	require.NoError(t, err)
	assert.Equal(t, "LINESTRING(100 30,110 30)", res.Rows[0]["wkt"])
}

func TestSyncReplaces(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	require.NoError(t, d.SyncDistricts(ctx, []dataset.District{{Adcode: 1, Name: "a"}, {Adcode: 2, Name: "b"}}))
	require.NoError(t, d.SyncDistricts(ctx, []dataset.District{{Adcode: 3, Name: "c"}}))

	res, err := d.Query(ctx, "SELECT adcode FROM districts", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestQueryLimit(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	res, err := d.Query(ctx, "SELECT * FROM range(10)", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.True(t, res.Truncated)
}

func TestQueryReadOnly(t *testing.T) {
	d := openTest(t)
	for _, q := range []string{"DROP TABLE districts", "  insert into waters values (1,'x','y','z')", ""} {
		_, err := d.Query(context.Background(), q, 0)
		assert.ErrorIs(t, err, ErrReadOnly, q)
	}
	_, err := d.Query(context.Background(), "select 1", 0)
	assert.NoError(t, err)
}

func TestQueryRejectsBatches(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	_, err := d.Query(ctx, "SELECT 1; DROP TABLE districts", 10)
	assert.ErrorIs(t, err, ErrMultipleStatements)

	tables, err := d.Tables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"districts", "waters"}, tables)
}

func TestQueryRejectsWritesBehindReadPrefix(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	out := filepath.Join(t.TempDir(), "out.csv")
	_, err := d.Query(ctx, "SELECT 1; COPY (SELECT 42) TO '"+out+"'", 10)
	assert.Error(t, err)
	_, err = d.Query(ctx, "FROM districts; COPY districts TO '"+out+"'", 10)
	assert.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "query wrote %s", out)
}

func TestQueryHasNoFileAccess(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o600))

	_, err := d.Query(ctx, "SELECT * FROM read_text('"+path+"')", 10)
	assert.Error(t, err)
	_, err = d.Query(ctx, "SELECT * FROM read_csv_auto('"+path+"')", 10)
	assert.Error(t, err)
}

func TestQueryCannotUnlockConfiguration(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	_, err := d.Query(ctx, "SET enable_external_access = true", 0)
	assert.ErrorIs(t, err, ErrReadOnly)

	// the lock also holds against statements that bypass Query
	_, err = d.conn.ExecContext(ctx, "SET enable_external_access = true")
	assert.Error(t, err)
}
