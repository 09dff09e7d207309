package livestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hookdeck/railpipe/internal/livestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id string) livestore.Row {
	return livestore.Row{
		ServiceFrom:        "Newcastle",
		Timestamp:          "2024-01-14T10:00:00+00:00",
		Origin:             "Newcastle",
		Destination:        "London Kings Cross",
		ScheduledDeparture: "10:01",
		CurrentDeparture:   "On time",
		Platform:           "3",
		Operator:           "LNER",
		Length:             "9",
		ID:                 id,
		CallingPoints:      `[{"name":"York","is_cancelled":false,"sched_time":"11:01","est_time":"On time"}]`,
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("logs", "NCL.csv"), livestore.Path("logs", "NCL"))
}

func TestAppend_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := livestore.Path(t.TempDir(), "NCL")

	require.NoError(t, livestore.Append(path, []livestore.Row{row("a"), row("b")}))
	require.NoError(t, livestore.Append(path, []livestore.Row{row("c")}))

	records, err := livestore.ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, livestore.Columns, records[0])
	assert.Equal(t, row("a").Record(), records[1])
	assert.Equal(t, "b", records[2][9])
	assert.Equal(t, "c", records[3][9])
	assert.Equal(t, row("c").CallingPoints, records[3][10])
}

func TestAppend_EmptyFileGetsHeader(t *testing.T) {
	t.Parallel()

	path := livestore.Path(t.TempDir(), "RDG")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, livestore.Append(path, []livestore.Row{row("a")}))

	records, err := livestore.ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, livestore.Columns, records[0])
}

func TestAppend_NoRows(t *testing.T) {
	t.Parallel()

	path := livestore.Path(t.TempDir(), "RDG")
	assert.ErrorIs(t, livestore.Append(path, nil), livestore.ErrNoRows)
	assert.NoFileExists(t, path)
}

func TestAppend_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := livestore.Path(filepath.Join(t.TempDir(), "missing"), "NCL")
	assert.Error(t, livestore.Append(path, []livestore.Row{row("a")}))
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, livestore.EnsureDir(dir))
	require.NoError(t, livestore.EnsureDir(dir))
	assert.DirExists(t, dir)
}

func TestColumnsMatchRecord(t *testing.T) {
	assert.Len(t, row("x").Record(), len(livestore.Columns))
}
