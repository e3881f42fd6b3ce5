package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }
}

func reports(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, "*_diff_*.txt"))
	require.NoError(t, err)
	return m
}

func TestUpdate_noPriorSnapshot(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{Now: fixedClock()}
	d, err := e.Update(dir, "News", []string{"CNN"})
	require.NoError(t, err)
	assert.False(t, d.Computed)
	assert.Equal(t, 0, d.Added)
	assert.Equal(t, 0, d.Removed)
	data, err := os.ReadFile(SnapshotPath(dir, "News"))
	require.NoError(t, err)
	assert.Equal(t, "CNN\n", string(data))
	assert.Empty(t, reports(t, dir))
}

func TestUpdate_emptyPriorIsStillABaseline(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(SnapshotPath(dir, "News"), nil, 0o644))
	d, err := (&Engine{Now: fixedClock()}).Update(dir, "News", []string{"CNN"})
	require.NoError(t, err)
	assert.True(t, d.Computed)
	assert.Equal(t, 1, d.Added)
}

func TestUpdate_identicalTwice(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{Now: fixedClock()}
	names := []string{"C", "A", "B"}
	_, err := e.Update(dir, "G", names)
	require.NoError(t, err)
	d, err := e.Update(dir, "G", []string{"B", "C", "A"})
	require.NoError(t, err)
	assert.True(t, d.Computed)
	assert.False(t, d.Changed())
	d, err = e.Update(dir, "G", names)
	require.NoError(t, err)
	assert.Equal(t, Diff{Computed: true}, d)
	assert.Empty(t, reports(t, dir))
	assert.Equal(t, []string{"C", "A", "B"}, names)
}

func TestUpdate_insertion(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{Now: fixedClock()}
	_, err := e.Update(dir, "G", []string{"A", "C"})
	require.NoError(t, err)
	d, err := e.Update(dir, "G", []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.True(t, d.Computed)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.Equal(t, []string{"B"}, d.AddedNames)

	want := filepath.Join(dir, "G_diff_20260304_050607.txt")
	assert.Equal(t, want, d.ReportPath)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "+ B\n", string(data))
}

func TestCompare_replaceAndDelete(t *testing.T) {
	d := Compare([]string{"A", "B", "C", "D"}, []string{"A", "X", "D"})
	assert.ElementsMatch(t, []string{"B", "C"}, d.RemovedNames)
	assert.Equal(t, []string{"X"}, d.AddedNames)
	assert.Equal(t, 2, d.Removed)
	assert.Equal(t, 1, d.Added)
	assert.Contains(t, d.Lines, "- B")
	assert.Contains(t, d.Lines, "+ X")
}

func TestEncodeDecode(t *testing.T) {
	assert.Nil(t, Decode(Encode(nil)))
	assert.Equal(t, []string{"", "A"}, Decode(Encode([]string{"", "A"})))
	assert.Equal(t, []string{"A", "B"}, Decode([]byte("A\r\nB\r\n")))
}

func TestUpdate_unwritableDir(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "live_m3u")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	_, err := (&Engine{}).Update(blocker, "G", []string{"A"})
	require.Error(t, err)
}

func TestUpdate_lineBreakInNameSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	e := &Engine{Now: fixedClock()}
	_, err := e.Update(dir, "News", []string{"A", "CNN\nHD", "BBC\r"})
	require.NoError(t, err)

	d, err := e.Update(dir, "News", []string{"A", "CNN\nHD", "BBC\r", "Z"})
	require.NoError(t, err)
	assert.True(t, d.Computed)
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 0, d.Removed)
	assert.Equal(t, []string{"+ Z"}, d.Lines)

	data, err := os.ReadFile(SnapshotPath(dir, "News"))
	require.NoError(t, err)
	assert.Equal(t, "A\nBBC \nCNN HD\nZ\n", string(data))
}
