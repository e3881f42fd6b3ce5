package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

func TestObserveClass(t *testing.T) {
	m := New()
	m.ObserveClass(catalog.ClassLive, ClassTotals{Entries: 10, Added: 2, Removed: 1})
	m.ObserveClass(catalog.ClassSeries, ClassTotals{Entries: 4, NoEpisodes: 3, UnexpectedShape: 1})

	assert.Equal(t, 10.0, testutil.ToFloat64(m.entries.WithLabelValues("live")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.added.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.removed.WithLabelValues("live")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.noEpisodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unexpected))
	assert.Equal(t, 2, testutil.CollectAndCount(m.entries))
}

func TestObserveRun(t *testing.T) {
	m := New()
	start := time.Unix(1000, 0)
	m.ObserveRun(start, start.Add(90*time.Second), nil)
	assert.Equal(t, 90.0, testutil.ToFloat64(m.duration))
	assert.Equal(t, 1090.0, testutil.ToFloat64(m.lastRun))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.success))
	m.ObserveRun(start, start, errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.success))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.ObserveClass(catalog.ClassVOD, ClassTotals{Entries: 7})
	path := filepath.Join(t.TempDir(), "xtream_m3u.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.Contains(body, `xtream_m3u_entries{class="vod"} 7`), body)
	assert.True(t, strings.Contains(body, "# TYPE xtream_m3u_entries gauge"), body)
}
