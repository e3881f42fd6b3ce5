package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/router"
)

func testOptions(root string) Options {
	return Options{
		Enabled:   true,
		Root:      root,
		Server:    "http://provider.example:8080",
		Username:  "user",
		Password:  "pass",
		StreamExt: ".ts",
	}
}

func TestWriter_twoLinesPerEntry(t *testing.T) {
	root := t.TempDir()
	g := &router.Group{Key: "News", Kind: catalog.ClassLive}
	w := NewWriter(g, testOptions(root))
	assert.Equal(t, Unopened, w.State())

	require.NoError(t, w.Add(catalog.Entry{ID: "5", PlayableID: "5", Name: "CNN", CategoryName: "News", EPGID: "cnn.us", IconURL: "http://i/cnn.png"}))
	require.NoError(t, w.Add(catalog.Entry{ID: "6", PlayableID: "6", Name: "BBC", CategoryName: "News"}))
	assert.Equal(t, Written, w.State())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(root, "live_m3u", "News.m3u"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "#EXTM3U", lines[0])
	assert.Equal(t, `#EXTINF:-1 tvg-id="cnn.us" tvg-name="CNN" tvg-logo=http://i/cnn.png group-title="News",CNN`, lines[1])
	assert.Equal(t, "http://provider.example:8080/user/pass/5.ts", lines[2])
	assert.Equal(t, "http://provider.example:8080/user/pass/6.ts", lines[4])
	assert.Equal(t, []string{"CNN", "BBC"}, g.Names)
}

func TestWriter_disabledDoesNoIO(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.Enabled = false
	g := &router.Group{Key: "News", Kind: catalog.ClassLive}
	w := NewWriter(g, opts)
	require.NoError(t, w.Create())
	require.NoError(t, w.Add(catalog.Entry{ID: "5", PlayableID: "5", Name: "CNN"}))
	require.NoError(t, w.Close())

	assert.Equal(t, Unopened, w.State())
	assert.Equal(t, []string{"CNN"}, g.Names)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriter_lazyAndEagerCreate(t *testing.T) {
	root := t.TempDir()
	g := &router.Group{Key: "Empty", Kind: catalog.ClassVOD}
	w := NewWriter(g, testOptions(root))
	require.NoError(t, w.Close())
	_, err := os.Stat(w.Path())
	assert.True(t, os.IsNotExist(err))

	opts := testOptions(root)
	opts.NoHeader = true
	w = NewWriter(g, opts)
	require.NoError(t, w.Create())
	assert.Equal(t, Created, w.State())
	require.NoError(t, w.Close())
	data, err := os.ReadFile(filepath.Join(root, "movie_m3u", "Empty.m3u"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStreamURL_classesAndExtensions(t *testing.T) {
	server := "http://p.example/"
	vod := catalog.Entry{PlayableID: "9", Extension: ".mkv"}
	assert.Equal(t, "http://p.example/movie/u/p/9.mkv", StreamURL(server, catalog.ClassVOD, "u", "p", vod, ".ts"))
	ep := catalog.Entry{PlayableID: "101"}
	assert.Equal(t, "http://p.example/series/u/p/101.ts", StreamURL(server, catalog.ClassSeries, "u", "p", ep, ".ts"))
	assert.Equal(t, "http://p.example/u/p/101", StreamURL(server, catalog.ClassLive, "u", "p", ep, ""))
}

func TestWriter_tvheadendRemux(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.TVHeadendRemux = true
	w := NewWriter(&router.Group{Key: "News", Kind: catalog.ClassLive}, opts)
	got := w.URL(catalog.Entry{PlayableID: "5"})
	assert.Equal(t, "pipe:///usr/bin/ffmpeg -loglevel fatal -i http://provider.example:8080/user/pass/5.ts -vcodec copy -acodec copy -f mpegts pipe:1", got)
}

func TestWriter_createFailsIsFileSystemError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "live_m3u")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	w := NewWriter(&router.Group{Key: "News", Kind: catalog.ClassLive}, testOptions(root))
	err := w.Add(catalog.Entry{PlayableID: "1", Name: "A"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrFileSystem))
	assert.True(t, catalog.IsFatal(err))
}

func TestWriter_textFieldsStayOnOneLine(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(root)
	opts.NoHeader = true
	g := &router.Group{Key: "News", Kind: catalog.ClassLive}
	w := NewWriter(g, opts)
	require.NoError(t, w.Add(catalog.Entry{PlayableID: "5", Name: "CNN\nHD", CategoryName: "News\r"}))
	require.NoError(t, w.Add(catalog.Entry{PlayableID: "6", Name: `The "Big" Show`, CategoryName: "News", IconURL: "http://i/big show.png"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `#EXTINF:-1 tvg-id="" tvg-name="CNN HD" tvg-logo= group-title="News ",CNN HD`, lines[0])
	assert.Equal(t, "http://provider.example:8080/user/pass/5.ts", lines[1])
	assert.Equal(t, `#EXTINF:-1 tvg-id="" tvg-name="The 'Big' Show" tvg-logo=http://i/big%20show.png group-title="News",The "Big" Show`, lines[2])
	assert.Equal(t, "http://provider.example:8080/user/pass/6.ts", lines[3])
	assert.Equal(t, []string{"CNN HD", `The "Big" Show`}, g.Names)
}
