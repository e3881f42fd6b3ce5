package catalog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, s string) Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(s), &r))
	return r
}

func TestField_canonicalizesIDs(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
		ok   bool
	}{
		{"string", `{"k":"5"}`, "5", true},
		{"int", `{"k":5}`, "5", true},
		{"float integral", `{"k":5.0}`, "5", true},
		{"float", `{"k":1.5}`, "1.5", true},
		{"negative", `{"k":-1}`, "-1", true},
		{"null", `{"k":null}`, "", false},
		{"bool", `{"k":true}`, "", false},
		{"object", `{"k":{"a":1}}`, "", false},
		{"missing", `{}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := record(t, tt.json).Field("k")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestField_dottedKey(t *testing.T) {
	r := record(t, `{"info":{"movie_image":"http://img/x.jpg"}}`)
	got, ok := r.Field("info.movie_image")
	require.True(t, ok)
	assert.Equal(t, "http://img/x.jpg", got)

	_, ok = record(t, `{"info":[]}`).Field("info.movie_image")
	assert.False(t, ok)
}

func TestNormalize_idStringOrInt(t *testing.T) {
	for _, body := range []string{
		`{"stream_id":5,"name":"CNN","category_id":"1"}`,
		`{"stream_id":"5","name":"CNN","category_id":"1"}`,
		`{"stream_id":5.0,"name":"CNN","category_id":1}`,
	} {
		e, err := Normalize(record(t, body), LiveSchema)
		require.NoError(t, err, body)
		assert.Equal(t, "5", e.ID)
		assert.Equal(t, "5", e.PlayableID)
		assert.Equal(t, "CNN", e.Name)
		assert.Equal(t, "1", e.CategoryID)
	}
}

func TestNormalize_missingID(t *testing.T) {
	for _, body := range []string{
		`{"name":"CNN"}`,
		`{"stream_id":null,"name":"CNN"}`,
		`{"stream_id":"  ","name":"CNN"}`,
	} {
		_, err := Normalize(record(t, body), LiveSchema)
		assert.True(t, errors.Is(err, ErrMalformedRecord), body)
	}
}

func TestNormalize_defaults(t *testing.T) {
	e, err := Normalize(record(t, `{"stream_id":7,"category_id":null}`), LiveSchema)
	require.NoError(t, err)
	assert.Equal(t, "", e.Name)
	assert.Equal(t, NoCategoryID, e.CategoryID)
	assert.Equal(t, "", e.Extension)

	e, err = Normalize(record(t, `{"stream_id":7,"category_id":"","container_extension":"mkv"}`), VODSchema)
	require.NoError(t, err)
	assert.Equal(t, NoCategoryID, e.CategoryID)
	assert.Equal(t, ".mkv", e.Extension)
}

func TestNormalize_liveFields(t *testing.T) {
	e, err := Normalize(record(t, `{"stream_id":1,"name":"BBC One","stream_icon":"http://i/bbc.png","epg_channel_id":"bbc1.uk","category_id":"3"}`), LiveSchema)
	require.NoError(t, err)
	assert.Equal(t, "http://i/bbc.png", e.IconURL)
	assert.Equal(t, "bbc1.uk", e.EPGID)
}

func TestResolveExtension(t *testing.T) {
	assert.Equal(t, ".mkv", Entry{Extension: ".mkv"}.ResolveExtension(".ts"))
	assert.Equal(t, ".ts", Entry{}.ResolveExtension("ts"))
	assert.Equal(t, "", Entry{}.ResolveExtension(""))
}

func TestNewCategoryIndex(t *testing.T) {
	recs, err := DecodeRecords([]byte(`[
		{"category_id":"1","category_name":" News "},
		{"category_id":2,"category_name":"Sports"},
		{"category_id":"1","category_name":"Dup"},
		{"category_name":"orphan"}
	]`))
	require.NoError(t, err)
	idx, cats := NewCategoryIndex(recs)
	assert.Equal(t, []Category{{ID: "1", Name: "News"}, {ID: "2", Name: "Sports"}}, cats)
	name, ok := idx.Lookup("2")
	assert.True(t, ok)
	assert.Equal(t, "Sports", name)
	_, ok = idx.Lookup("9")
	assert.False(t, ok)
}

func TestDecodeRecords_notArray(t *testing.T) {
	_, err := DecodeRecords([]byte(`{"user_info":{"auth":0}}`))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestParseClass(t *testing.T) {
	c, err := ParseClass("Movie")
	require.NoError(t, err)
	assert.Equal(t, ClassVOD, c)
	assert.Equal(t, "/movie", c.PathSegment())
	assert.Equal(t, "movie_m3u", c.OutputDir())
	_, err = ParseClass("radio")
	assert.Error(t, err)
}

func TestRecord_BoolAndInt(t *testing.T) {
	r := record(t, `{"a":true,"b":"1","c":"0","d":false,"e":1,"n":"1700000000","m":5,"x":"soon"}`)
	assert.True(t, r.Bool("a"))
	assert.True(t, r.Bool("b"))
	assert.False(t, r.Bool("c"))
	assert.False(t, r.Bool("d"))
	assert.True(t, r.Bool("e"))
	assert.False(t, r.Bool("missing"))

	n, ok := r.Int("n")
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), n)
	n, ok = r.Int("m")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)
	_, ok = r.Int("x")
	assert.False(t, ok)
}

func TestCleanText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"CNN HD", "CNN HD"},
		{"CNN\nHD", "CNN HD"},
		{"CNN\r\nHD", "CNN  HD"},
		{"BBC\tOne", "BBC One"},
		{"Sky\x00News\x7f", "SkyNews"},
		{"Trailing\r", "Trailing "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in), "%q", tt.in)
	}
}

func TestNormalize_textFieldsSingleLine(t *testing.T) {
	e, err := Normalize(record(t, `{"stream_id":"5\n","name":"CNN\nHD\r","stream_icon":"http://i/cnn.png\r\n","epg_channel_id":"cnn\n.us","category_id":" 3\n"}`), LiveSchema)
	require.NoError(t, err)
	assert.Equal(t, "5", e.ID)
	assert.Equal(t, "CNN HD ", e.Name)
	assert.Equal(t, "http://i/cnn.png", e.IconURL)
	assert.Equal(t, "cnn .us", e.EPGID)
	assert.Equal(t, "3", e.CategoryID)

	_, cats := NewCategoryIndex([]Record{record(t, `{"category_id":"3","category_name":"World\nNews"}`)})
	assert.Equal(t, []Category{{ID: "3", Name: "World News"}}, cats)
}
