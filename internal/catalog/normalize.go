package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// NoCategoryID is the category id given to records without a usable category_id.
const NoCategoryID = "-1"

// CleanText makes s safe for a single line of output: CR, LF and tabs become
// a space, other control characters are dropped.
func CleanText(s string) string {
	if !strings.ContainsFunc(s, unicode.IsControl) {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// Schema names the record keys that feed an Entry. Keys may be dotted paths.
type Schema struct {
	ID   string
	Name string
	Icon string
	EPG  string
}

var (
	LiveSchema    = Schema{ID: "stream_id", Name: "name", Icon: "stream_icon", EPG: "epg_channel_id"}
	VODSchema     = Schema{ID: "stream_id", Name: "name", Icon: "stream_icon"}
	SeriesSchema  = Schema{ID: "series_id", Name: "name", Icon: "cover"}
	EpisodeSchema = Schema{ID: "id", Name: "title", Icon: "info.movie_image"}
)

// SchemaFor returns the listing schema for class. For series this is the
// series list item, not the episode.
func SchemaFor(c Class) Schema {
	switch c {
	case ClassVOD:
		return VODSchema
	case ClassSeries:
		return SeriesSchema
	}
	return LiveSchema
}

// Normalize extracts an Entry from r, passing text fields through CleanText.
// It fails with ErrMalformedRecord only when the id is missing in both its
// string and numeric forms. CategoryName is left for the caller, which owns
// the category index.
func Normalize(r Record, s Schema) (Entry, error) {
	id, ok := r.Field(s.ID)
	id = strings.TrimSpace(CleanText(id))
	if !ok || id == "" {
		return Entry{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, s.ID)
	}
	name, _ := r.Field(s.Name)
	name = CleanText(name)
	catID, ok := r.Field("category_id")
	catID = strings.TrimSpace(CleanText(catID))
	if !ok || catID == "" {
		catID = NoCategoryID
	}
	e := Entry{
		ID:         id,
		Name:       name,
		CategoryID: catID,
		PlayableID: id,
	}
	if s.Icon != "" {
		icon, _ := r.Field(s.Icon)
		e.IconURL = strings.TrimSpace(CleanText(icon))
	}
	if s.EPG != "" {
		epg, _ := r.Field(s.EPG)
		e.EPGID = CleanText(epg)
	}
	if ext, ok := r.Field("container_extension"); ok {
		e.Extension = DotExt(CleanText(ext))
	}
	return e, nil
}
