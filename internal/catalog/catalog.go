// Package catalog holds the canonical entry model and the normalization of raw
// player_api records into it. Everything here is pure: no I/O, no logging.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Class is one of the three catalog classes exposed by the content API.
type Class string

const (
	ClassLive   Class = "live"
	ClassVOD    Class = "vod"
	ClassSeries Class = "series"
)

// Classes lists the catalog classes in processing order.
var Classes = []Class{ClassLive, ClassVOD, ClassSeries}

// ParseClass maps a user-supplied name to a Class ("movie" is accepted for VOD).
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return ClassLive, nil
	case "vod", "movie", "movies":
		return ClassVOD, nil
	case "series":
		return ClassSeries, nil
	}
	return "", fmt.Errorf("unknown catalog class %q", s)
}

// PathSegment is the stream URL path segment for the class ("" for live).
func (c Class) PathSegment() string {
	switch c {
	case ClassVOD:
		return "/movie"
	case ClassSeries:
		return "/series"
	}
	return ""
}

// OutputDir is the per-class subdirectory under the output root.
func (c Class) OutputDir() string {
	switch c {
	case ClassVOD:
		return "movie_m3u"
	case ClassSeries:
		return "series_m3u"
	}
	return "live_m3u"
}

// Record is one raw item as returned by the API. Values stay undecoded until a
// field is read through Field.
type Record map[string]json.RawMessage

// DecodeRecords turns a JSON array of objects into records. Elements that are
// not objects make the whole payload undecodable.
func DecodeRecords(body []byte) ([]Record, error) {
	var out []Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// Category is an API category, scoped to one class and one run.
type Category struct {
	ID   string
	Name string
}

// CategoryIndex maps category id to name for one class.
type CategoryIndex map[string]string

// NewCategoryIndex builds an index from category records. Records without a
// category_id are ignored.
func NewCategoryIndex(records []Record) (CategoryIndex, []Category) {
	idx := make(CategoryIndex, len(records))
	cats := make([]Category, 0, len(records))
	for _, r := range records {
		id, ok := r.Field("category_id")
		id = strings.TrimSpace(CleanText(id))
		if !ok || id == "" {
			continue
		}
		name, _ := r.Field("category_name")
		name = strings.TrimSpace(CleanText(name))
		if _, dup := idx[id]; dup {
			continue
		}
		idx[id] = name
		cats = append(cats, Category{ID: id, Name: name})
	}
	return idx, cats
}

// Lookup returns the category name for id and whether it is known.
func (c CategoryIndex) Lookup(id string) (string, bool) {
	name, ok := c[id]
	return name, ok
}

// Entry is a normalized catalog item. ID is unique only within its source list.
type Entry struct {
	ID           string
	Name         string
	CategoryID   string
	CategoryName string
	PlayableID   string
	Extension    string // record-specific, with leading dot; "" when the record has none
	IconURL      string
	EPGID        string
}

// ResolveExtension applies the extension order: record, then global suffix, then none.
func (e Entry) ResolveExtension(global string) string {
	if e.Extension != "" {
		return e.Extension
	}
	return DotExt(global)
}

// DotExt returns ext with exactly one leading dot, or "" for an empty ext.
func DotExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	return "." + strings.TrimLeft(ext, ".")
}
