package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Shape identifies which of the known layouts a series' episodes field uses.
type Shape int

const (
	// ShapeAbsent: no episodes field, or null.
	ShapeAbsent Shape = iota
	// ShapeSeasonMap: {"<season>": [episode, ...], ...}. The common case.
	ShapeSeasonMap
	// ShapeFlatArray: [[episode, ...], ...]. Seen from some panels; seasons are collapsed.
	ShapeFlatArray
)

func (s Shape) String() string {
	switch s {
	case ShapeSeasonMap:
		return "season-map"
	case ShapeFlatArray:
		return "flat-array"
	}
	return "absent"
}

// Season is one season-map bucket. Records stay raw so a single bad episode
// does not poison the whole payload.
type Season struct {
	Key     string
	Records []json.RawMessage
}

// EpisodePayload is the episodes field resolved to exactly one shape.
type EpisodePayload struct {
	Shape   Shape
	Seasons []Season            // ShapeSeasonMap, in API (unsorted) order
	Flat    [][]json.RawMessage // ShapeFlatArray
}

// SeriesDetail is a decoded get_series_info response.
type SeriesDetail struct {
	Info     Record
	Episodes EpisodePayload
}

// ParseSeriesDetail decodes a series detail body. The episodes field is probed
// in a fixed order: flat array, season map, absent. Anything else is ErrDecode.
func ParseSeriesDetail(body []byte) (SeriesDetail, error) {
	var top struct {
		Info     json.RawMessage `json:"info"`
		Episodes json.RawMessage `json:"episodes"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return SeriesDetail{}, fmt.Errorf("%w: series detail: %v", ErrDecode, err)
	}
	var d SeriesDetail
	if !isNull(top.Info) {
		// Some panels send "info": [] for empty info; treat as no info.
		_ = json.Unmarshal(top.Info, &d.Info)
	}
	p, err := probeEpisodes(top.Episodes)
	if err != nil {
		return SeriesDetail{}, err
	}
	d.Episodes = p
	return d, nil
}

func probeEpisodes(raw json.RawMessage) (EpisodePayload, error) {
	if isNull(raw) {
		return EpisodePayload{Shape: ShapeAbsent}, nil
	}
	var flat [][]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err == nil {
		return EpisodePayload{Shape: ShapeFlatArray, Flat: flat}, nil
	}
	var seasons map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &seasons); err == nil {
		p := EpisodePayload{Shape: ShapeSeasonMap, Seasons: make([]Season, 0, len(seasons))}
		for k, recs := range seasons {
			p.Seasons = append(p.Seasons, Season{Key: k, Records: recs})
		}
		return p, nil
	}
	head := bytes.TrimSpace(raw)
	if len(head) > 32 {
		head = head[:32]
	}
	return EpisodePayload{}, fmt.Errorf("%w: episodes field has unsupported shape (%s...)", ErrDecode, head)
}

// TitleFallback decides the display name of an episode without a title.
type TitleFallback string

const (
	TitleFallbackNone     TitleFallback = "none"     // skip the episode as malformed
	TitleFallbackSeries   TitleFallback = "series"   // use the parent series name
	TitleFallbackCategory TitleFallback = "category" // use the category name
)

// SeasonOrder selects how season-map keys are ordered.
type SeasonOrder string

const (
	// SeasonOrderLexical sorts keys as strings: "10" before "2". Matches the
	// historical output, so snapshots stay comparable.
	SeasonOrderLexical SeasonOrder = "lexical"
	// SeasonOrderNumeric sorts integer keys numerically; non-integer keys follow, lexically.
	SeasonOrderNumeric SeasonOrder = "numeric"
)

// ResolveOptions carries the parent series context into episode normalization.
type ResolveOptions struct {
	SeriesName    string
	CategoryID    string
	CategoryName  string
	TitleFallback TitleFallback
	SeasonOrder   SeasonOrder
}

// Resolution is the flattened episode list of one series plus its annotations.
type Resolution struct {
	Episodes        []Entry
	Skipped         []error // one per malformed episode record
	NoEpisodes      bool    // payload was ShapeAbsent
	UnexpectedShape bool    // payload was ShapeFlatArray
}

// ResolveEpisodes flattens p into an ordered episode list. Malformed episode
// records are skipped and reported in Resolution.Skipped.
func ResolveEpisodes(p EpisodePayload, opts ResolveOptions) Resolution {
	var res Resolution
	var ordered []json.RawMessage
	switch p.Shape {
	case ShapeAbsent:
		res.NoEpisodes = true
		return res
	case ShapeFlatArray:
		res.UnexpectedShape = true
		for _, inner := range p.Flat {
			ordered = append(ordered, inner...)
		}
	case ShapeSeasonMap:
		seasons := make([]Season, len(p.Seasons))
		copy(seasons, p.Seasons)
		sortSeasons(seasons, opts.SeasonOrder)
		for _, s := range seasons {
			ordered = append(ordered, s.Records...)
		}
	}
	res.Episodes = make([]Entry, 0, len(ordered))
	for i, raw := range ordered {
		e, err := normalizeEpisode(raw, opts)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("episode %d: %w", i, err))
			continue
		}
		res.Episodes = append(res.Episodes, e)
	}
	return res
}

func normalizeEpisode(raw json.RawMessage, opts ResolveOptions) (Entry, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil || r == nil {
		return Entry{}, fmt.Errorf("%w: episode is not an object", ErrMalformedRecord)
	}
	e, err := Normalize(r, EpisodeSchema)
	if err != nil {
		return Entry{}, err
	}
	// Episodes inherit the category of their series.
	e.CategoryID = opts.CategoryID
	if e.CategoryID == "" {
		e.CategoryID = NoCategoryID
	}
	e.CategoryName = opts.CategoryName
	if strings.TrimSpace(e.Name) == "" {
		switch opts.TitleFallback {
		case TitleFallbackSeries:
			e.Name = opts.SeriesName
		case TitleFallbackCategory:
			e.Name = opts.CategoryName
		}
		if strings.TrimSpace(e.Name) == "" {
			return Entry{}, fmt.Errorf("%w: episode %s has no title", ErrMalformedRecord, e.ID)
		}
	}
	return e, nil
}

func sortSeasons(seasons []Season, order SeasonOrder) {
	if order != SeasonOrderNumeric {
		sort.SliceStable(seasons, func(i, j int) bool { return seasons[i].Key < seasons[j].Key })
		return
	}
	sort.SliceStable(seasons, func(i, j int) bool {
		a, errA := strconv.Atoi(seasons[i].Key)
		b, errB := strconv.Atoi(seasons[j].Key)
		switch {
		case errA == nil && errB == nil && a != b:
			return a < b
		case errA == nil && errB == nil:
			// "1" and "01"
			return seasons[i].Key < seasons[j].Key
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return seasons[i].Key < seasons[j].Key
	})
}
