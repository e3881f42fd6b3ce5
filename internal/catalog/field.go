package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Field returns the value of key as a canonical string. JSON strings are
// returned unquoted and JSON numbers in their integer form when integral
// ("5", 5 and 5.0 all read as "5"). Any other JSON type reads as absent.
// A dotted key ("info.movie_image") descends into nested objects.
func (r Record) Field(key string) (string, bool) {
	raw, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	return canonical(raw)
}

// Has reports whether key is present, whatever its JSON type (null counts as absent).
func (r Record) Has(key string) bool {
	raw, ok := r.lookup(key)
	return ok && !isNull(raw)
}

func (r Record) lookup(key string) (json.RawMessage, bool) {
	if raw, ok := r[key]; ok {
		return raw, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	raw, ok := r[head]
	if !ok {
		return nil, false
	}
	var nested Record
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, false
	}
	return nested.lookup(rest)
}

func canonical(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	c := raw[0]
	if c == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	if c != '-' && (c < '0' || c > '9') {
		return "", false
	}
	n := json.Number(raw)
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	f, err := n.Float64()
	if err != nil {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Bool reads key as a flag: JSON true, or a canonical value of "1" or "true".
func (r Record) Bool(key string) bool {
	raw, ok := r.lookup(key)
	if !ok {
		return false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("true")) {
		return true
	}
	s, ok := canonical(raw)
	return ok && (s == "1" || strings.EqualFold(s, "true"))
}

// Int reads key as an integer. Non-numeric values read as absent.
func (r Record) Int(key string) (int64, bool) {
	s, ok := r.Field(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
