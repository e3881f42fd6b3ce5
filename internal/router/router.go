// Package router assigns normalized entries to output groups, one group per
// sanitized category name or a single aggregate group per class.
package router

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

// NoCategory is the group key for entries whose category is unknown or unnamed.
const NoCategory = "No_Category"

// Group is the output unit for one run: a playlist and a snapshot share its key.
type Group struct {
	Key     string
	Kind    catalog.Class
	Entries []catalog.Entry // API order
	Names   []string        // API order; the snapshot sorts its own copy
}

// Add appends e to the group.
func (g *Group) Add(e catalog.Entry) {
	g.Entries = append(g.Entries, e)
	g.Names = append(g.Names, e.Name)
}

// Router owns the group table of one class. Groups are created lazily and
// never removed or merged. Not safe for concurrent use.
type Router struct {
	kind      catalog.Class
	aggregate bool
	index     catalog.CategoryIndex
	groups    map[string]*Group
	order     []*Group
}

// New returns a Router for kind. In aggregate mode every entry goes to a
// single group keyed by the class name.
func New(kind catalog.Class, index catalog.CategoryIndex, aggregate bool) *Router {
	if index == nil {
		index = catalog.CategoryIndex{}
	}
	return &Router{
		kind:      kind,
		aggregate: aggregate,
		index:     index,
		groups:    make(map[string]*Group),
	}
}

// Route fills e.CategoryName and returns the group e belongs to, creating it on
// first use. created reports whether this call created it. The entry itself is
// appended by the group's playlist writer.
func (r *Router) Route(e *catalog.Entry) (g *Group, created bool) {
	if name, ok := r.categoryName(e.CategoryID); ok {
		e.CategoryName = name
	} else if e.CategoryName == "" {
		e.CategoryName = NoCategory
	}
	return r.group(r.keyFor(e.CategoryName))
}

// GroupKey returns the key of the group that entries of categoryID are routed
// to, without creating it.
func (r *Router) GroupKey(categoryID string) string {
	name, ok := r.categoryName(categoryID)
	if !ok {
		name = NoCategory
	}
	return r.keyFor(name)
}

func (r *Router) categoryName(id string) (string, bool) {
	name, known := r.index.Lookup(id)
	return name, known && strings.TrimSpace(name) != ""
}

// Declare creates the group for c without routing any entry into it.
func (r *Router) Declare(c catalog.Category) (g *Group, created bool) {
	return r.group(r.keyFor(c.Name))
}

// Groups returns the groups in creation order.
func (r *Router) Groups() []*Group {
	out := make([]*Group, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Router) keyFor(categoryName string) string {
	if r.aggregate {
		return string(r.kind)
	}
	return Sanitize(categoryName)
}

func (r *Router) group(key string) (*Group, bool) {
	if g, ok := r.groups[key]; ok {
		return g, false
	}
	g := &Group{Key: key, Kind: r.kind}
	r.groups[key] = g
	r.order = append(r.order, g)
	return g, true
}

// Sanitize turns a category name into a file-safe group key. Names that differ
// only in Unicode composition map to the same key.
func Sanitize(name string) string {
	s := norm.NFC.String(name)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, ".") == "" {
		return NoCategory
	}
	return s
}
