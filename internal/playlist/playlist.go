// Package playlist renders routed groups as extended M3U files.
package playlist

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/router"
)

// Header is the first line of every playlist unless suppressed.
const Header = "#EXTM3U"

// State is the lifecycle of a group's playlist file.
type State int

const (
	Unopened State = iota
	Created
	Written
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Written:
		return "written"
	}
	return "unopened"
}

// Options is the resolved rendering configuration shared by all writers of a run.
type Options struct {
	Enabled        bool   // false: names are still collected, no file I/O happens
	Root           string // output root; class subdirectories are created beneath it
	Server         string // normalized base URL, no trailing slash
	Username       string
	Password       string
	StreamExt      string // fallback extension when a record has none
	NoHeader       bool
	TVHeadendRemux bool
}

// Writer owns the playlist file of one group for the duration of a run.
type Writer struct {
	opts  Options
	group *router.Group
	state State
	path  string
	f     *os.File
	bw    *bufio.Writer
}

// NewWriter returns an Unopened writer for g. Nothing touches the disk until
// Create or the first Add.
func NewWriter(g *router.Group, opts Options) *Writer {
	return &Writer{
		opts:  opts,
		group: g,
		path:  filepath.Join(opts.Root, g.Kind.OutputDir(), g.Key+".m3u"),
	}
}

// Path is where the playlist is (or would be) written.
func (w *Writer) Path() string { return w.path }

// State returns the current lifecycle state.
func (w *Writer) State() State { return w.state }

// Group returns the group this writer renders.
func (w *Writer) Group() *router.Group { return w.group }

// Create opens the file and writes the header. It is a no-op when disabled or
// already created.
func (w *Writer) Create() error {
	if !w.opts.Enabled || w.state != Unopened {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", catalog.ErrFileSystem, filepath.Dir(w.path), err)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", catalog.ErrFileSystem, w.path, err)
	}
	w.f = f
	w.bw = bufio.NewWriter(f)
	w.state = Created
	if !w.opts.NoHeader {
		if _, err := w.bw.WriteString(Header + "\n"); err != nil {
			return w.fsErr(err)
		}
	}
	return nil
}

// Add appends e to the group and, when enabled, writes its two-line stanza.
// Text fields are cleaned first, so a stanza never spans more than one line.
func (w *Writer) Add(e catalog.Entry) error {
	e = singleLine(e)
	w.group.Add(e)
	if !w.opts.Enabled {
		return nil
	}
	if err := w.Create(); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(Stanza(e) + "\n" + w.URL(e) + "\n"); err != nil {
		return w.fsErr(err)
	}
	w.state = Written
	return nil
}

// Close flushes and closes the file. Safe to call more than once.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	if err := w.bw.Flush(); err != nil {
		f.Close()
		return w.fsErr(err)
	}
	if err := f.Close(); err != nil {
		return w.fsErr(err)
	}
	return nil
}

func (w *Writer) fsErr(err error) error {
	return fmt.Errorf("%w: write %s: %v", catalog.ErrFileSystem, w.path, err)
}

func singleLine(e catalog.Entry) catalog.Entry {
	e.Name = catalog.CleanText(e.Name)
	e.CategoryName = catalog.CleanText(e.CategoryName)
	e.EPGID = catalog.CleanText(e.EPGID)
	e.IconURL = catalog.CleanText(e.IconURL)
	e.PlayableID = catalog.CleanText(e.PlayableID)
	e.Extension = catalog.CleanText(e.Extension)
	return e
}

// Stanza is the #EXTINF line for e. Double quotes inside attribute values
// become single quotes; the title after the comma is left as is.
func Stanza(e catalog.Entry) string {
	return fmt.Sprintf(`#EXTINF:-1 tvg-id="%s" tvg-name="%s" tvg-logo=%s group-title="%s",%s`,
		attr(e.EPGID), attr(e.Name), strings.ReplaceAll(attr(e.IconURL), " ", "%20"), attr(e.CategoryName), e.Name)
}

func attr(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}

// URL is the playable URL of e, wrapped for TVHeadend when configured.
func (w *Writer) URL(e catalog.Entry) string {
	u := StreamURL(w.opts.Server, w.group.Kind, w.opts.Username, w.opts.Password, e, w.opts.StreamExt)
	if w.opts.TVHeadendRemux {
		return RemuxURL(u)
	}
	return u
}

// StreamURL builds <server><classPath>/<user>/<pass>/<id><ext>.
func StreamURL(server string, kind catalog.Class, username, password string, e catalog.Entry, streamExt string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(server, "/"))
	b.WriteString(kind.PathSegment())
	b.WriteString("/" + username + "/" + password + "/")
	b.WriteString(e.PlayableID)
	b.WriteString(e.ResolveExtension(streamExt))
	return b.String()
}

// RemuxURL wraps u in a TVHeadend pipe that remuxes to MPEG-TS with ffmpeg.
func RemuxURL(u string) string {
	return "pipe:///usr/bin/ffmpeg -loglevel fatal -i " + u + " -vcodec copy -acodec copy -f mpegts pipe:1"
}
