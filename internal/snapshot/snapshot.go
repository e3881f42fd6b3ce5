// Package snapshot keeps the sorted name list of each group between runs and
// reports what was added and removed since the previous run.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

// ReportTimeLayout is the timestamp format embedded in diff report filenames.
const ReportTimeLayout = "20060102_150405"

// Diff is the result of one Update.
type Diff struct {
	Added    int
	Removed  int
	Computed bool // false when there was no prior snapshot to compare against

	AddedNames   []string
	RemovedNames []string
	Lines        []string // report lines, "+ name" / "- name"
	ReportPath   string   // "" when no report was written
}

// Changed reports whether the diff found any difference.
func (d Diff) Changed() bool { return d.Added+d.Removed > 0 }

// Engine writes snapshots and diff reports. The zero value uses time.Now.
type Engine struct {
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// SnapshotPath is <dir>/<key>_all.txt.
func SnapshotPath(dir, key string) string {
	return filepath.Join(dir, key+"_all.txt")
}

// ReportPath is <dir>/<key>_diff_<YYYYMMDD_HHMMSS>.txt.
func ReportPath(dir, key string, at time.Time) string {
	return filepath.Join(dir, key+"_diff_"+at.Format(ReportTimeLayout)+".txt")
}

// Update replaces the snapshot of key in dir with names (cleaned with
// catalog.CleanText, sorted, one per line) and diffs it against the previous
// snapshot. names is not modified.
func (e *Engine) Update(dir, key string, names []string) (Diff, error) {
	path := SnapshotPath(dir, key)
	prev, err := os.ReadFile(path)
	hadPrior := true
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Diff{}, fmt.Errorf("%w: read snapshot %s: %v", catalog.ErrFileSystem, path, err)
		}
		hadPrior = false
	}

	// One name per line: a name with a line break would not survive a reload.
	sorted := make([]string, len(names))
	for i, n := range names {
		sorted[i] = catalog.CleanText(n)
	}
	sort.Strings(sorted)
	cur := Encode(sorted)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Diff{}, fmt.Errorf("%w: create %s: %v", catalog.ErrFileSystem, dir, err)
	}
	if err := writeFileAtomic(path, cur); err != nil {
		return Diff{}, err
	}
	if !hadPrior {
		return Diff{}, nil
	}
	if bytes.Equal(prev, cur) {
		return Diff{Computed: true}, nil
	}

	d := Compare(Decode(prev), sorted)
	if !d.Changed() {
		return d, nil
	}
	report := ReportPath(dir, key, e.now())
	if err := os.WriteFile(report, []byte(strings.Join(d.Lines, "\n")+"\n"), 0o644); err != nil {
		return d, fmt.Errorf("%w: write report %s: %v", catalog.ErrFileSystem, report, err)
	}
	d.ReportPath = report
	return d, nil
}

// Compare computes a line diff of two sorted name lists.
func Compare(old, cur []string) Diff {
	d := Diff{Computed: true}
	m := difflib.NewMatcher(old, cur)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r', 'd':
			for _, name := range old[op.I1:op.I2] {
				d.RemovedNames = append(d.RemovedNames, name)
				d.Lines = append(d.Lines, "- "+name)
			}
		}
		switch op.Tag {
		case 'r', 'i':
			for _, name := range cur[op.J1:op.J2] {
				d.AddedNames = append(d.AddedNames, name)
				d.Lines = append(d.Lines, "+ "+name)
			}
		}
	}
	d.Added = len(d.AddedNames)
	d.Removed = len(d.RemovedNames)
	return d
}

// Encode renders names one per line.
func Encode(names []string) []byte {
	if len(names) == 0 {
		return nil
	}
	return []byte(strings.Join(names, "\n") + "\n")
}

// Decode is the inverse of Encode. A trailing CR is dropped from each line.
func Decode(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: snapshot create temp: %v", catalog.ErrFileSystem, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("%w: snapshot write: %v", catalog.ErrFileSystem, writeErr)
		}
		return fmt.Errorf("%w: snapshot close: %v", catalog.ErrFileSystem, closeErr)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: snapshot chmod: %v", catalog.ErrFileSystem, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: snapshot rename: %v", catalog.ErrFileSystem, err)
	}
	return nil
}
