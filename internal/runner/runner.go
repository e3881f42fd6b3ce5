// Package runner drives the catalog classes through fetch, normalize, route,
// write and diff, and accumulates the run totals.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/config"
	"github.com/snapetech/xtream-m3u/internal/history"
	"github.com/snapetech/xtream-m3u/internal/metrics"
	"github.com/snapetech/xtream-m3u/internal/playlist"
	"github.com/snapetech/xtream-m3u/internal/router"
	"github.com/snapetech/xtream-m3u/internal/snapshot"
	"github.com/snapetech/xtream-m3u/internal/xtream"
)

// Source is the fetch collaborator. *xtream.Client implements it.
type Source interface {
	FetchAccount(ctx context.Context) (xtream.Account, error)
	FetchCategories(ctx context.Context, class catalog.Class) ([]catalog.Record, error)
	FetchEntries(ctx context.Context, class catalog.Class, categoryID string) ([]catalog.Record, error)
	FetchSeriesDetail(ctx context.Context, seriesID string) (catalog.SeriesDetail, error)
}

// Totals are the counters of one class, or of the whole run.
type Totals struct {
	Groups          int
	Entries         int
	Added           int
	Removed         int
	Skipped         int // malformed records
	FailedFetches   int // categories or series whose fetch failed
	NoEpisodes      int // series without an episodes field
	UnexpectedShape int // series whose episodes used the flat array shape
}

func (t *Totals) add(o Totals) {
	t.Groups += o.Groups
	t.Entries += o.Entries
	t.Added += o.Added
	t.Removed += o.Removed
	t.Skipped += o.Skipped
	t.FailedFetches += o.FailedFetches
	t.NoEpisodes += o.NoEpisodes
	t.UnexpectedShape += o.UnexpectedShape
}

func (t Totals) metrics() metrics.ClassTotals {
	return metrics.ClassTotals{
		Entries:         t.Entries,
		Added:           t.Added,
		Removed:         t.Removed,
		Skipped:         t.Skipped,
		FailedFetches:   t.FailedFetches,
		NoEpisodes:      t.NoEpisodes,
		UnexpectedShape: t.UnexpectedShape,
	}
}

// Report is the outcome of a run. It is filled as far as the run got, even
// when Run returns an error.
type Report struct {
	RunID   string
	Account xtream.Account
	Classes []catalog.Class
	ByClass map[catalog.Class]Totals
	Total   Totals
}

// Coordinator runs one catalog export. History and Metrics are optional.
type Coordinator struct {
	cfg       *config.Config
	src       Source
	Snapshots *snapshot.Engine
	History   *history.Store
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// New returns a Coordinator for a validated cfg.
func New(cfg *config.Config, src Source) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		src:       src,
		Snapshots: &snapshot.Engine{},
		Now:       time.Now,
	}
}

// Account performs only the account check.
func (c *Coordinator) Account(ctx context.Context) (xtream.Account, error) {
	a, err := c.src.FetchAccount(ctx)
	if err != nil {
		return a, fmt.Errorf("account check: %w", err)
	}
	return a, nil
}

// Run performs the account check and then processes every configured class.
// Only a failed account check, a file system error or cancellation stop the run.
func (c *Coordinator) Run(ctx context.Context) (rep Report, err error) {
	started := c.Now()
	rep.ByClass = make(map[catalog.Class]Totals)
	defer func() {
		for _, class := range rep.Classes {
			rep.Total.add(rep.ByClass[class])
		}
		c.finish(ctx, &rep, started, err)
	}()

	rep.Account, err = c.Account(ctx)
	if err != nil {
		return rep, err
	}
	log.Printf("runner: account %s status=%s connections=%d/%d", rep.Account.Username, rep.Account.Status,
		rep.Account.ActiveConnections, rep.Account.MaxConnections)

	if c.History != nil {
		id, herr := c.History.BeginRun(ctx)
		if herr != nil {
			log.Printf("runner: %v (changes are logged without a run id)", herr)
		}
		rep.RunID = id
	}

	for _, class := range c.cfg.Classes() {
		t, cerr := c.runClass(ctx, rep.RunID, class)
		rep.Classes = append(rep.Classes, class)
		rep.ByClass[class] = t
		log.Printf("runner: %s: %d entries in %d groups, +%d -%d, %d skipped, %d failed fetches",
			class, t.Entries, t.Groups, t.Added, t.Removed, t.Skipped, t.FailedFetches)
		if c.Metrics != nil {
			c.Metrics.ObserveClass(class, t.metrics())
		}
		if cerr != nil {
			return rep, fmt.Errorf("%s: %w", class, cerr)
		}
	}
	return rep, nil
}

func (c *Coordinator) finish(ctx context.Context, rep *Report, started time.Time, runErr error) {
	if c.History != nil && rep.RunID != "" {
		sum := history.RunSummary{Entries: rep.Total.Entries, Added: rep.Total.Added, Removed: rep.Total.Removed}
		if err := c.History.FinishRun(context.WithoutCancel(ctx), rep.RunID, sum); err != nil {
			log.Printf("runner: %v", err)
		}
	}
	if c.Metrics != nil {
		c.Metrics.ObserveRun(started, c.Now(), runErr)
		if c.cfg.MetricsFile != "" {
			if err := c.Metrics.WriteFile(c.cfg.MetricsFile); err != nil {
				log.Printf("runner: %v", err)
			}
		}
	}
}

// classRun is the state of one class for the duration of the run.
type classRun struct {
	class   catalog.Class
	index   catalog.CategoryIndex
	router  *router.Router
	writers []*playlist.Writer
	byGroup map[*router.Group]*playlist.Writer
	popts   playlist.Options
	totals  Totals
	// partial holds the keys of groups that lost entries to a failed fetch.
	// Their snapshots are left as they were.
	partial map[string]bool
}

func (c *Coordinator) playlistOptions() playlist.Options {
	return playlist.Options{
		Enabled:        c.cfg.M3U,
		Root:           c.cfg.OutputDir,
		Server:         c.cfg.Server,
		Username:       c.cfg.Username,
		Password:       c.cfg.Password,
		StreamExt:      c.cfg.StreamExt,
		NoHeader:       c.cfg.NoHeader,
		TVHeadendRemux: c.cfg.TVHeadendRemux,
	}
}

// writer returns the playlist writer of g, creating it on first use.
func (cr *classRun) writer(g *router.Group, eager bool) (*playlist.Writer, error) {
	if w, ok := cr.byGroup[g]; ok {
		return w, nil
	}
	w := playlist.NewWriter(g, cr.popts)
	cr.byGroup[g] = w
	cr.writers = append(cr.writers, w)
	if eager {
		if err := w.Create(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// add routes e and hands it to its group's writer.
func (cr *classRun) add(e catalog.Entry) error {
	g, _ := cr.router.Route(&e)
	w, err := cr.writer(g, false)
	if err != nil {
		return err
	}
	return w.Add(e)
}

func (cr *classRun) closeAll() error {
	var errs []error
	for _, w := range cr.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) runClass(ctx context.Context, runID string, class catalog.Class) (Totals, error) {
	var t Totals
	recs, err := c.src.FetchCategories(ctx, class)
	if err != nil {
		if ctx.Err() != nil {
			return t, ctx.Err()
		}
		log.Printf("runner: %s: categories: %v", class, err)
		t.FailedFetches++
		return t, nil
	}
	index, cats := catalog.NewCategoryIndex(recs)
	log.Printf("runner: %s: %d categories", class, len(cats))

	cr := &classRun{
		class:   class,
		index:   index,
		router:  router.New(class, index, c.cfg.SingleM3U),
		byGroup: make(map[*router.Group]*playlist.Writer),
		popts:   c.playlistOptions(),
		partial: make(map[string]bool),
	}
	err = c.fill(ctx, cr, cats)
	if cerr := cr.closeAll(); err == nil {
		err = cerr
	}
	if err != nil {
		return cr.totals, err
	}
	return cr.finalize(ctx, c, runID)
}

func (c *Coordinator) fill(ctx context.Context, cr *classRun, cats []catalog.Category) error {
	if c.cfg.AlwaysCreate {
		for _, cat := range cats {
			g, _ := cr.router.Declare(cat)
			if _, err := cr.writer(g, true); err != nil {
				return err
			}
		}
	}
	for _, cat := range cats {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := c.src.FetchEntries(ctx, cr.class, cat.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("runner: %s: category %q (%s): %v", cr.class, cat.Name, cat.ID, err)
			cr.totals.FailedFetches++
			cr.partial[cr.router.GroupKey(cat.ID)] = true
			continue
		}
		if cr.class == catalog.ClassSeries {
			err = c.fillSeries(ctx, cr, cat, recs)
		} else {
			err = c.fillStreams(cr, cat, recs)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) fillStreams(cr *classRun, cat catalog.Category, recs []catalog.Record) error {
	schema := catalog.SchemaFor(cr.class)
	for i, r := range recs {
		e, err := catalog.Normalize(r, schema)
		if err != nil {
			log.Printf("runner: %s: category %q record %d: %v", cr.class, cat.Name, i, err)
			cr.totals.Skipped++
			continue
		}
		if err := cr.add(e); err != nil {
			return err
		}
	}
	return nil
}

type detailResult struct {
	detail catalog.SeriesDetail
	err    error
}

func (c *Coordinator) fillSeries(ctx context.Context, cr *classRun, cat catalog.Category, recs []catalog.Record) error {
	shows := make([]catalog.Entry, 0, len(recs))
	for i, r := range recs {
		s, err := catalog.Normalize(r, catalog.SeriesSchema)
		if err != nil {
			log.Printf("runner: series: category %q record %d: %v", cat.Name, i, err)
			cr.totals.Skipped++
			continue
		}
		shows = append(shows, s)
	}
	details, err := c.fetchDetails(ctx, shows)
	if err != nil {
		return err
	}
	for i, show := range shows {
		res := details[i]
		if res.err != nil {
			log.Printf("runner: series %q (%s): %v", show.Name, show.ID, res.err)
			cr.totals.FailedFetches++
			cr.partial[cr.router.GroupKey(show.CategoryID)] = true
			continue
		}
		catName, _ := cr.index.Lookup(show.CategoryID)
		r := catalog.ResolveEpisodes(res.detail.Episodes, catalog.ResolveOptions{
			SeriesName:    show.Name,
			CategoryID:    show.CategoryID,
			CategoryName:  catName,
			TitleFallback: c.cfg.EpisodeTitleFallback,
			SeasonOrder:   c.cfg.SeasonOrder,
		})
		if r.NoEpisodes {
			cr.totals.NoEpisodes++
		}
		if r.UnexpectedShape {
			log.Printf("runner: series %q (%s): episodes in flat array shape", show.Name, show.ID)
			cr.totals.UnexpectedShape++
		}
		for _, serr := range r.Skipped {
			log.Printf("runner: series %q (%s): %v", show.Name, show.ID, serr)
		}
		cr.totals.Skipped += len(r.Skipped)
		for _, ep := range r.Episodes {
			if err := cr.add(ep); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchDetails fetches the detail of every show with at most
// SeriesConcurrency requests in flight. Results keep the order of shows.
func (c *Coordinator) fetchDetails(ctx context.Context, shows []catalog.Entry) ([]detailResult, error) {
	out := make([]detailResult, len(shows))
	limit := c.cfg.SeriesConcurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, show := range shows {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, err := c.src.FetchSeriesDetail(ctx, show.PlayableID)
			out[i] = detailResult{detail: d, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, ctx.Err()
}

// finalize computes the diff of every group once all its entries are known.
// Groups with missing entries are written but not diffed.
func (cr *classRun) finalize(ctx context.Context, c *Coordinator, runID string) (Totals, error) {
	dir := filepath.Join(c.cfg.OutputDir, cr.class.OutputDir())
	for _, g := range cr.router.Groups() {
		cr.totals.Groups++
		cr.totals.Entries += len(g.Entries)
		if !c.cfg.Diff {
			continue
		}
		if cr.partial[g.Key] {
			log.Printf("runner: %s/%s: incomplete after failed fetches, snapshot kept", cr.class, g.Key)
			continue
		}
		d, err := c.Snapshots.Update(dir, g.Key, g.Names)
		if err != nil {
			return cr.totals, err
		}
		cr.totals.Added += d.Added
		cr.totals.Removed += d.Removed
		switch {
		case !d.Computed:
			log.Printf("runner: %s/%s: no previous snapshot, baseline of %d names", cr.class, g.Key, len(g.Names))
		case d.Changed():
			log.Printf("runner: %s/%s: +%d -%d (%s)", cr.class, g.Key, d.Added, d.Removed, d.ReportPath)
		}
		c.recordHistory(ctx, runID, cr.class, g, d)
	}
	return cr.totals, nil
}

func (c *Coordinator) recordHistory(ctx context.Context, runID string, class catalog.Class, g *router.Group, d snapshot.Diff) {
	if c.History == nil {
		return
	}
	added, removed := d.AddedNames, d.RemovedNames
	if !d.Computed {
		added = g.Names
	}
	if err := c.History.Record(ctx, runID, class, g.Key, added, removed); err != nil {
		log.Printf("runner: %v", err)
	}
}
