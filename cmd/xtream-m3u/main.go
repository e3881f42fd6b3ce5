package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/config"
	"github.com/snapetech/xtream-m3u/internal/history"
	"github.com/snapetech/xtream-m3u/internal/httpclient"
	"github.com/snapetech/xtream-m3u/internal/metrics"
	"github.com/snapetech/xtream-m3u/internal/runner"
	"github.com/snapetech/xtream-m3u/internal/xtream"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [run|account|history|categories] [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  run         Export playlists and snapshots for the selected classes (default)\n")
	fmt.Fprintf(os.Stderr, "  account     Print the provider account information and exit\n")
	fmt.Fprintf(os.Stderr, "  history     Print the change log of a channel or title: history [flags] <name>\n")
	fmt.Fprintf(os.Stderr, "  categories  List the categories recorded in the history database\n")
}

// providerFlags binds the flags shared by run and account onto cfg.
func providerFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Provider URL, e.g. http://host:8080 (default: XTREAM_M3U_SERVER)")
	fs.StringVar(&cfg.Username, "user", cfg.Username, "Provider username (default: XTREAM_M3U_USERNAME)")
	fs.StringVar(&cfg.Password, "pass", cfg.Password, "Provider password (default: XTREAM_M3U_PASSWORD)")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per request")
}

func runFlags(fs *flag.FlagSet, cfg *config.Config) (fallback, order *string, quiet, accountInfo *bool) {
	providerFlags(fs, cfg)
	fs.BoolVar(&cfg.Live, "live", cfg.Live, "Process live streams")
	fs.BoolVar(&cfg.VOD, "vod", cfg.VOD, "Process movies")
	fs.BoolVar(&cfg.Series, "series", cfg.Series, "Process series")
	fs.BoolVar(&cfg.SingleM3U, "single", cfg.SingleM3U, "One playlist per class instead of one per category")
	fs.BoolVar(&cfg.M3U, "m3u", cfg.M3U, "Write playlists")
	fs.BoolVar(&cfg.Diff, "diff", cfg.Diff, "Write snapshots and diff reports")
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "Output root directory")
	fs.BoolVar(&cfg.NoHeader, "no-header", cfg.NoHeader, "Omit the #EXTM3U header")
	fs.StringVar(&cfg.StreamExt, "ext", cfg.StreamExt, "Extension for records without container_extension")
	fs.BoolFunc("ts", "Shorthand for -ext .ts", func(v string) error {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		if on {
			cfg.StreamExt = ".ts"
		}
		return nil
	})
	fs.BoolVar(&cfg.TVHeadendRemux, "tvheadend-remux", cfg.TVHeadendRemux, "Wrap stream URLs in a TVHeadend pipe:// ffmpeg remux")
	fs.BoolVar(&cfg.AlwaysCreate, "always-create", cfg.AlwaysCreate, "Create playlists for empty categories too")
	fallback = fs.String("title-fallback", string(cfg.EpisodeTitleFallback), "Untitled episodes: none | series | category")
	order = fs.String("season-order", string(cfg.SeasonOrder), "Season ordering: lexical | numeric")
	fs.IntVar(&cfg.SeriesConcurrency, "series-concurrency", cfg.SeriesConcurrency, "Parallel series detail fetches")
	fs.StringVar(&cfg.HistoryDB, "history-db", cfg.HistoryDB, "SQLite change log path (empty = disabled)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Prometheus textfile path (empty = disabled)")
	quiet = fs.Bool("quiet", false, "Only print the final totals")
	accountInfo = fs.Bool("account-info", false, "Print the account information and exit")
	return fallback, order, quiet, accountInfo
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[xtream-m3u] ")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Config: %v", err)
		os.Exit(1)
	}

	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		fallback, order, quiet, accountInfo := runFlags(runCmd, cfg)
		_ = runCmd.Parse(args)
		cfg.EpisodeTitleFallback = catalog.TitleFallback(strings.ToLower(*fallback))
		cfg.SeasonOrder = catalog.SeasonOrder(strings.ToLower(*order))
		if *quiet {
			log.SetOutput(io.Discard)
		}
		if err := cfg.Validate(); err != nil {
			log.Printf("Config: %v", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if *accountInfo {
			if err := printAccount(ctx, cfg); err != nil {
				log.Printf("Account failed: %v", err)
				stop()
				os.Exit(1)
			}
			return
		}
		if err := run(ctx, cfg); err != nil {
			log.Printf("Run failed: %v", err)
			stop()
			os.Exit(1)
		}

	case "account":
		accountCmd := flag.NewFlagSet("account", flag.ExitOnError)
		providerFlags(accountCmd, cfg)
		_ = accountCmd.Parse(args)
		if err := cfg.Validate(); err != nil {
			log.Printf("Config: %v", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := printAccount(ctx, cfg); err != nil {
			log.Printf("Account failed: %v", err)
			stop()
			os.Exit(1)
		}

	case "history":
		historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
		dbPath := historyCmd.String("history-db", cfg.HistoryDB, "SQLite change log path (default: XTREAM_M3U_HISTORY_DB)")
		_ = historyCmd.Parse(args)
		if historyCmd.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "Usage: %s history [-history-db path] <name>\n", os.Args[0])
			os.Exit(1)
		}
		if err := printHistory(context.Background(), *dbPath, historyCmd.Arg(0)); err != nil {
			log.Printf("History failed: %v", err)
			os.Exit(1)
		}

	case "categories":
		catCmd := flag.NewFlagSet("categories", flag.ExitOnError)
		dbPath := catCmd.String("history-db", cfg.HistoryDB, "SQLite change log path (default: XTREAM_M3U_HISTORY_DB)")
		className := catCmd.String("class", "", "Only this class: live | vod | series")
		_ = catCmd.Parse(args)
		if err := printCategories(context.Background(), *dbPath, *className); err != nil {
			log.Printf("Categories failed: %v", err)
			os.Exit(1)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func newClient(cfg *config.Config) *xtream.Client {
	return xtream.New(cfg.Server, cfg.Username, cfg.Password, httpclient.WithTimeout(cfg.HTTPTimeout))
}

func printAccount(ctx context.Context, cfg *config.Config) error {
	a, err := runner.New(cfg, newClient(cfg)).Account(ctx)
	if err != nil {
		return err
	}
	return a.WriteSummary(os.Stdout)
}

func run(ctx context.Context, cfg *config.Config) error {
	if len(cfg.Classes()) == 0 {
		return errors.New("no class selected (use -live, -vod or -series)")
	}
	co := runner.New(cfg, newClient(cfg))
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			// The change log is optional; the export still runs.
			log.Printf("History disabled: %v", err)
		} else {
			defer store.Close()
			co.History = store
		}
	}
	if cfg.MetricsFile != "" {
		co.Metrics = metrics.New()
	}

	rep, err := co.Run(ctx)
	printTotals(os.Stdout, rep)
	return err
}

func printTotals(w io.Writer, rep runner.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "class\tgroups\tentries\tadded\tremoved\tskipped\tfailed\tno episodes")
	for _, class := range rep.Classes {
		writeTotalsRow(tw, string(class), rep.ByClass[class])
	}
	writeTotalsRow(tw, "total", rep.Total)
	tw.Flush()
}

func writeTotalsRow(w io.Writer, label string, t runner.Totals) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		label, t.Groups, t.Entries, t.Added, t.Removed, t.Skipped, t.FailedFetches, t.NoEpisodes)
}

func openHistory(path string) (*history.Store, error) {
	if path == "" {
		return nil, errors.New("no history database (set -history-db or XTREAM_M3U_HISTORY_DB)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return history.Open(path)
}

func printHistory(ctx context.Context, path, name string) error {
	store, err := openHistory(path)
	if err != nil {
		return err
	}
	defer store.Close()
	changes, err := store.History(ctx, name)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Printf("No history for %q\n", name)
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n", c.At.Local().Format("2006-01-02 15:04:05"), c.Type, c.Class, c.Category, c.Name)
	}
	return tw.Flush()
}

func printCategories(ctx context.Context, path, className string) error {
	var class catalog.Class
	if className != "" {
		c, err := catalog.ParseClass(className)
		if err != nil {
			return err
		}
		class = c
	}
	store, err := openHistory(path)
	if err != nil {
		return err
	}
	defer store.Close()
	names, err := store.Categories(ctx, class)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
