package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/safeurl"
)

// Config is the single resolved configuration of a run. Precedence, lowest
// first: defaults, YAML file (XTREAM_M3U_CONFIG), environment, command-line flags.
type Config struct {
	// Provider
	Server   string `yaml:"server"` // e.g. http://provider:8080
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Classes to process
	Live   bool `yaml:"live"`
	VOD    bool `yaml:"vod"`
	Series bool `yaml:"series"`

	// Output
	OutputDir      string `yaml:"output_dir"`
	SingleM3U      bool   `yaml:"single_m3u"` // one aggregate group per class instead of one per category
	M3U            bool   `yaml:"m3u"`        // write playlists
	Diff           bool   `yaml:"diff"`       // write snapshots and diff reports
	NoHeader       bool   `yaml:"no_header"`
	StreamExt      string `yaml:"stream_ext"` // fallback extension for records without container_extension
	TVHeadendRemux bool   `yaml:"tvheadend_remux"`
	AlwaysCreate   bool   `yaml:"always_create"` // create playlists for empty categories too

	// Series
	EpisodeTitleFallback catalog.TitleFallback `yaml:"episode_title_fallback"` // none | series | category
	SeasonOrder          catalog.SeasonOrder   `yaml:"season_order"`           // lexical | numeric
	SeriesConcurrency    int                   `yaml:"series_concurrency"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Optional stores
	HistoryDB   string `yaml:"history_db"`   // SQLite change log; "" = disabled
	MetricsFile string `yaml:"metrics_file"` // Prometheus textfile; "" = disabled
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Live:                 true,
		OutputDir:            ".",
		M3U:                  true,
		Diff:                 true,
		EpisodeTitleFallback: catalog.TitleFallbackNone,
		SeasonOrder:          catalog.SeasonOrderLexical,
		SeriesConcurrency:    1,
		HTTPTimeout:          30 * time.Second,
	}
}

// Load builds a Config from defaults, the optional YAML file named by
// XTREAM_M3U_CONFIG and the environment. Call LoadEnvFile(".env") first to use
// a .env file. If Username or Password are still empty, Load tries
// XTREAM_M3U_SUBSCRIPTION_FILE (or the default path) with "Username:" / "Password:" lines.
func Load() (*Config, error) {
	c := Default()
	if path := os.Getenv("XTREAM_M3U_CONFIG"); path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	if c.Username == "" || c.Password == "" {
		if user, pass, err := readSubscriptionFile(os.Getenv("XTREAM_M3U_SUBSCRIPTION_FILE")); err == nil {
			if c.Username == "" {
				c.Username = user
			}
			if c.Password == "" {
				c.Password = pass
			}
		}
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Server = getEnv("XTREAM_M3U_SERVER", c.Server)
	c.Username = getEnv("XTREAM_M3U_USERNAME", c.Username)
	c.Password = getEnv("XTREAM_M3U_PASSWORD", c.Password)
	c.Live = getEnvBool("XTREAM_M3U_LIVE", c.Live)
	c.VOD = getEnvBool("XTREAM_M3U_VOD", c.VOD)
	c.Series = getEnvBool("XTREAM_M3U_SERIES", c.Series)
	c.OutputDir = getEnv("XTREAM_M3U_OUTPUT_DIR", c.OutputDir)
	c.SingleM3U = getEnvBool("XTREAM_M3U_SINGLE_M3U", c.SingleM3U)
	c.M3U = getEnvBool("XTREAM_M3U_M3U", c.M3U)
	c.Diff = getEnvBool("XTREAM_M3U_DIFF", c.Diff)
	c.NoHeader = getEnvBool("XTREAM_M3U_NO_HEADER", c.NoHeader)
	c.StreamExt = getEnv("XTREAM_M3U_STREAM_EXT", c.StreamExt)
	c.TVHeadendRemux = getEnvBool("XTREAM_M3U_TVHEADEND_REMUX", c.TVHeadendRemux)
	c.AlwaysCreate = getEnvBool("XTREAM_M3U_ALWAYS_CREATE", c.AlwaysCreate)
	c.EpisodeTitleFallback = catalog.TitleFallback(strings.ToLower(getEnv("XTREAM_M3U_EPISODE_TITLE_FALLBACK", string(c.EpisodeTitleFallback))))
	c.SeasonOrder = catalog.SeasonOrder(strings.ToLower(getEnv("XTREAM_M3U_SEASON_ORDER", string(c.SeasonOrder))))
	c.SeriesConcurrency = getEnvInt("XTREAM_M3U_SERIES_CONCURRENCY", c.SeriesConcurrency)
	c.HTTPTimeout = getEnvDuration("XTREAM_M3U_HTTP_TIMEOUT", c.HTTPTimeout)
	c.HistoryDB = getEnv("XTREAM_M3U_HISTORY_DB", c.HistoryDB)
	c.MetricsFile = getEnv("XTREAM_M3U_METRICS_FILE", c.MetricsFile)
}

// Classes returns the selected catalog classes in processing order.
func (c *Config) Classes() []catalog.Class {
	var out []catalog.Class
	if c.Live {
		out = append(out, catalog.ClassLive)
	}
	if c.VOD {
		out = append(out, catalog.ClassVOD)
	}
	if c.Series {
		out = append(out, catalog.ClassSeries)
	}
	return out
}

// Validate checks the fields a run needs and normalizes Server to a base URL.
func (c *Config) Validate() error {
	var errs []error
	if base, err := safeurl.Base(c.Server); err != nil {
		errs = append(errs, err)
	} else {
		c.Server = base
	}
	if c.Username == "" || c.Password == "" {
		errs = append(errs, errors.New("username and password are required"))
	}
	switch c.EpisodeTitleFallback {
	case catalog.TitleFallbackNone, catalog.TitleFallbackSeries, catalog.TitleFallbackCategory:
	case "":
		c.EpisodeTitleFallback = catalog.TitleFallbackNone
	default:
		errs = append(errs, fmt.Errorf("episode title fallback %q: want none, series or category", c.EpisodeTitleFallback))
	}
	switch c.SeasonOrder {
	case catalog.SeasonOrderLexical, catalog.SeasonOrderNumeric:
	case "":
		c.SeasonOrder = catalog.SeasonOrderLexical
	default:
		errs = append(errs, fmt.Errorf("season order %q: want lexical or numeric", c.SeasonOrder))
	}
	if c.SeriesConcurrency <= 0 {
		c.SeriesConcurrency = 1
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	return errors.Join(errs...)
}

// readSubscriptionFile reads "Username: x" and "Password: x" from path. path may be empty to try default.
// When path is empty, globs ~/Documents/iptv.subscription.*.txt and uses the alphabetically last match
// (i.e. highest year), so the file keeps working across year-end renewals.
func readSubscriptionFile(path string) (user, pass string, err error) {
	if path == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", "", os.ErrNotExist
		}
		pattern := filepath.Join(home, "Documents", "iptv.subscription.*.txt")
		matches, globErr := filepath.Glob(pattern)
		if globErr != nil || len(matches) == 0 {
			return "", "", os.ErrNotExist
		}
		sort.Strings(matches)
		path = matches[len(matches)-1]
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "Username:"); ok {
			user = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Password:"); ok {
			pass = strings.TrimSpace(v)
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("subscription file: missing Username or Password")
	}
	return user, pass, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
