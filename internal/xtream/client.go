// Package xtream is the player_api.php client: account check, categories,
// stream and series lists, and series detail.
package xtream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/snapetech/xtream-m3u/internal/catalog"
	"github.com/snapetech/xtream-m3u/internal/httpclient"
)

// maxBody caps a single response; full VOD lists of large panels run to tens of MB.
const maxBody = 256 << 20

// Client fetches raw catalog data. It retries once on 429/5xx and never
// interprets records beyond their top-level shape.
type Client struct {
	base     string
	username string
	password string
	http     *http.Client
	policy   httpclient.RetryPolicy
}

// New returns a Client for base, a normalized server URL without trailing slash.
// A nil hc uses httpclient.Default.
func New(base, username, password string, hc *http.Client) *Client {
	if hc == nil {
		hc = httpclient.Default()
	}
	return &Client{
		base:     base,
		username: username,
		password: password,
		http:     hc,
		policy:   httpclient.DefaultRetryPolicy,
	}
}

// SetRetryPolicy replaces the default retry policy.
func (c *Client) SetRetryPolicy(p httpclient.RetryPolicy) { c.policy = p }

func (c *Client) apiURL(action string, extra url.Values, password string) string {
	q := url.Values{}
	q.Set("username", c.username)
	q.Set("password", password)
	if action != "" {
		q.Set("action", action)
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return c.base + "/player_api.php?" + q.Encode()
}

// get performs one API call and returns the body of a 200 JSON response.
func (c *Client) get(ctx context.Context, action string, extra url.Values) ([]byte, string, error) {
	u := c.apiURL(action, extra, c.password)
	shown := c.apiURL(action, extra, "REDACTED")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, shown, &TransportError{URL: shown, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpclient.DoWithRetry(ctx, c.http, req, c.policy)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = shown
		}
		return nil, shown, &TransportError{URL: shown, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, shown, &TransportError{URL: shown, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, shown, &TransportError{URL: shown, Err: err}
	}
	if title, ok := htmlPage(body); ok {
		reason := "html page instead of JSON"
		if title != "" {
			reason = fmt.Sprintf("html page %q instead of JSON", title)
		}
		if cloudflareTitle(title) {
			reason += " (cloudflare challenge)"
		}
		return nil, shown, &DecodeError{URL: shown, Reason: reason}
	}
	return body, shown, nil
}

// FetchAccount performs the account check. Rejected credentials yield an
// error wrapping both catalog.ErrTransport and ErrAuth.
func (c *Client) FetchAccount(ctx context.Context) (Account, error) {
	body, shown, err := c.get(ctx, "", nil)
	if err != nil {
		return Account{}, err
	}
	a, err := ParseAccount(body)
	if err != nil {
		return Account{}, &DecodeError{URL: shown, Reason: "account", Err: err}
	}
	if !a.Auth {
		return a, &TransportError{URL: shown, Err: ErrAuth}
	}
	return a, nil
}

var categoryActions = map[catalog.Class]string{
	catalog.ClassLive:   "get_live_categories",
	catalog.ClassVOD:    "get_vod_categories",
	catalog.ClassSeries: "get_series_categories",
}

var listActions = map[catalog.Class]string{
	catalog.ClassLive:   "get_live_streams",
	catalog.ClassVOD:    "get_vod_streams",
	catalog.ClassSeries: "get_series",
}

// FetchCategories returns the raw category records of class.
func (c *Client) FetchCategories(ctx context.Context, class catalog.Class) ([]catalog.Record, error) {
	action, ok := categoryActions[class]
	if !ok {
		return nil, fmt.Errorf("xtream: unknown class %q", class)
	}
	return c.records(ctx, action, nil)
}

// FetchEntries returns the raw stream (or series list) records of one category.
func (c *Client) FetchEntries(ctx context.Context, class catalog.Class, categoryID string) ([]catalog.Record, error) {
	action, ok := listActions[class]
	if !ok {
		return nil, fmt.Errorf("xtream: unknown class %q", class)
	}
	return c.records(ctx, action, url.Values{"category_id": {categoryID}})
}

// FetchSeriesDetail returns the parsed get_series_info response of one series.
func (c *Client) FetchSeriesDetail(ctx context.Context, seriesID string) (catalog.SeriesDetail, error) {
	body, shown, err := c.get(ctx, "get_series_info", url.Values{"series_id": {seriesID}})
	if err != nil {
		return catalog.SeriesDetail{}, err
	}
	d, err := catalog.ParseSeriesDetail(body)
	if err != nil {
		return catalog.SeriesDetail{}, &DecodeError{URL: shown, Reason: "series detail", Err: err}
	}
	return d, nil
}

func (c *Client) records(ctx context.Context, action string, extra url.Values) ([]catalog.Record, error) {
	body, shown, err := c.get(ctx, action, extra)
	if err != nil {
		return nil, err
	}
	recs, err := catalog.DecodeRecords(body)
	if err != nil {
		return nil, &DecodeError{URL: shown, Reason: action, Err: err}
	}
	if recs == nil {
		log.Printf("xtream: %s returned null, treating as empty", action)
	}
	return recs, nil
}
