package xtream

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

// Account is the user_info/server_info part of the player_api.php response.
// Fields that panels send as either strings or numbers are canonicalized.
type Account struct {
	Username          string
	Auth              bool
	Status            string
	CreatedAt         time.Time // zero when unknown
	ExpiresAt         time.Time // zero when the subscription does not expire
	ActiveConnections int
	MaxConnections    int
	Trial             bool
	ServerURL         string
	ServerTimezone    string
}

// ParseAccount decodes an account response body.
func ParseAccount(body []byte) (Account, error) {
	var top struct {
		UserInfo   catalog.Record `json:"user_info"`
		ServerInfo catalog.Record `json:"server_info"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return Account{}, err
	}
	if top.UserInfo == nil {
		return Account{}, fmt.Errorf("no user_info in response")
	}
	u := top.UserInfo
	a := Account{
		Auth:  u.Bool("auth"),
		Trial: u.Bool("is_trial"),
	}
	a.Username, _ = u.Field("username")
	a.Status, _ = u.Field("status")
	a.CreatedAt = unixField(u, "created_at")
	a.ExpiresAt = unixField(u, "exp_date")
	if n, ok := u.Int("active_cons"); ok {
		a.ActiveConnections = int(n)
	}
	if n, ok := u.Int("max_connections"); ok {
		a.MaxConnections = int(n)
	}
	if s := top.ServerInfo; s != nil {
		a.ServerURL, _ = s.Field("url")
		a.ServerTimezone, _ = s.Field("timezone")
	}
	return a, nil
}

func unixField(r catalog.Record, key string) time.Time {
	n, ok := r.Int(key)
	if !ok || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// WriteSummary prints the account in the format of the account subcommand.
func (a Account) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"Account Information:\n Created: %s\n Expires: %s\n Status: %s\n Active Connections: %d\n Max Connections: %d\n Trial: %t\n",
		formatTime(a.CreatedAt, "unknown"), formatTime(a.ExpiresAt, "never"),
		a.Status, a.ActiveConnections, a.MaxConnections, a.Trial)
	return err
}

func formatTime(t time.Time, zero string) string {
	if t.IsZero() {
		return zero
	}
	return t.Format("2006-01-02 15:04:05 UTC")
}
