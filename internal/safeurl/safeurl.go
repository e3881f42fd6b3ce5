package safeurl

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Base normalizes a provider server address into a base URL without a
// trailing slash: a missing scheme defaults to http, internationalized hosts
// are converted to their ASCII form, and a pasted player_api.php or get.php
// (with its query) is dropped.
func Base(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("server address is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	if !IsHTTPOrHTTPS(raw) {
		return "", fmt.Errorf("server address %q: scheme must be http or https", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("server address %q: %w", raw, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("server address %q: missing host", raw)
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("server address %q: host: %w", raw, err)
		}
		host = ascii
	}
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	path := strings.TrimSuffix(u.Path, "/")
	path = strings.TrimSuffix(path, "/player_api.php")
	path = strings.TrimSuffix(path, "/get.php")
	return u.Scheme + "://" + host + path, nil
}
