package safeurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://example.com/", true},
		{"https://example.com/path", true},
		{"HTTP://x", true},
		{"HTTPS://x", true},
		{"file:///etc/passwd", false},
		{"ftp://example.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allow, IsHTTPOrHTTPS(tt.url), "IsHTTPOrHTTPS(%q)", tt.url)
	}
}

func TestBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://provider.example:8080", "http://provider.example:8080", false},
		{"http://provider.example:8080/", "http://provider.example:8080", false},
		{"provider.example", "http://provider.example", false},
		{"https://Provider.Example/player_api.php?username=u", "https://provider.example", false},
		{"http://provider.example/xc/get.php", "http://provider.example/xc", false},
		{"http://bücher.example", "http://xn--bcher-kva.example", false},
		{"http://10.0.0.5:25461/", "http://10.0.0.5:25461", false},
		{"http://[::1]:8080", "http://[::1]:8080", false},
		{"ftp://provider.example", "", true},
		{"", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := Base(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "Base(%q)", tt.in)
			continue
		}
		if assert.NoError(t, err, "Base(%q)", tt.in) {
			assert.Equal(t, tt.want, got, "Base(%q)", tt.in)
		}
	}
}
