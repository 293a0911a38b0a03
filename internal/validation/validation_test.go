package validation

import (
	"path/filepath"
	"testing"
)

func TestValidateRoute(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		wantErr bool
	}{
		{name: "root", route: "/", wantErr: false},
		{name: "directory route", route: "/blog/post/", wantErr: false},
		{name: "file route", route: "/feed.xml", wantErr: false},
		{name: "empty", route: "", wantErr: true},
		{name: "relative", route: "blog/", wantErr: true},
		{name: "traversal", route: "/../etc/passwd", wantErr: true},
		{name: "nested traversal", route: "/a/../../b", wantErr: true},
		{name: "dot segment", route: "/a/./b", wantErr: true},
		{name: "double slash", route: "/a//b", wantErr: true},
		{name: "backslash", route: `/a\..\b`, wantErr: true},
		{name: "null byte", route: "/a\x00b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoute(tt.route)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoute(%q) error = %v, wantErr %v", tt.route, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWithin(t *testing.T) {
	root := filepath.Join(t.TempDir(), "public")

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{name: "root itself", target: root, wantErr: false},
		{name: "child", target: filepath.Join(root, "a", "index.html"), wantErr: false},
		{name: "dotted name", target: filepath.Join(root, "..hidden"), wantErr: false},
		{name: "sibling", target: filepath.Join(root, "..", "other"), wantErr: true},
		{name: "parent", target: filepath.Dir(root), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWithin(root, tt.target)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWithin() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"localhost:8000", "127.0.0.1:8000"}

	tests := []struct {
		name    string
		origin  string
		wantErr bool
	}{
		{name: "allowed host", origin: "http://localhost:8000", wantErr: false},
		{name: "allowed ip", origin: "http://127.0.0.1:8000", wantErr: false},
		{name: "other port", origin: "http://localhost:9000", wantErr: true},
		{name: "foreign host", origin: "https://evil.example", wantErr: true},
		{name: "bad scheme", origin: "file://localhost:8000", wantErr: true},
		{name: "missing", origin: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrigin(tt.origin, allowed)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOrigin(%q) error = %v, wantErr %v", tt.origin, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "root path", url: "/", wantErr: false},
		{name: "sub path", url: "/docs/", wantErr: false},
		{name: "https", url: "https://example.com/", wantErr: false},
		{name: "http with port", url: "http://localhost:8000/site/", wantErr: false},
		{name: "empty", url: "", wantErr: true},
		{name: "relative", url: "docs/", wantErr: true},
		{name: "protocol relative", url: "//cdn.example/", wantErr: true},
		{name: "javascript", url: "javascript:alert(1)", wantErr: true},
		{name: "credentials", url: "https://user:pw@example.com/", wantErr: true},
		{name: "query", url: "https://example.com/?a=b", wantErr: true},
		{name: "quote", url: `https://example.com/"onload=x`, wantErr: true},
		{name: "space", url: "https://example.com/a b", wantErr: true},
		{name: "no host", url: "https:///path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBaseURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
