package validation

import (
	"path"
	"strings"
	"testing"
)

// FuzzValidateRoute checks that every accepted route is clean and cannot
// climb out of the output directory.
func FuzzValidateRoute(f *testing.F) {
	f.Add("/")
	f.Add("/blog/post/")
	f.Add("/feed.xml")
	f.Add("/../etc/passwd")
	f.Add("/a/..")
	f.Add("//x")
	f.Add("/a\\b")
	f.Add("")

	f.Fuzz(func(t *testing.T, route string) {
		if err := ValidateRoute(route); err != nil {
			return
		}
		if !strings.HasPrefix(route, "/") {
			t.Errorf("accepted route without leading slash: %q", route)
		}
		if strings.Contains(path.Clean(route), "..") && strings.Contains(route, "/../") {
			t.Errorf("accepted traversal: %q", route)
		}
		for _, seg := range strings.Split(route, "/") {
			if seg == ".." {
				t.Errorf("accepted parent segment: %q", route)
			}
		}
	})
}

// FuzzValidateBaseURL checks that an accepted base URL can be safely
// spliced into an attribute value.
func FuzzValidateBaseURL(f *testing.F) {
	f.Add("/")
	f.Add("https://example.com/")
	f.Add("javascript:alert('xss')")
	f.Add("http://localhost:8080\nGET /admin")
	f.Add("https://example.com/\"><script>")

	f.Fuzz(func(t *testing.T, raw string) {
		if len(raw) > 4096 {
			t.Skip("URL too long")
		}
		if err := ValidateBaseURL(raw); err != nil {
			return
		}
		if strings.ContainsAny(raw, "\"'<> \n\r\t`\\") {
			t.Errorf("accepted unsafe base URL: %q", raw)
		}
		if !strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			t.Errorf("accepted base URL with unexpected form: %q", raw)
		}
	})
}
