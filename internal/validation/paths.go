// Package validation guards the boundaries where user-controlled strings
// become file paths, URLs or trusted request origins.
package validation

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ValidateRoute checks that a route is a clean, site-absolute URL path
// that can be mapped onto a file below the output directory.
func ValidateRoute(route string) error {
	if route == "" {
		return fmt.Errorf("route cannot be empty")
	}
	if !strings.HasPrefix(route, "/") {
		return fmt.Errorf("route %q must start with /", route)
	}
	for _, r := range route {
		if r < 32 || r == 127 {
			return fmt.Errorf("route %q contains a control character", route)
		}
	}
	if strings.Contains(route, `\`) {
		return fmt.Errorf("route %q contains a backslash", route)
	}
	for _, seg := range strings.Split(route, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("path traversal detected: %s", route)
		}
	}
	if route == "/" {
		return nil
	}
	if clean := path.Clean(route); clean != strings.TrimSuffix(route, "/") {
		return fmt.Errorf("route %q is not clean", route)
	}
	return nil
}

// ValidateWithin checks that target resolves to root or a path below it.
func ValidateWithin(root, target string) error {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return fmt.Errorf("resolving %s against %s: %w", target, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", target, root)
	}
	return nil
}

// ValidateOrigin validates a WebSocket origin for CSRF protection. An
// origin is accepted when its host matches one of allowedHosts.
func ValidateOrigin(origin string, allowedHosts []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedHosts {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}
