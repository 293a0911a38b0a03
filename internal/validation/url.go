package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateBaseURL validates the URL every site link is prefixed with. It
// is either a site-absolute path such as "/docs/" or an absolute http(s)
// URL.
func ValidateBaseURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	for _, r := range rawURL {
		if r <= ' ' || r == 127 {
			return fmt.Errorf("base URL contains whitespace or a control character")
		}
	}
	for _, char := range []string{`"`, "'", "<", ">", `\`, "`"} {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("base URL contains forbidden character: %s", char)
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("base URL cannot carry a query or fragment")
	}

	if parsed.Scheme == "" && parsed.Host == "" {
		if !strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, "//") {
			return fmt.Errorf("base URL %q must be an absolute path or an http(s) URL", rawURL)
		}
		return nil
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid base URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must have a valid hostname")
	}
	if parsed.User != nil {
		return fmt.Errorf("base URL cannot carry credentials")
	}
	return nil
}
