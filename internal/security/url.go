// Package security provides shared security validation functions.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidatePackageURL checks a dependency URL before it is written into a
// preview document as a script or stylesheet source.
// It accepts http and https URLs, protocol-relative URLs and plain paths.
// Any other scheme (javascript:, data:, file:, ...) is rejected.
func ValidatePackageURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return fmt.Errorf("URL is empty")
	}
	if trimmed != rawURL {
		return fmt.Errorf("URL has surrounding whitespace")
	}
	if strings.ContainsAny(rawURL, "\x00\r\n\t") {
		return fmt.Errorf("URL contains control characters")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "":
		// Relative path or protocol-relative ("//cdn.example/x.js")
		if strings.HasPrefix(rawURL, "//") && parsed.Host == "" {
			return fmt.Errorf("URL must have a host")
		}
		return nil
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("URL must have a host")
		}
		return nil
	default:
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
}

// FilterPackageURLs returns the URLs of list that pass ValidatePackageURL, in
// order, and the rejected ones with their errors.
func FilterPackageURLs(list []string) (valid []string, rejected map[string]error) {
	valid = make([]string, 0, len(list))
	for _, u := range list {
		if err := ValidatePackageURL(u); err != nil {
			if rejected == nil {
				rejected = make(map[string]error)
			}
			rejected[u] = err
			continue
		}
		valid = append(valid, u)
	}
	return valid, rejected
}
