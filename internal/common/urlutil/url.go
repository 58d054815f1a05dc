// Package urlutil validates the URLs used by remote data sources.
package urlutil

import (
	"fmt"
	"net/url"

	"github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// ValidateURL checks that rawURL is an absolute http or https URL with a host.
func ValidateURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidURL, err.Error())
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("%w: missing scheme (http:// or https://)", errors.ErrInvalidURL)
	}

	// Only allow HTTP and HTTPS
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme '%s'", errors.ErrInvalidURL, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%w: missing host", errors.ErrInvalidURL)
	}

	return nil
}
