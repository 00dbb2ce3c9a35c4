package errors

import (
	"strings"
	"unicode"
)

// ValidateModuleName validates a module name given on the command line.
// It rejects names that could be used for path traversal when the name is
// later turned into a file name inside the install directory.
func ValidateModuleName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeInvalidInput, "module name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "module name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "module name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\", "\x00"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidInput, "module name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateURL validates a registry or download URL.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
