package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize converts a human-readable size ("50MiB", "10MB", "1048576") to
// bytes. Empty string and "0" return 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return int64(n), nil //nolint:gosec // sizes in config never approach 2^63
}

// ParseRate parses a bandwidth limit such as "5MB/s" or "512KiB" into
// bytes per second. "0" or empty means unlimited.
func ParseRate(s string) (int64, error) {
	return ParseSize(strings.TrimSuffix(strings.TrimSpace(s), "/s"))
}
