package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// topLevelKey marks keys that live outside any section.
const topLevelKey = ""

// knownKeys lists valid keys per section.
var knownKeys = map[string][]string{
	topLevelKey:   {"test_folder"},
	"source":      {"root_folder", "exclude_patterns"},
	"destination": {"root_folder", "use_shared_drive", "shared_drive_name"},
	"options": {
		"preserve_timestamps", "migrate_permissions", "chunk_size", "parallel_uploads",
		"max_retries", "retry_delay_seconds", "continue_on_error", "inter_file_pause",
		"bandwidth_limit", "test_limit", "verify_uploads",
	},
	"logging": {"log_level", "log_file", "log_format"},
	"network": {"connect_timeout", "data_timeout", "user_agent"},
	"state":   {"data_dir"},
}

// knownSections is the sorted list of section names for suggestions.
var knownSections = func() []string {
	var names []string

	for k := range knownKeys {
		if k != topLevelKey {
			names = append(names, k)
		}
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	section := key[0]

	fields, ok := knownKeys[section]
	if len(key) == 1 || !ok {
		// A bare top-level key, or anything under an unknown [section].
		candidates := append(append([]string(nil), knownKeys[topLevelKey]...), knownSections...)

		return withSuggestion(fmt.Sprintf("unknown config key %q", section), section, candidates)
	}

	field := key[1]

	sorted := slices.Sorted(slices.Values(fields))

	return withSuggestion(fmt.Sprintf("unknown key %q in [%s]", field, section), field, sorted)
}

func withSuggestion(msg, unknown string, known []string) error {
	if s := closestMatch(unknown, known); s != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(unknown), k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using a
// single-row table.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
