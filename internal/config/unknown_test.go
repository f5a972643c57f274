package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKeySuggestion(t *testing.T) {
	_, err := Load(writeConfig(t, "[options]\nparalel_uploads = 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "paralel_uploads" in [options]`)
	assert.Contains(t, err.Error(), `did you mean "parallel_uploads"?`)
}

func TestLoad_UnknownTopLevelKey(t *testing.T) {
	_, err := Load(writeConfig(t, "tset_folder = \"/x\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "test_folder"?`)
}

func TestLoad_UnknownSectionReportedOnce(t *testing.T) {
	_, err := Load(writeConfig(t, "[sourc]\nroot_folder = \"/a\"\nexclude_patterns = []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "sourc", did you mean "source"?`)
	assert.Equal(t, 1, countLines(err.Error()))
}

func TestLoad_UnknownKeyNoSuggestion(t *testing.T) {
	_, err := Load(writeConfig(t, "[logging]\ncompletely_unrelated = 1\n"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"chunk_size", "chunk_size", 0},
		{"chunksize", "chunk_size", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func countLines(s string) int {
	n := 1

	for _, r := range s {
		if r == '\n' {
			n++
		}
	}

	return n
}
