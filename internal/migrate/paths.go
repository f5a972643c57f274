package migrate

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath converts a source path into the key form used by the
// folder map and checkpoints: NFC, "/"-delimited, no leading or trailing
// slash, "." and empty segments removed. The root is "".
func NormalizePath(p string) string {
	p = norm.NFC.String(p)

	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return ""
	}

	return strings.TrimPrefix(cleaned, "/")
}

// splitPath returns the normalized parent directory and base name of p.
func splitPath(p string) (dir, name string) {
	n := NormalizePath(p)

	i := strings.LastIndex(n, "/")
	if i < 0 {
		return "", n
	}

	return n[:i], n[i+1:]
}
