// Package version implements the lenient version comparison used for plugin
// update hints.
package version

import (
	"strconv"
	"strings"
)

// Version is a dotted numeric version. Segments that do not parse as numbers
// are skipped, so "1.2.x" compares as 1.2.
type Version struct {
	Parts []int
}

// Parse parses a version string like "1.2.3" or "v0.4".
// Returns ok=false when no numeric segment is found.
func Parse(s string) (Version, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "V")

	var parts []int
	for _, seg := range strings.Split(s, ".") {
		n, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil {
			continue
		}
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return Version{}, false
	}
	return Version{Parts: parts}, true
}

// String returns the dotted form of the parsed parts.
func (v Version) String() string {
	segs := make([]string, len(v.Parts))
	for i, p := range v.Parts {
		segs[i] = strconv.Itoa(p)
	}
	return strings.Join(segs, ".")
}

// NewerThan reports whether v is strictly newer than other.
// Missing positions compare as zero, so 1.2 equals 1.2.0.
func (v Version) NewerThan(other Version) bool {
	n := len(v.Parts)
	if len(other.Parts) > n {
		n = len(other.Parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.Parts) {
			a = v.Parts[i]
		}
		if i < len(other.Parts) {
			b = other.Parts[i]
		}
		if a != b {
			return a > b
		}
	}
	return false
}

// UpdateAvailable reports whether latest is strictly newer than current.
// Unparseable input never reports an update.
func UpdateAvailable(current, latest string) bool {
	c, ok := Parse(current)
	if !ok {
		return false
	}
	l, ok := Parse(latest)
	if !ok {
		return false
	}
	return l.NewerThan(c)
}
