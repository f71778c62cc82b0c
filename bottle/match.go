package bottle

import (
	"fmt"
	"path"
	"strings"

	"github.com/arloliu/go-oxitop/internal/util"
)

// ErrBadPattern indicates a malformed wildcard pattern.
var ErrBadPattern = path.ErrBadPattern

// Match returns the serials matched by any of the glob patterns, in the
// order of serials and each at most once.
//
// Patterns support "*" (any run), "?" (one character) and "[...]" classes,
// with "[!...]" negating a class. Matching is case-sensitive.
func Match(patterns []string, serials []string) ([]string, error) {
	translated, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(serials))
	for _, serial := range util.Dedup(serials) {
		if matchAny(translated, serial) {
			matched = append(matched, serial)
		}
	}

	return matched, nil
}

// MatchBottles filters bottles by serial pattern, keeping list order.
func MatchBottles(patterns []string, bottles []*Bottle) ([]*Bottle, error) {
	translated, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(bottles))
	matched := make([]*Bottle, 0, len(bottles))
	for _, b := range bottles {
		if _, dup := seen[b.Serial]; dup {
			continue
		}
		if matchAny(translated, b.Serial) {
			seen[b.Serial] = struct{}{}
			matched = append(matched, b)
		}
	}

	return matched, nil
}

func compilePatterns(patterns []string) ([]string, error) {
	translated := make([]string, len(patterns))
	for i, p := range patterns {
		// fnmatch negates classes with "!", path.Match with "^"
		t := strings.ReplaceAll(p, "[!", "[^")
		if _, err := path.Match(t, ""); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
		translated[i] = t
	}

	return translated, nil
}

func matchAny(patterns []string, serial string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, serial); ok {
			return true
		}
	}

	return false
}
