package unitindexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolvePaths expands patterns to concrete files and directories.
// Supports both single-level wildcards (*) and recursive wildcards (**).
//
// Examples:
//   - "/etc/systemd/system" → ["/etc/systemd/system"]
//   - "./units/*.service" → ["/abs/units/a.service", ...]
//   - "./**/*.target" → all target files recursively
//
// Results are absolute and deduplicated, in pattern order.
func ResolvePaths(patterns []string) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		paths, err := resolvePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, err)
		}

		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				resolved = append(resolved, p)
			}
		}
	}

	return resolved, nil
}

// resolvePattern expands a single pattern.
func resolvePattern(pattern string) ([]string, error) {
	if !containsGlob(pattern) {
		absPath, err := filepath.Abs(pattern)
		if err != nil {
			return nil, err
		}

		if _, err := os.Stat(absPath); err != nil {
			return nil, err
		}

		return []string{absPath}, nil
	}

	absPattern, err := makeAbsolutePattern(pattern)
	if err != nil {
		return nil, err
	}

	// Use doublestar for ** support
	matches, err := doublestar.FilepathGlob(absPattern)
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no paths match pattern: %s", pattern)
	}

	return matches, nil
}

// containsGlob checks if a pattern contains glob characters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// makeAbsolutePattern converts a relative pattern to absolute.
// Preserves glob characters in the pattern.
func makeAbsolutePattern(pattern string) (string, error) {
	globIdx := strings.IndexAny(pattern, "*?[{")
	if globIdx == -1 {
		return filepath.Abs(pattern)
	}

	// Directory part before the glob
	prefix := pattern[:globIdx]
	lastSep := strings.LastIndexAny(prefix, "/"+string(filepath.Separator))
	dirPart := pattern[:lastSep+1]
	if dirPart == "" {
		dirPart = "."
	}
	globPart := pattern[lastSep+1:]

	absDir, err := filepath.Abs(dirPart)
	if err != nil {
		return "", err
	}

	return filepath.Join(absDir, filepath.FromSlash(globPart)), nil
}
