package watch

import "strings"

// defaultExtensions is the allow-list applied when no glob pattern was
// configured: TypeScript, JavaScript, Python, Go, Rust, Java, Ruby, PHP,
// C/C++/header, C#.
var defaultExtensions = map[string]bool{
	".ts": true, ".tsx": true,
	".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".py":  true,
	".go":  true,
	".rs":  true,
	".java": true,
	".rb":  true,
	".php": true,
	".c": true, ".h": true, ".cpp": true, ".cc": true, ".cxx": true, ".hpp": true, ".hh": true,
	".cs": true,
}

// ignoredSegments are path components that disqualify a path regardless of
// pattern match.
var ignoredSegments = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
}

// NormalizePatterns accepts a single pattern or a list of patterns — the
// JSON/YAML config field is string|[]string before this layer sees it —
// and returns a flat, trimmed, non-empty list.
func NormalizePatterns(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return trimNonEmpty([]string{val})
	case []string:
		return trimNonEmpty(val)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return trimNonEmpty(out)
	default:
		return nil
	}
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isGlob reports whether pattern contains a glob metacharacter.
func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// hasIgnoredSegment reports whether any path segment of path is in the
// default ignore list.
func hasIgnoredSegment(path string) bool {
	for _, seg := range strings.Split(filepathToSlash(path), "/") {
		if ignoredSegments[seg] {
			return true
		}
	}
	return false
}

func hasAllowedExtension(path string) bool {
	ext := extOf(path)
	return defaultExtensions[ext]
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	slashIdx := strings.LastIndexAny(path, "/\\")
	if idx <= slashIdx {
		return ""
	}
	return strings.ToLower(path[idx:])
}

func filepathToSlash(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
