package render

import (
	"regexp"
	"strings"
)

// NamePattern is the grammar of a variable name.
const NamePattern = `[A-Za-z_][A-Za-z0-9_]*`

var namePattern = regexp.MustCompile(`^` + NamePattern + `$`)

// placeholderPattern matches {name}. Braces around anything that is not an
// identifier (CSS rules, JSON) never match.
var placeholderPattern = regexp.MustCompile(`\{(` + NamePattern + `)\}`)

// legacyPattern matches the old {{name}} syntax, with optional inner spaces.
var legacyPattern = regexp.MustCompile(`\{\{\s*(` + NamePattern + `)\s*\}\}`)

// ValidName reports whether name can appear in a placeholder.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Render substitutes every {name} in content with vars[name].
// Placeholders without a value are left verbatim. Substituted values are
// never scanned again, so a value containing {other} stays literal.
func Render(content string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(content, "{") {
		return content
	}

	return placeholderPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns placeholder names in order of first appearance.
func Placeholders(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Missing returns placeholders in content that vars does not fill.
func Missing(content string, vars map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(content) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// MigrateDoubleBraces rewrites {{name}} placeholders to {name}.
func MigrateDoubleBraces(content string) string {
	return legacyPattern.ReplaceAllString(content, "{$1}")
}

// Compact returns a copy of vars without empty values. Forms submit empty
// strings for untouched inputs; those are treated as unset.
func Compact(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Dedupe collapses duplicate names keeping the first occurrence.
func Dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
