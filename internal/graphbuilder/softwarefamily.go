package graphbuilder

import "strings"

// softwareAliases collapses common package-name variants onto one family
// (python3 -> python, nodejs -> node).
var softwareAliases = map[string]string{
	"python3":    "python",
	"python2":    "python",
	"nodejs":     "node",
	"openjdk-17": "openjdk",
	"openjdk-11": "openjdk",
	"openjdk-8":  "openjdk",
}

// normalizeSoftwareFamily lowercases a package name, strips a trailing
// version suffix of digits/dots/dashes, and applies the known alias
// table, so "nginx-1.18", "nginx_1.24", and "nginx" all collapse onto
// the same SoftwareFamily node.
func normalizeSoftwareFamily(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return lower
	}
	stripped := strings.TrimRight(lower, "0123456789.-_")
	if alias, ok := softwareAliases[lower]; ok {
		return alias
	}
	if alias, ok := softwareAliases[stripped]; ok {
		return alias
	}
	if stripped == "" {
		return lower
	}
	return stripped
}
