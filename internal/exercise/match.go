package exercise

import (
	"regexp"
	"strings"
)

var numericPrefix = regexp.MustCompile(`^(\d+)[_-]?`)

// splitPrefix separates a leading numeric prefix ("05_") from the rest.
func splitPrefix(s string) (prefix, rest string) {
	m := numericPrefix.FindStringSubmatch(s)
	if m == nil {
		return "", s
	}
	return m[1], s[len(m[0]):]
}

// normalize strips the numeric prefix, drops separators and folds case.
func normalize(s string) string {
	_, rest := splitPrefix(s)
	rest = strings.NewReplacer("_", "", "-", "", " ", "").Replace(rest)
	return strings.ToLower(rest)
}

// singular reduces common English plural endings.
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"), strings.HasSuffix(s, "xes"), strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}

// matches reports whether a normalized file stem answers a normalized topic.
func matches(stem, topic string) bool {
	if stem == "" || topic == "" {
		return false
	}
	if stem == topic || strings.Contains(stem, topic) || strings.Contains(topic, stem) {
		return true
	}
	return singular(stem) == singular(topic)
}
