package domain

import (
	"regexp"
	"strings"
)

var routeParamPattern = regexp.MustCompile(`\{([^{}/]+)\}`)

// RouteParams extracts the {param} placeholders of a route template in
// declaration order.
func RouteParams(template string) []string {
	matches := routeParamPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	params := make([]string, 0, len(matches))
	for _, match := range matches {
		params = append(params, match[1])
	}
	return params
}

// ValidRouteTemplate reports whether a route template is syntactically
// usable: non-empty, rooted, and with balanced placeholder braces.
func ValidRouteTemplate(template string) bool {
	if !strings.HasPrefix(template, "/") {
		return false
	}
	stripped := routeParamPattern.ReplaceAllString(template, "")
	return !strings.ContainsAny(stripped, "{}")
}
