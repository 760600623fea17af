// Package template fills campaign message templates with per-recipient
// field values. Two tag dialects are supported: [field] replaces with the
// field value or empty string, {{field}} does the same with whitespace
// trimming, and {{field | fallback}} substitutes the fallback text when the
// field is missing or blank.
package template

import (
	"regexp"
	"strings"
)

// lineBreakMarker shields literal line breaks from the tag-substitution
// pass so rendered messages keep their original layout.
const lineBreakMarker = "###LINE_BREAK###"

// tagPattern matches, in precedence order, bracket tags, fallback-bearing
// brace tags, and plain brace tags.
var tagPattern = regexp.MustCompile(`\[([^\[\]]+)\]|\{\{([^{}|]+)\|([^{}]+)\}\}|\{\{([^{}|]+)\}\}`)

// Render substitutes every tag in template with values from fields. The
// whole template is scanned exactly once: a substituted value is never
// re-scanned for further tags, so recipient data cannot inject expansions.
func Render(template string, fields map[string]string) string {
	if template == "" {
		return ""
	}

	protected := strings.ReplaceAll(template, "\n", lineBreakMarker)

	rendered := tagPattern.ReplaceAllStringFunc(protected, func(tag string) string {
		groups := tagPattern.FindStringSubmatch(tag)
		switch {
		case groups[1] != "": // [field]
			return fields[groups[1]]
		case groups[2] != "": // {{field | fallback}}
			key := strings.TrimSpace(groups[2])
			if value := fields[key]; strings.TrimSpace(value) != "" {
				return value
			}
			return strings.TrimSpace(groups[3])
		default: // {{field}}
			return fields[strings.TrimSpace(groups[4])]
		}
	})

	return strings.ReplaceAll(rendered, lineBreakMarker, "\n")
}
