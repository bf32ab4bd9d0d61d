package cards

import (
	"regexp"
	"strings"
)

var indentedNewline = regexp.MustCompile(`\n\s+`)

var bracketReplacer = strings.NewReplacer(
	"[", "【",
	"]", "】",
	"(", "（",
	")", "）",
)

// EscapeMarkdown prepares user text for embedding in a lark_md link
// label: indentation after newlines is collapsed and ASCII brackets are
// mapped to their fullwidth forms so they cannot break the link syntax.
func EscapeMarkdown(s string) string {
	s = indentedNewline.ReplaceAllString(s, "\n")

	if !strings.ContainsAny(s, "[]()") {
		return s
	}

	return bracketReplacer.Replace(s)
}
