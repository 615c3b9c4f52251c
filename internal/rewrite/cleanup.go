package rewrite

import (
	"regexp"
	"strings"
)

var documentWrapper = regexp.MustCompile(`(?is)^\s*(?:<!doctype[^>]*>\s*)?<html[^>]*>.*?<body[^>]*>(.*)</body>\s*</html>\s*$`)

const emptyParagraph = "<p></p>"

// Cleanup unwraps a full HTML document to its body content and drops an
// empty paragraph directly following the first tag, which the backend emits
// at the top of some pages.
func Cleanup(content string) string {
	if m := documentWrapper.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	if i := strings.IndexByte(content, '>'); i >= 0 && strings.HasPrefix(content[i+1:], emptyParagraph) {
		content = content[:i+1] + content[i+1+len(emptyParagraph):]
	}
	return content
}
