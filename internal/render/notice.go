package render

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

var noticePolicy = bluemonday.UGCPolicy()

// RenderNotice converts the markdown site notice to sanitized HTML.
func RenderNotice(markdown string) (template.HTML, error) {
	if markdown == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(markdown), &buf); err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "failed to render notice").Fatal().Build()
	}
	// #nosec G203 -- sanitized by the UGC policy above.
	return template.HTML(noticePolicy.SanitizeBytes(buf.Bytes())), nil
}
