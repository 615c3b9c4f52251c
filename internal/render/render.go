// Package render merges rewritten document bodies into the page template.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
)

//go:embed templates/page.html.tmpl
var defaultTemplate embed.FS

// Data is everything a page template can reference.
type Data struct {
	Page        *docmodel.Document
	Space       docmodel.Space
	Body        template.HTML
	Breadcrumbs template.HTML
	// Scripts lists the highlighter brush scripts the page loads.
	Scripts []string
	Notice  template.HTML
	// Children are the page's direct children, ordered by title.
	Children    []*docmodel.Document
	IsBlogEntry bool
	// RelRoot leads from the document's directory back to the corpus root.
	RelRoot string
}

// Renderer executes one parsed template. It is safe for concurrent use.
type Renderer struct {
	tmpl   *template.Template
	notice template.HTML
}

// New parses the template at path from fsys, or the built-in template when
// path is empty, and renders notice once. Failures are configuration errors.
func New(fsys afero.Fs, path, notice string) (*Renderer, error) {
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = defaultTemplate.ReadFile("templates/page.html.tmpl")
	} else {
		src, err = afero.ReadFile(fsys, path)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read page template").
			Fatal().WithContext("path", path).Build()
	}
	tmpl, err := template.New("page").Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse page template").
			Fatal().WithContext("path", path).Build()
	}
	rendered, err := RenderNotice(notice)
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl, notice: rendered}, nil
}

// Render writes the merged page to w.
func (r *Renderer) Render(w io.Writer, d Data) error {
	if d.Notice == "" {
		d.Notice = r.notice
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, d); err != nil {
		return errors.WrapError(err, errors.CategoryRender, "failed to execute page template").
			WithContext("title", d.Page.Title).Build()
	}
	n, err := buf.WriteTo(w)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write page").
			WithContext("title", d.Page.Title).Build()
	}
	slog.Debug("Rendered page", logfields.Title(d.Page.Title), slog.Int64("bytes", n))
	return nil
}
