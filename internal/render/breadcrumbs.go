package render

import (
	"fmt"
	"html"
	"html/template"
	"strings"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
)

// Separator joins breadcrumb elements.
const Separator = "&nbsp;&gt;&nbsp;"

// PageBreadcrumbs links the space index (when root is non-empty), each
// ancestor from the top down, then the page itself. ancestors is ordered
// nearest first, as the corpus store returns it.
func PageBreadcrumbs(page *docmodel.Document, ancestors []*docmodel.Document, root string) template.HTML {
	var parts []string
	if root != "" {
		parts = append(parts, link("index.html", root))
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, link(ancestors[i].Filename(), ancestors[i].Title))
	}
	parts = append(parts, link(page.Filename(), page.Title))
	return join(parts)
}

// BlogBreadcrumbs links the space index, shows the publication date, then
// links the entry itself.
func BlogBreadcrumbs(entry *docmodel.Document, root string) template.HTML {
	if root == "" {
		root = "Index"
	}
	p := entry.Published
	return join([]string{
		link("../../../index.html", root),
		fmt.Sprintf("%04d", p.Year()),
		fmt.Sprintf("%02d", int(p.Month())),
		fmt.Sprintf("%02d", p.Day()),
		link(entry.Filename(), entry.Title),
	})
}

func link(href, text string) string {
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(text) + `</a>`
}

func join(parts []string) template.HTML {
	// #nosec G203 -- every part is escaped by link or is a formatted number.
	return template.HTML(strings.Join(parts, Separator))
}
