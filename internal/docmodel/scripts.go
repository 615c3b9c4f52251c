package docmodel

import (
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

// brushScripts maps a lower-cased code tag to the highlighter script that
// renders it.
var brushScripts = map[string]string{
	"applescript":   "shBrushAppleScript.js",
	"actionscript3": "shBrushAS3.js",
	"as3":           "shBrushAS3.js",
	"bash":          "shBrushBash.js",
	"shell":         "shBrushBash.js",
	"coldfusion":    "shBrushColdFusion.js",
	"cpp":           "shBrushCpp.js",
	"c":             "shBrushCpp.js",
	"c#":            "shBrushCSharp.js",
	"c-sharp":       "shBrushCSharp.js",
	"csharp":        "shBrushCSharp.js",
	"css":           "shBrushCss.js",
	"delphi":        "shBrushDelphi.js",
	"pascal":        "shBrushDelphi.js",
	"diff":          "shBrushDiff.js",
	"patch":         "shBrushDiff.js",
	"pas":           "shBrushDiff.js",
	"erl":           "shBrushErlang.js",
	"erlang":        "shBrushErlang.js",
	"groovy":        "shBrushGroovy.js",
	"java":          "shBrushJava.js",
	"jfx":           "shBrushJavaFX.js",
	"javafx":        "shBrushJavaFX.js",
	"js":            "shBrushJScript.js",
	"jscript":       "shBrushJScript.js",
	"javascript":    "shBrushJScript.js",
	"perl":          "shBrushPerl.js",
	"pl":            "shBrushPerl.js",
	"php":           "shBrushPhp.js",
	"text":          "shBrushPlain.js",
	"plain":         "shBrushPlain.js",
	"none":          "shBrushPlain.js",
	"py":            "shBrushPython.js",
	"python":        "shBrushPython.js",
	"powershell":    "shBrushPowerShell.js",
	"ps":            "shBrushPowerShell.js",
	"posh":          "shBrushPowerShell.js",
	"ruby":          "shBrushRuby.js",
	"rails":         "shBrushRuby.js",
	"ror":           "shBrushRuby.js",
	"rb":            "shBrushRuby.js",
	"sass":          "shBrushSass.js",
	"scss":          "shBrushSass.js",
	"scala":         "shBrushScala.js",
	"sql":           "shBrushSql.js",
	"vb":            "shBrushVb.js",
	"vbnet":         "shBrushVb.js",
	"xml":           "shBrushXml.js",
	"xhtml":         "shBrushXml.js",
	"xslt":          "shBrushXml.js",
	"html":          "shBrushXml.js",
	"html/xml":      "shBrushXml.js",
}

// IsKnownCodeType reports whether tag names a highlighter brush.
func IsKnownCodeType(tag string) bool {
	_, ok := brushScripts[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// BrushScript returns the script for tag, or "" when tag is unknown.
func BrushScript(tag string) string {
	return brushScripts[strings.ToLower(strings.TrimSpace(tag))]
}

// CodeScripts returns the highlighter scripts the page's own code blocks
// need. When no tag maps to a script the java and plain brushes are used.
func CodeScripts(f Facts) sets.Set[string] {
	out := brushesFor(f.CodeTypes)
	if out.Len() == 0 {
		out.Add(BrushScript(DefaultCodeType))
		out.Add(BrushScript(PlainCodeType))
	}
	return out
}

func brushesFor(tags sets.Set[string]) sets.Set[string] {
	out := sets.New[string]()
	for _, tag := range sets.Sorted(tags) {
		script := BrushScript(tag)
		if script == "" {
			slog.Warn("Unknown code type", slog.String("code_type", tag))
			continue
		}
		out.Add(script)
	}
	return out
}

// TitleLookup resolves a page title within a corpus.
type TitleLookup func(title string) *Document

// ScriptsFor returns the scripts doc needs, merged with those of every page
// it includes, transitively. Each page is visited once. Included pages
// without code tags add nothing of their own.
func ScriptsFor(doc *Document, lookup TitleLookup) []string {
	if doc == nil {
		return nil
	}
	out := CodeScripts(doc.Facts)
	visited := sets.New(doc.ID)
	var walk func(d *Document)
	walk = func(d *Document) {
		for _, title := range sets.Sorted(d.Facts.Includes) {
			inc := lookup(title)
			if inc == nil {
				slog.Debug("Included page not in corpus", logfields.Title(title))
				continue
			}
			if !visited.Add(inc.ID) {
				continue
			}
			if inc.Facts.CodeTypes.Len() > 0 {
				out.Union(CodeScripts(inc.Facts))
			}
			walk(inc)
		}
	}
	walk(doc)
	return sets.Sorted(out)
}
