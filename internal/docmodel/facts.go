package docmodel

import (
	"strconv"
	"strings"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

// Facts are the macro-derived properties of a page that affect how other
// documents render. Each collection is nil when nothing was extracted and
// non-empty otherwise.
type Facts struct {
	ChildrenOf map[string]int   `json:"children_of,omitempty"`
	Includes   sets.Set[string] `json:"includes,omitempty"`
	HasBlog    bool             `json:"has_blog,omitempty"`
	CodeTypes  sets.Set[string] `json:"code_types,omitempty"`
}

// ListsChildrenOf reports whether the page lists the children of title down
// to at least depth levels.
func (f Facts) ListsChildrenOf(title string, depth int) bool {
	d, ok := f.ChildrenOf[title]
	return ok && depth <= d
}

// IncludesTitle reports whether the page transcludes title.
func (f Facts) IncludesTitle(title string) bool {
	return f.Includes.Has(title)
}

// Macro is a dialect-neutral view of one macro occurrence.
type Macro struct {
	Name  string
	Named map[string]string
	// Bare holds parameters without a name: positional tokens in the legacy
	// dialect, unnamed and default parameters in the structured one.
	Bare []string
}

// Macro names with structural meaning.
const (
	MacroChildren         = "children"
	MacroInclude          = "include"
	MacroBlogPosts        = "blog-posts"
	MacroCode             = "code"
	MacroSnippet          = "snippet"
	MacroUnmigrated       = "unmigrated-wiki-markup"
	MacroUnmigratedInline = "unmigrated-inline-wiki-markup"
)

// DefaultCodeType is used when a code block names no recognizable language.
const DefaultCodeType = "java"

// PlainCodeType is the plain-text fallback added alongside the default.
const PlainCodeType = "plain"

// BashCodeType is added for code blocks that name no language.
const BashCodeType = "bash"

// unmigratedCodeTypes are switched on when a page carries content the backend
// could not convert; its languages are unknown.
var unmigratedCodeTypes = []string{"java", "xml", "plain"}

var explicitLanguageKeys = []string{"language", "lang", "type"}

var includeKeys = []string{"ri:page", "title", "page"}

// factBuilder applies macros to a Facts value for one page.
type factBuilder struct {
	title      string
	facts      Facts
	unmigrated bool
	problems   []error
}

func newFactBuilder(title string) *factBuilder {
	return &factBuilder{title: title}
}

func (b *factBuilder) apply(m Macro) {
	switch strings.ToLower(m.Name) {
	case MacroChildren:
		b.children(m)
	case MacroInclude:
		b.include(m)
	case MacroBlogPosts:
		b.facts.HasBlog = true
	case MacroCode, MacroSnippet:
		b.code(m)
	case MacroUnmigrated, MacroUnmigratedInline:
		if b.unmigrated {
			return
		}
		b.unmigrated = true
		b.addCodeTypes(unmigratedCodeTypes...)
		b.problems = append(b.problems, errors.ContentError("page has unmigrated wiki content").
			WithContext("title", b.title).Build())
	}
}

func (b *factBuilder) children(m Macro) {
	target := strings.TrimSpace(m.Named["page"])
	if target == "" {
		target = b.title
	}
	depth := 1
	if raw := strings.TrimSpace(m.Named["depth"]); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			b.problems = append(b.problems, errors.ContentError("children macro has malformed depth").
				WithContext("title", b.title).WithContext("depth", raw).Build())
			return
		}
		depth = d
	}
	if b.facts.ChildrenOf == nil {
		b.facts.ChildrenOf = make(map[string]int)
	}
	b.facts.ChildrenOf[target] = depth
}

func (b *factBuilder) include(m Macro) {
	target := ""
	for _, v := range m.Bare {
		if v = strings.TrimSpace(v); v != "" {
			target = v
			break
		}
	}
	for _, k := range includeKeys {
		if target != "" {
			break
		}
		target = strings.TrimSpace(m.Named[k])
	}
	if target == "" {
		b.problems = append(b.problems, errors.ContentError("include macro names no page").
			WithContext("title", b.title).Build())
		return
	}
	if b.facts.Includes == nil {
		b.facts.Includes = sets.New[string]()
	}
	b.facts.Includes.Add(target)
}

// code picks the language tags of one block. An explicit language parameter
// or a recognized bare token stands alone. An unrecognized bare token is kept
// next to the default. A block naming no language at all gets the default
// plus the bash fallback.
func (b *factBuilder) code(m Macro) {
	for _, k := range explicitLanguageKeys {
		if v := strings.TrimSpace(m.Named[k]); v != "" {
			b.addCodeTypes(v)
			return
		}
	}
	first := ""
	for _, v := range m.Bare {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if IsKnownCodeType(v) {
			b.addCodeTypes(v)
			return
		}
		if first == "" {
			first = v
		}
	}
	if first != "" {
		b.addCodeTypes(DefaultCodeType, first)
		return
	}
	b.addCodeTypes(DefaultCodeType, BashCodeType)
}

func (b *factBuilder) addCodeTypes(tags ...string) {
	if b.facts.CodeTypes == nil {
		b.facts.CodeTypes = sets.New[string]()
	}
	for _, t := range tags {
		b.facts.CodeTypes.Add(t)
	}
}
