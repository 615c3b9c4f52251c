package docmodel

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	tagMacro            = "ac:macro"
	tagStructuredMacro  = "ac:structured-macro"
	tagParameter        = "ac:parameter"
	tagDefaultParameter = "ac:default-parameter"
	tagPageRef          = "ri:page"
	attrMacroName       = "ac:name"
	attrContentTitle    = "ri:content-title"
	defaultParamKey     = "default-parameter"
)

type openMacro struct {
	macro Macro
	// param is the parameter currently collecting text, nil outside one.
	param *openParam
}

type openParam struct {
	name    string
	unnamed bool
	value   strings.Builder
}

// ExtractStructuredFacts walks storage-format markup and applies every
// ac:macro / ac:structured-macro element. Nested macros are handled with a
// stack; parameters belong to the innermost open macro.
func ExtractStructuredFacts(title, content string) (Facts, []error) {
	b := newFactBuilder(title)
	z := html.NewTokenizer(strings.NewReader(content))
	z.AllowCDATA(true)

	var stack []*openMacro
	top := func() *openMacro {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return b.facts, append(b.problems, z.Err())
			}
			// Unclosed macros still count.
			for i := len(stack) - 1; i >= 0; i-- {
				b.apply(closeMacro(stack[i]))
			}
			return b.facts, b.problems

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case tagMacro, tagStructuredMacro:
				m := &openMacro{macro: Macro{Name: attr(tok, attrMacroName)}}
				if tt == html.SelfClosingTagToken {
					b.apply(m.macro)
					continue
				}
				stack = append(stack, m)
			case tagParameter, tagDefaultParameter:
				cur := top()
				if cur == nil || tt == html.SelfClosingTagToken {
					continue
				}
				p := &openParam{name: defaultParamKey}
				if tok.Data == tagParameter {
					p.name = attr(tok, attrMacroName)
					p.unnamed = p.name == ""
				}
				cur.param = p
			case tagPageRef:
				cur := top()
				if cur == nil {
					continue
				}
				if t := attr(tok, attrContentTitle); t != "" {
					if cur.param != nil {
						cur.param.value.WriteString(t)
					} else {
						setNamed(&cur.macro, tagPageRef, t)
					}
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case tagMacro, tagStructuredMacro:
				if len(stack) == 0 {
					continue
				}
				m := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				b.apply(closeMacro(m))
			case tagParameter, tagDefaultParameter:
				if cur := top(); cur != nil {
					flushParam(cur)
				}
			}

		case html.TextToken:
			if cur := top(); cur != nil && cur.param != nil {
				cur.param.value.Write(z.Text())
			}
		}
	}
}

func closeMacro(m *openMacro) Macro {
	flushParam(m)
	return m.macro
}

func flushParam(m *openMacro) {
	p := m.param
	if p == nil {
		return
	}
	m.param = nil
	v := strings.TrimSpace(p.value.String())
	if p.unnamed || p.name == defaultParamKey {
		m.macro.Bare = append(m.macro.Bare, v)
		return
	}
	setNamed(&m.macro, strings.ToLower(p.name), v)
}

func setNamed(m *Macro, key, value string) {
	if m.Named == nil {
		m.Named = make(map[string]string)
	}
	m.Named[key] = value
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
