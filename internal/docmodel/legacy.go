package docmodel

import "strings"

// legacyBodyMacros enclose literal content between an opening and a closing
// tag of the same name; macros inside them are not interpreted.
var legacyBodyMacros = map[string]bool{"code": true, "noformat": true}

// ExtractLegacyFacts scans wiki markup for inline macros of the form
// {name} or {name:param|key=value}.
func ExtractLegacyFacts(title, content string) (Facts, []error) {
	b := newFactBuilder(title)
	for _, m := range scanLegacyMacros(content) {
		b.apply(m)
	}
	return b.facts, b.problems
}

func scanLegacyMacros(content string) []Macro {
	var out []Macro
	openBody := ""
	for i := 0; i < len(content); {
		start := strings.IndexByte(content[i:], '{')
		if start < 0 {
			break
		}
		start += i
		end := strings.IndexByte(content[start:], '}')
		if end < 0 {
			break
		}
		end += start
		inner := content[start+1 : end]
		i = end + 1

		name, params, _ := strings.Cut(inner, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || strings.ContainsAny(name, " \t\n{") {
			// Not a macro; resume just after the brace so nested braces are seen.
			i = start + 1
			continue
		}
		if openBody != "" {
			if name == openBody && params == "" {
				openBody = ""
			}
			continue
		}
		if legacyBodyMacros[name] {
			openBody = name
		}
		out = append(out, parseLegacyParams(name, params))
	}
	return out
}

func parseLegacyParams(name, params string) Macro {
	m := Macro{Name: name}
	if params == "" {
		return m
	}
	for _, part := range strings.Split(params, "|") {
		if k, v, ok := strings.Cut(part, "="); ok {
			if m.Named == nil {
				m.Named = make(map[string]string)
			}
			m.Named[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
			continue
		}
		m.Bare = append(m.Bare, strings.TrimSpace(part))
	}
	return m
}
