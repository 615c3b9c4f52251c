package rewrite

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

// RelPath returns the relative directory path that leads from directory from
// to directory to, both of which must be absolute and lie under root. The
// result ends in "/" unless it is empty, which means the two are the same
// directory.
func RelPath(root, from, to string) (string, error) {
	fromSegs, err := segmentsUnder(root, from)
	if err != nil {
		return "", err
	}
	toSegs, err := segmentsUnder(root, to)
	if err != nil {
		return "", err
	}

	common := 0
	for common < len(fromSegs) && common < len(toSegs) && fromSegs[common] == toSegs[common] {
		common++
	}

	var b strings.Builder
	for range fromSegs[common:] {
		b.WriteString("../")
	}
	for _, s := range toSegs[common:] {
		b.WriteString(s)
		b.WriteByte('/')
	}
	return b.String(), nil
}

// segmentsUnder splits dir into its path segments below root.
func segmentsUnder(root, dir string) ([]string, error) {
	if !filepath.IsAbs(root) || !filepath.IsAbs(dir) {
		return nil, errors.PathError("relative path needs absolute locations").
			WithContext("root", root).WithContext("dir", dir).Build()
	}
	root = filepath.ToSlash(filepath.Clean(root))
	dir = filepath.ToSlash(filepath.Clean(dir))
	if dir == root {
		return nil, nil
	}
	prefix := strings.TrimSuffix(root, "/") + "/"
	if !strings.HasPrefix(dir, prefix) {
		return nil, errors.PathError("locations do not share a common root").
			WithContext("root", root).WithContext("dir", dir).Build()
	}
	return strings.Split(strings.TrimPrefix(dir, prefix), "/"), nil
}
