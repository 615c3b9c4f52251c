package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

func TestRelPath(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     string
	}{
		{"sibling date directories", "/out/2024/01/", "/out/2024/02/", "../02/"},
		{"same directory", "/out/2024/01", "/out/2024/01/", ""},
		{"up to root", "/out/cxf/2024/01/05", "/out/cxf", "../../../"},
		{"root to child", "/out", "/out/camel", "camel/"},
		{"across corpora", "/out/cxf", "/out/camel", "../camel/"},
		{"shared name prefix is not a common segment", "/out/cx", "/out/cxf", "../cxf/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RelPath("/out", tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelPathRequiresCommonRoot(t *testing.T) {
	_, err := RelPath("/out", "/out/cxf", "/elsewhere/camel")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPath))

	_, err = RelPath("/out", "cxf", "/out/camel")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryPath))
}
