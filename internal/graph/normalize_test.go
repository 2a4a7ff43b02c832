package graph

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeChildren_Pipeline(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "Quarterly%20Reports", IsFolder: true},
		{ID: "2", Name: "Notebook", IsFolder: true, IsPackage: true},
		{ID: "3", Name: "Cafe\u0301", IsFolder: true},
		{ID: "1", Name: "Quarterly Reports", IsFolder: true},
	}

	got := normalizeChildren(items, slog.Default())

	assert.Len(t, got, 2)
	assert.Equal(t, "Quarterly Reports", got[0].Name)
	assert.Equal(t, "Caf\u00e9", got[1].Name)
}

func TestNormalizeChildren_BadEscapeKeepsName(t *testing.T) {
	got := normalizeChildren([]Item{{ID: "x", Name: "100%", IsFolder: true}}, slog.Default())

	assert.Equal(t, "100%", got[0].Name)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "r\u00e9sum\u00e9.pdf", NormalizeName("re\u0301sume\u0301.pdf"))
	assert.Equal(t, "plain.txt", NormalizeName("plain.txt"))
}
