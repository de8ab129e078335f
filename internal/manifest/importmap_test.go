package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := Parse([]byte(`{"name":"app","dependencies":{"react":"^18.2.0","local":"file:../local","any":"*"}}`))
	require.NoError(t, err)
	return m
}

func TestBuildImportMap(t *testing.T) {
	im := BuildImportMap(testManifest(t), "https://esm.sh/")

	assert.Equal(t, "https://esm.sh/react@^18.2.0", im.Imports["react"])
	assert.Equal(t, "https://esm.sh/react@^18.2.0/", im.Imports["react/"])
	assert.Equal(t, "https://esm.sh/local", im.Imports["local"])
	assert.Equal(t, "https://esm.sh/any", im.Imports["any"])
	assert.Len(t, im.Imports, 6)
}

func TestInjectImportMap(t *testing.T) {
	im := &ImportMap{Imports: map[string]string{"react": "https://esm.sh/react@18"}}
	script := `<script type="importmap">{"imports":{"react":"https://esm.sh/react@18"}}</script>`

	tests := []struct {
		name     string
		doc      string
		want     string
		injected bool
	}{
		{
			name:     "after head",
			doc:      `<!doctype html><html><head><title>x</title></head><body></body></html>`,
			want:     `<!doctype html><html><head>` + script + `<title>x</title></head><body></body></html>`,
			injected: true,
		},
		{
			name:     "head with attributes",
			doc:      `<html><HEAD lang="en"><meta charset="utf-8"></HEAD></html>`,
			want:     `<html><HEAD lang="en">` + script + `<meta charset="utf-8"></HEAD></html>`,
			injected: true,
		},
		{
			name:     "no head",
			doc:      `<html><body>hi</body></html>`,
			want:     `<html>` + script + `<body>hi</body></html>`,
			injected: true,
		},
		{
			name:     "fragment",
			doc:      `<div id="root"></div>`,
			want:     script + `<div id="root"></div>`,
			injected: true,
		},
		{
			name: "existing import map",
			doc:  `<html><head><script type="importmap">{"imports":{}}</script></head></html>`,
			want: `<html><head><script type="importmap">{"imports":{}}</script></head></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, injected, err := InjectImportMap([]byte(tt.doc), im)
			require.NoError(t, err)
			assert.Equal(t, tt.injected, injected)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestInjectImportMapIdempotent(t *testing.T) {
	im := BuildImportMap(testManifest(t), "https://esm.sh")
	doc := []byte(`<html><head></head><body></body></html>`)

	once, injected, err := InjectImportMap(doc, im)
	require.NoError(t, err)
	require.True(t, injected)

	twice, injected, err := InjectImportMap(once, im)
	require.NoError(t, err)
	assert.False(t, injected)
	assert.Equal(t, string(once), string(twice))
	assert.Equal(t, 1, strings.Count(string(twice), "importmap"))
}

func TestInjectEmptyImportMap(t *testing.T) {
	doc := []byte(`<html><head></head></html>`)
	out, injected, err := InjectImportMap(doc, &ImportMap{Imports: map[string]string{}})
	require.NoError(t, err)
	assert.False(t, injected)
	assert.Equal(t, doc, out)
}
