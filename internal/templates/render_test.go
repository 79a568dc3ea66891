package templates

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	fsys := fstest.MapFS{
		"t/a.html": {Data: []byte(`{{define "greet"}}<b>{{.Name}}</b>{{end}}`)},
		"t/b.html": {Data: []byte(`{{define "pair"}}{{template "greet" (dict "Name" .)}}{{end}}`)},
	}
	r, err := New(fsys, "t/*.html")
	require.NoError(t, err)

	out, err := r.Render("pair", "<长江>")
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;长江&gt;</b>", out)

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
	assert.Panics(t, func() { r.MustRender("missing", nil) })
}

func TestReload(t *testing.T) {
	fsys := fstest.MapFS{"x.html": {Data: []byte(`{{define "v"}}1{{end}}`)}}
	r, err := New(fsys, "*.html")
	require.NoError(t, err)

	fsys["x.html"] = &fstest.MapFile{Data: []byte(`{{define "v"}}2{{end}}`)}
	require.NoError(t, r.Reload())
	assert.Equal(t, "2", r.MustRender("v", nil))
}

func TestNewNoMatch(t *testing.T) {
	_, err := New(fstest.MapFS{}, "*.html")
	assert.Error(t, err)
}
