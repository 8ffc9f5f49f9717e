package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/params"
)

func mustParams(t *testing.T, m map[string]any) *params.Parameters {
	t.Helper()
	p, err := params.FromMap(m)
	require.NoError(t, err)
	return p
}

func TestRender(t *testing.T) {
	r, err := Parse("input.son", "radius = {{ .radius }}\nname = {{ .name | upper }}\nh = {{ round .height 2 }}\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"height", "name", "radius"}, r.Keys())

	out, err := r.Render(mustParams(t, map[string]any{"radius": 6.38, "name": "core", "height": 1.23456}))
	require.NoError(t, err)
	assert.Equal(t, "radius = 6.38\nname = CORE\nh = 1.23\n", out)
}

func TestRenderMissingParameter(t *testing.T) {
	r, err := Parse("input.son", "{{ .radius }} {{ if .reflector }}{{ .thickness }}{{ end }}")
	require.NoError(t, err)

	_, err = r.Render(mustParams(t, map[string]any{"radius": 1.0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, werrors.ErrMissingParameter))
	assert.Contains(t, err.Error(), "reflector, thickness")
}

func TestRenderScopedDot(t *testing.T) {
	r, err := Parse("t", "{{ with .outer }}{{ . }}-{{ $.suffix }}{{ end }}")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "suffix"}, r.Keys())

	out, err := r.Render(mustParams(t, map[string]any{"outer": "a", "suffix": "b"}))
	require.NoError(t, err)
	assert.Equal(t, "a-b", out)
}

func TestParseError(t *testing.T) {
	_, err := Parse("bad", "{{ .radius ")
	require.Error(t, err)
	assert.Equal(t, werrors.ErrCodeTemplateInvalid, werrors.CodeOf(err))
}

func TestRenderFileAndTable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Fuel.txt")
	require.NoError(t, os.WriteFile(src, []byte("Year,Nuclear\n2022,{{ .fuel_2022 }}\n2023,{{ mul .fuel_2022 2 }}\n"), 0644))

	r, err := NewRenderer(src)
	require.NoError(t, err)
	assert.Equal(t, "Fuel.txt", r.Path())

	p := mustParams(t, map[string]any{"fuel_2022": 0.62})

	tbl, err := r.RenderTable(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Year", "Nuclear"}, tbl.Columns)
	assert.Equal(t, [][]string{{"2022", "0.62"}, {"2023", "1.24"}}, tbl.Rows)

	dest := filepath.Join(dir, "out", "Fuel.csv")
	require.NoError(t, r.RenderFile(p, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2022,0.62")

	_, err = NewRenderer(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
