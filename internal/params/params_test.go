package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	werrors "github.com/felixgeelhaar/watts/internal/errors"
)

func fixedClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	prev := now
	now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	t.Cleanup(func() { now = prev })
}

func TestSetGet(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("radius", 6.38, WithUnit("cm"), WithDescription("sphere radius")))
	require.NoError(t, p.Set("batches", 50))
	require.NoError(t, p.Set("name", "pu-sphere"))
	require.NoError(t, p.Set("vacuum", true))

	v, err := p.Get("radius")
	require.NoError(t, err)
	assert.Equal(t, 6.38, v)

	n, err := p.Int("batches")
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	f, err := p.Float("batches")
	require.NoError(t, err)
	assert.Equal(t, 50.0, f)

	s, err := p.String("name")
	require.NoError(t, err)
	assert.Equal(t, "pu-sphere", s)

	b, err := p.Bool("vacuum")
	require.NoError(t, err)
	assert.True(t, b)

	meta, err := p.Metadata("radius")
	require.NoError(t, err)
	assert.Equal(t, "cm", meta.Unit)
	assert.Equal(t, "sphere radius", meta.Description)
	assert.False(t, meta.Modified.IsZero())

	assert.Equal(t, []string{"radius", "batches", "name", "vacuum"}, p.Keys())
	assert.Equal(t, 4, p.Len())
}

func TestGetMissingKey(t *testing.T) {
	p := New()
	_, err := p.Get("radius")
	require.Error(t, err)
	assert.True(t, errors.Is(err, werrors.ErrParamNotFound))

	_, err = p.Metadata("radius")
	assert.True(t, errors.Is(err, werrors.ErrParamNotFound))
}

func TestTypedGetterMismatch(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("name", "x"))

	_, err := p.Float("name")
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	_, err = p.Int("name")
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	_, err = p.Bool("name")
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
}

func TestSetRejectsNonScalars(t *testing.T) {
	p := New()
	err := p.Set("list", []float64{1, 2})
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	assert.False(t, p.Has("list"))

	err = p.Update(map[string]any{"ok": 1, "bad": map[string]int{}})
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	assert.Equal(t, 0, p.Len(), "rejected bulk import must not write anything")
}

func TestSetExistingKeepsPositionAndMetadata(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("a", 1, WithUnit("m")))
	require.NoError(t, p.Set("b", 2))
	require.NoError(t, p.Set("a", 3))

	assert.Equal(t, []string{"a", "b"}, p.Keys())
	meta, _ := p.Metadata("a")
	assert.Equal(t, "m", meta.Unit)
	v, _ := p.Get("a")
	assert.Equal(t, int64(3), v)
}

func TestNormalizesNumericTypes(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("i32", int32(7)))
	require.NoError(t, p.Set("u8", uint8(3)))
	require.NoError(t, p.Set("f32", float32(0.5)))

	assert.Equal(t, map[string]any{"i32": int64(7), "u8": int64(3), "f32": 0.5}, p.ToMap())
}

func TestUnsignedOverflowIsRejected(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("max", uint64(math.MaxInt64)))
	v, err := p.Int("max")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	err = p.Set("big", uint64(math.MaxInt64)+1)
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	err = p.Update(map[string]any{"huge": uint64(math.MaxUint64)})
	assert.True(t, errors.Is(err, werrors.ErrParamInvalid))
	assert.False(t, p.Has("big"))
	assert.False(t, p.Has("huge"))
}

func TestDeleteAndClone(t *testing.T) {
	p, err := FromMap(map[string]any{"b": 2, "a": 1.5, "c": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, p.Keys())

	c := p.Clone()
	p.Delete("b")
	require.NoError(t, p.Set("a", 99))
	p.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, p.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
	v, _ := c.Get("a")
	assert.Equal(t, 1.5, v, "clone must not observe later mutation")
}

func TestSummaryRowsArePermutation(t *testing.T) {
	fixedClock(t)
	p := New()
	for _, kv := range []struct {
		k string
		v any
	}{{"zeta", 1}, {"alpha", 2.5}, {"mid", "x"}, {"beta", false}} {
		require.NoError(t, p.Set(kv.k, kv.v))
	}
	require.NoError(t, p.Set("zeta", 3))

	want := map[string]string{"zeta": "3", "alpha": "2.5", "mid": "x", "beta": "false"}

	tests := []struct {
		name  string
		sort  SortBy
		order []string
	}{
		{"insertion", SortByInsertion, []string{"zeta", "alpha", "mid", "beta"}},
		{"key", SortByKey, []string{"alpha", "beta", "mid", "zeta"}},
		{"time", SortByTime, []string{"alpha", "mid", "beta", "zeta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := p.SummaryRows(SummaryOptions{SortBy: tt.sort})
			got := map[string]string{}
			var order []string
			for _, r := range rows {
				got[r.Key] = r.Value
				order = append(order, r.Key)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("summary pairs mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.order, order)
		})
	}
}

func TestSummaryRendering(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("radius", 6.38, WithUnit("cm"), WithLabel("geometry")))
	require.NoError(t, p.Set("fuel_2031", 0.76))

	plain := p.Summary(SummaryOptions{SortBy: SortByKey})
	assert.Contains(t, plain, "radius")
	assert.Contains(t, plain, "6.38")
	assert.NotContains(t, plain, "Unit")
	assert.Less(t, strings.Index(plain, "fuel_2031"), strings.Index(plain, "radius"))

	withMeta := p.Summary(SummaryOptions{ShowMetadata: true})
	assert.Contains(t, withMeta, "Unit")
	assert.Contains(t, withMeta, "cm")
	assert.Contains(t, withMeta, "geometry")

	var buf bytes.Buffer
	require.NoError(t, p.ShowSummary(&buf, SummaryOptions{}))
	assert.Contains(t, buf.String(), "fuel_2031")
}

func TestParseSortBy(t *testing.T) {
	for in, want := range map[string]SortBy{"": SortByInsertion, "insertion": SortByInsertion, "key": SortByKey, "time": SortByTime} {
		got, err := ParseSortBy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSortBy("value")
	assert.Error(t, err)
}

func TestJSONRoundTripPreservesTypesAndOrder(t *testing.T) {
	p := New()
	require.NoError(t, p.Set("whole", 2.0))
	require.NoError(t, p.Set("count", 2))
	require.NoError(t, p.Set("flag", true))
	require.NoError(t, p.Set("label", "1.5", WithDescription("a string that looks numeric")))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Parameters
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, p.Keys(), back.Keys())
	if diff := cmp.Diff(p.ToMap(), back.ToMap()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	meta, _ := back.Metadata("label")
	assert.Equal(t, "a string that looks numeric", meta.Description)
}

func TestUnmarshalJSONRejectsDuplicates(t *testing.T) {
	var p Parameters
	err := json.Unmarshal([]byte(`[{"key":"a","type":"int","value":1},{"key":"a","type":"int","value":2}]`), &p)
	assert.Error(t, err)
}

func TestYAMLDocumentOrderAndRichForm(t *testing.T) {
	doc := `
radius:
  value: 6.38
  unit: cm
  description: sphere radius
batches: 50
fuel: "0.76"
whole: 2.0
vacuum: true
`
	var p Parameters
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))

	assert.Equal(t, []string{"radius", "batches", "fuel", "whole", "vacuum"}, p.Keys())
	assert.Equal(t, map[string]any{
		"radius": 6.38, "batches": int64(50), "fuel": "0.76", "whole": 2.0, "vacuum": true,
	}, p.ToMap())
	meta, _ := p.Metadata("radius")
	assert.Equal(t, "cm", meta.Unit)

	out, err := yaml.Marshal(&p)
	require.NoError(t, err)
	var again Parameters
	require.NoError(t, yaml.Unmarshal(out, &again))
	if diff := cmp.Diff(p.ToMap(), again.ToMap()); diff != "" {
		t.Errorf("yaml round trip mismatch (-want +got):\n%s\n%s", diff, out)
	}
}

func TestYAMLRejectsNonScalar(t *testing.T) {
	var p Parameters
	assert.Error(t, yaml.Unmarshal([]byte("a: [1, 2]\n"), &p))
	assert.Error(t, yaml.Unmarshal([]byte("- 1\n"), &p))
}

func TestLoadSave(t *testing.T) {
	dir := t.TempDir()
	p := New()
	require.NoError(t, p.Set("radius", 6.38, WithUnit("cm")))
	require.NoError(t, p.Set("batches", 50))

	for _, name := range []string{"params.yaml", "params.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, p.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, p.Keys(), loaded.Keys())
			assert.Equal(t, p.ToMap(), loaded.ToMap())
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	got := []string{FormatValue(6.38), FormatValue(int64(7)), FormatValue(true), FormatValue("x"), FormatValue(2.0)}
	want := []string{"6.38", "7", "true", "x", "2"}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}
