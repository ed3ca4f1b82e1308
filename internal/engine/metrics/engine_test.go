package metrics

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modernity/internal/core/domain"
	"modernity/internal/engine/parser"
	"modernity/internal/engine/stdindex"
)

type fakeIndex map[string]stdindex.Definition

func (f fakeIndex) Resolve(qualified string) (stdindex.Definition, bool) {
	d, ok := f[qualified]
	return d, ok
}

type panicIndex struct{}

func (panicIndex) Resolve(string) (stdindex.Definition, bool) { panic("index corrupted") }

func def(since string) stdindex.Definition {
	return stdindex.Definition{Since: since, Minor: stdindex.Minor(since), Public: true}
}

func testIndex() fakeIndex {
	return fakeIndex{
		"std::collections::HashMap": def("1.0.0"),
		"HashMap":                   def("1.0.0"),
		"Option":                    def("1.0.0"),
		"Result":                    def("1.0.0"),
		"Box":                       def("1.0.0"),
		"Ok":                        def("1.0.0"),
		"Err":                       def("1.0.0"),
		"std::iter::empty":          def("1.2.0"),
		"vec!":                      def("1.0.0"),
	}
}

const sampleLib = `
use std::collections::HashMap;

pub async fn fetch() -> impl Iterator<Item = u8> {
    std::iter::empty()
}

fn parse() -> Result<u8, ()> {
    Ok(1)
}

pub fn read(v: Option<u8>) -> Result<u8, ()> {
    let Some(x) = v else {
        return Err(());
    };
    let _m: HashMap<u8, u8> = HashMap::new();
    let f = |a: u8| a + 1;
    let y = v.unwrap();
    let z = parse()?;
    unsafe {
        let _p = &x as *const u8;
    }
    let _all = vec![x, y, z];
    unknown!(x);
    Ok(f(x) + y + z)
}

pub unsafe fn raw(_b: Box<dyn Fn()>) {}

pub struct Buf<const N: usize>;
`

func buildForest(t *testing.T, manifest string, files map[string]string, index parser.MacroIndex) *parser.SyntaxForest {
	t.Helper()
	root := t.TempDir()
	files["Cargo.toml"] = manifest
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	p, err := parser.New(index, parser.Options{Strict: true})
	require.NoError(t, err)
	forest, err := p.Parse(context.Background(), domain.LibraryVersion{Name: "demo", Version: "0.1.0", SourceRoot: root})
	require.NoError(t, err)
	t.Cleanup(forest.Close)
	return forest
}

const defaultManifest = "[package]\nname = \"demo\"\nversion = \"0.1.0\"\nedition = \"2021\"\nrust-version = \"1.65\"\n"

func value(t *testing.T, v domain.MetricVector, name string) domain.MetricValue {
	t.Helper()
	m, ok := v.Get(name)
	require.True(t, ok, "missing metric %s", name)
	return m
}

func TestCompute_Counts(t *testing.T) {
	idx := testIndex()
	forest := buildForest(t, defaultManifest, map[string]string{"src/lib.rs": sampleLib}, idx)
	vector := NewEngine(idx).Compute(forest)

	require.Equal(t, Columns(), vector.Names())

	exact := map[string]float64{
		Edition:          2,
		ReportedMSRV:     65,
		MaxStdVersion:    2,
		TryOperatorRatio: 0.5,
		LegacyTryMacros:  0,
		UnwrapCalls:      1,
		AsyncFnRatio:     0.25,
		ImplTraitRatio:   0.25,
		DynTraitCount:    1,
		LetElseCount:     1,
		ConstGenericCnt:  1,
		StdMacroRatio:    0.5,
		LocalMacroCount:  0,
		ParsedFiles:      1,
		SkippedFiles:     0,
	}
	for name, want := range exact {
		got := value(t, vector, name)
		assert.True(t, got.Available, name)
		assert.InDelta(t, want, got.Value, 1e-9, name)
	}

	total := value(t, vector, TotalExprs)
	unsafeExprs := value(t, vector, UnsafeExprs)
	assert.Greater(t, total.Value, 10.0)
	assert.GreaterOrEqual(t, unsafeExprs.Value, 2.0)
	assert.Less(t, unsafeExprs.Value, total.Value)
	assert.InDelta(t, unsafeExprs.Value/total.Value, value(t, vector, UnsafeFraction).Value, 1e-12)
	assert.InDelta(t, 1/total.Value, value(t, vector, ClosureRatio).Value, 1e-12)

	sig := value(t, vector, VersionSignature)
	assert.True(t, sig.Available)
	assert.GreaterOrEqual(t, sig.Value, 0.0)
	assert.LessOrEqual(t, sig.Value, 2.0)
}

func TestCompute_Deterministic(t *testing.T) {
	idx := testIndex()
	forest := buildForest(t, defaultManifest, map[string]string{"src/lib.rs": sampleLib}, idx)
	engine := NewEngine(idx)
	assert.Equal(t, engine.Compute(forest), engine.Compute(forest))
}

func TestCompute_Ranges(t *testing.T) {
	idx := testIndex()
	forest := buildForest(t, defaultManifest, map[string]string{"src/lib.rs": sampleLib}, idx)
	for _, m := range NewEngine(idx).Compute(forest) {
		if !m.Available {
			continue
		}
		assert.GreaterOrEqual(t, m.Value, 0.0, m.Name)
		switch m.Kind {
		case domain.KindRatio:
			assert.LessOrEqual(t, m.Value, 1.0, m.Name)
		case domain.KindCount:
			assert.Equal(t, math.Trunc(m.Value), m.Value, m.Name)
		}
	}
}

func TestCompute_ZeroDenominators(t *testing.T) {
	forest := buildForest(t, "[package]\nname = \"demo\"\n", map[string]string{"src/lib.rs": "pub struct Empty;\n"}, fakeIndex{})
	vector := NewEngine(fakeIndex{}).Compute(forest)

	for _, name := range []string{UnsafeFraction, TryOperatorRatio, AsyncFnRatio, ImplTraitRatio, ClosureRatio, StdMacroRatio, ReportedMSRV, MaxStdVersion} {
		assert.False(t, value(t, vector, name).Available, name)
	}
	assert.Equal(t, 0.0, value(t, vector, Edition).Value)
	assert.True(t, value(t, vector, Edition).Available)

	sig := value(t, vector, VersionSignature)
	assert.True(t, sig.Available)
	assert.Equal(t, 1.0, sig.Value)
}

func TestCompute_PanicIsolated(t *testing.T) {
	forest := buildForest(t, defaultManifest, map[string]string{"src/lib.rs": sampleLib}, testIndex())
	vector := NewEngine(panicIndex{}).Compute(forest)

	assert.False(t, value(t, vector, VersionSignature).Available)
	assert.False(t, value(t, vector, MaxStdVersion).Available)
	assert.True(t, value(t, vector, TotalExprs).Available)
	assert.True(t, value(t, vector, Edition).Available)
	assert.Len(t, vector, len(Columns()))
}

func TestCompute_NilIndex(t *testing.T) {
	forest := buildForest(t, defaultManifest, map[string]string{"src/lib.rs": sampleLib}, nil)
	vector := NewEngine(nil).Compute(forest)
	assert.False(t, value(t, vector, VersionSignature).Available)
	assert.True(t, value(t, vector, UnwrapCalls).Available)
}

func TestEdition(t *testing.T) {
	tests := []struct {
		manifest parser.Manifest
		want     float64
		ok       bool
	}{
		{parser.Manifest{Valid: true}, 0, true},
		{parser.Manifest{Valid: true, Edition: "2015"}, 0, true},
		{parser.Manifest{Valid: true, Edition: "2018"}, 1, true},
		{parser.Manifest{Valid: true, Edition: "2021"}, 2, true},
		{parser.Manifest{Valid: true, Edition: "2024"}, 3, true},
		{parser.Manifest{Valid: true, Edition: "2030"}, 0, false},
		{parser.Manifest{Valid: false}, 0, false},
	}
	for _, tt := range tests {
		got, ok := edition(&inputs{forest: &parser.SyntaxForest{Manifest: tt.manifest}})
		assert.Equal(t, tt.ok, ok, tt.manifest.Edition)
		assert.Equal(t, tt.want, got, tt.manifest.Edition)
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name   string
		counts map[int]int
		want   float64
	}{
		{"empty", map[int]int{}, 1.0},
		{"single minor", map[int]int{36: 1}, 36},
		{"all single uses", map[int]int{10: 1, 20: 1}, 15},
		{"log weighted", map[int]int{0: 4, 36: 2}, 12},
		{"once-used minor ignored", map[int]int{40: 1, 30: 5}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Signature(tt.counts)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSchema(t *testing.T) {
	cols := Schema()
	require.Len(t, cols, 20)
	assert.Equal(t, Edition, cols[0].Name)
	assert.Equal(t, SkippedFiles, cols[19].Name)

	seen := make(map[string]bool)
	for _, c := range cols {
		assert.False(t, seen[c.Name], "duplicate column %s", c.Name)
		seen[c.Name] = true
		kind, ok := KindOf(c.Name)
		assert.True(t, ok)
		assert.Equal(t, c.Kind, kind)
	}
}
