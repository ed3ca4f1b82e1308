package metrics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"modernity/internal/core/domain"
	"modernity/internal/engine/parser"
	"modernity/internal/engine/stdindex"
	"modernity/internal/shared/observability"
	"modernity/internal/shared/util"
)

// Index resolves paths as written in user code to std definitions.
type Index interface {
	Resolve(qualified string) (stdindex.Definition, bool)
}

// Engine is stateless apart from the read-only index and may be shared by
// workers.
type Engine struct {
	index Index
}

func NewEngine(index Index) *Engine {
	return &Engine{index: index}
}

// inputs is what a single calculator sees. A nil tally (the walk panicked)
// makes every syntax metric unavailable.
type inputs struct {
	engine *Engine
	forest *parser.SyntaxForest
	tally  *tally
	minors map[int]int
}

type calculator func(in *inputs) (float64, bool)

var calculators = map[string]calculator{
	Edition:          edition,
	ReportedMSRV:     reportedMSRV,
	VersionSignature: versionSignature,
	MaxStdVersion:    maxStdVersion,
	TotalExprs:       func(in *inputs) (float64, bool) { return float64(in.tally.exprs), true },
	UnsafeExprs:      func(in *inputs) (float64, bool) { return float64(in.tally.unsafeExprs), true },
	UnsafeFraction:   func(in *inputs) (float64, bool) { return ratio(in.tally.unsafeExprs, in.tally.exprs) },
	TryOperatorRatio: func(in *inputs) (float64, bool) {
		t := in.tally
		return ratio(t.tryOps, t.tryOps+t.unwraps+t.legacyTry)
	},
	LegacyTryMacros: func(in *inputs) (float64, bool) { return float64(in.tally.legacyTry), true },
	UnwrapCalls:     func(in *inputs) (float64, bool) { return float64(in.tally.unwraps), true },
	AsyncFnRatio:    func(in *inputs) (float64, bool) { return ratio(in.tally.asyncFns, in.tally.fns) },
	ImplTraitRatio:  func(in *inputs) (float64, bool) { return ratio(in.tally.implTraitFns, in.tally.fns) },
	DynTraitCount:   func(in *inputs) (float64, bool) { return float64(in.tally.dynTraits), true },
	LetElseCount:    func(in *inputs) (float64, bool) { return float64(in.tally.letElse), true },
	ConstGenericCnt: func(in *inputs) (float64, bool) { return float64(in.tally.constGenerics), true },
	ClosureRatio:    func(in *inputs) (float64, bool) { return ratio(in.tally.closures, in.tally.exprs) },
	StdMacroRatio:   stdMacroRatio,
	LocalMacroCount: func(in *inputs) (float64, bool) { return float64(in.forest.LocalMacroDefs), true },
	ParsedFiles:     func(in *inputs) (float64, bool) { return float64(in.forest.ParsedCount()), true },
	SkippedFiles:    func(in *inputs) (float64, bool) { return float64(in.forest.SkippedCount()), true },
}

// Compute returns the full metric vector of forest in schema order. It
// never fails: a metric that cannot be computed is marked unavailable.
func (e *Engine) Compute(forest *parser.SyntaxForest) domain.MetricVector {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("metrics").Observe(time.Since(start).Seconds())
	}()

	in := &inputs{engine: e, forest: forest, tally: safeTally(forest)}
	vector := make(domain.MetricVector, 0, len(schema))
	for _, col := range schema {
		value, ok := evaluate(col, calculators[col.Name], in)
		if !ok {
			observability.MetricUnavailableTotal.WithLabelValues(col.Name).Inc()
		}
		vector = append(vector, domain.MetricValue{Name: col.Name, Kind: col.Kind, Value: value, Available: ok})
	}
	return vector
}

func safeTally(forest *parser.SyntaxForest) (t *tally) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("syntax walk failed", "library", forest.Version.Name, "version", forest.Version.Version, "panic", fmt.Sprint(r))
			t = nil
		}
	}()
	t = newTally()
	for _, unit := range forest.Units() {
		t.merge(collect(unit))
	}
	return t
}

// evaluate runs calc and rejects values outside the column's domain.
func evaluate(col Column, calc calculator, in *inputs) (value float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("metric failed",
				"metric", col.Name,
				"library", in.forest.Version.Name,
				"version", in.forest.Version.Version,
				"panic", fmt.Sprint(r),
			)
			value, ok = 0, false
		}
	}()
	if calc == nil {
		return 0, false
	}
	value, ok = calc(in)
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	switch col.Kind {
	case domain.KindRatio:
		if value > 1 {
			return 0, false
		}
	case domain.KindCount:
		if value != math.Trunc(value) {
			return 0, false
		}
	}
	return value, true
}

func ratio(num, den int) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func edition(in *inputs) (float64, bool) {
	m := in.forest.Manifest
	if !m.Valid {
		return 0, false
	}
	switch m.Edition {
	case "", "2015":
		return 0, true
	case "2018":
		return 1, true
	case "2021":
		return 2, true
	case "2024":
		return 3, true
	}
	return 0, false
}

func reportedMSRV(in *inputs) (float64, bool) {
	minor := stdindex.Minor(in.forest.Manifest.RustVersion)
	if minor < 0 {
		return 0, false
	}
	return float64(minor), true
}

func stdMacroRatio(in *inputs) (float64, bool) {
	std := 0
	for _, inv := range in.forest.Invocations {
		if inv.Kind == parser.MacroStd {
			std++
		}
	}
	return ratio(std, len(in.forest.Invocations))
}

func versionSignature(in *inputs) (float64, bool) {
	counts, ok := in.minorCounts()
	if !ok {
		return 0, false
	}
	return Signature(counts)
}

func maxStdVersion(in *inputs) (float64, bool) {
	counts, ok := in.minorCounts()
	if !ok || len(counts) == 0 {
		return 0, false
	}
	best := -1
	for minor := range counts {
		if minor > best {
			best = minor
		}
	}
	return float64(best), true
}

// minorCounts maps stabilization minors to the number of uses of std items
// stabilized in that release. Paths are resolved in sorted order.
func (in *inputs) minorCounts() (map[int]int, bool) {
	if in.engine.index == nil {
		return nil, false
	}
	if in.minors != nil {
		return in.minors, true
	}
	counts := make(map[int]int)
	for _, path := range util.SortedStringKeys(in.tally.paths) {
		def, ok := in.engine.index.Resolve(path)
		if !ok || def.Minor < 0 {
			continue
		}
		counts[def.Minor] += in.tally.paths[path]
	}
	for _, inv := range in.forest.Invocations {
		if inv.Kind != parser.MacroStd {
			continue
		}
		if minor := stdindex.Minor(inv.Since); minor >= 0 {
			counts[minor]++
		}
	}
	in.minors = counts
	return counts, true
}

// Signature is the log-weighted mean of the stabilization minors in counts.
// A minor used n times weighs ln(n)/ln(max) where max is the highest use
// count, so rarely used features pull the mean less. No usage at all yields
// 1.0.
func Signature(counts map[int]int) (float64, bool) {
	if len(counts) == 0 {
		return 1.0, true
	}
	minors := make([]int, 0, len(counts))
	highest := 0
	for minor, n := range counts {
		minors = append(minors, minor)
		if n > highest {
			highest = n
		}
	}
	sort.Ints(minors)

	var sum, weights float64
	for _, minor := range minors {
		w := 1.0
		if highest > 1 {
			w = math.Log(float64(counts[minor])) / math.Log(float64(highest))
		}
		sum += float64(minor) * w
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights, true
}
