// Package metrics computes the idiom-adoption vector of one parsed version.
package metrics

import (
	"modernity/internal/core/domain"
)

// SchemaVersion changes whenever a column is added, removed or redefined.
const SchemaVersion = 1

const (
	Edition          = "edition"
	ReportedMSRV     = "reported_msrv"
	VersionSignature = "version_signature"
	MaxStdVersion    = "max_std_version"
	TotalExprs       = "total_exprs"
	UnsafeExprs      = "unsafe_exprs"
	UnsafeFraction   = "unsafe_fraction"
	TryOperatorRatio = "try_operator_ratio"
	LegacyTryMacros  = "legacy_try_macros"
	UnwrapCalls      = "unwrap_calls"
	AsyncFnRatio     = "async_fn_ratio"
	ImplTraitRatio   = "impl_trait_ratio"
	DynTraitCount    = "dyn_trait_count"
	LetElseCount     = "let_else_count"
	ConstGenericCnt  = "const_generic_count"
	ClosureRatio     = "closure_ratio"
	StdMacroRatio    = "std_macro_ratio"
	LocalMacroCount  = "local_macro_count"
	ParsedFiles      = "parsed_files"
	SkippedFiles     = "skipped_files"
)

// Column describes one metric of the schema.
type Column struct {
	Name string
	Kind domain.MetricKind
}

var schema = []Column{
	{Edition, domain.KindCount},
	{ReportedMSRV, domain.KindCount},
	{VersionSignature, domain.KindLevel},
	{MaxStdVersion, domain.KindCount},
	{TotalExprs, domain.KindCount},
	{UnsafeExprs, domain.KindCount},
	{UnsafeFraction, domain.KindRatio},
	{TryOperatorRatio, domain.KindRatio},
	{LegacyTryMacros, domain.KindCount},
	{UnwrapCalls, domain.KindCount},
	{AsyncFnRatio, domain.KindRatio},
	{ImplTraitRatio, domain.KindRatio},
	{DynTraitCount, domain.KindCount},
	{LetElseCount, domain.KindCount},
	{ConstGenericCnt, domain.KindCount},
	{ClosureRatio, domain.KindRatio},
	{StdMacroRatio, domain.KindRatio},
	{LocalMacroCount, domain.KindCount},
	{ParsedFiles, domain.KindCount},
	{SkippedFiles, domain.KindCount},
}

// Schema returns the ordered metric columns.
func Schema() []Column {
	out := make([]Column, len(schema))
	copy(out, schema)
	return out
}

// Columns returns the ordered metric names.
func Columns() []string {
	names := make([]string, len(schema))
	for i, c := range schema {
		names[i] = c.Name
	}
	return names
}

// KindOf returns the kind of a named column.
func KindOf(name string) (domain.MetricKind, bool) {
	for _, c := range schema {
		if c.Name == name {
			return c.Kind, true
		}
	}
	return 0, false
}
