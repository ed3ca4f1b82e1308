package parser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/stdindex"
	"modernity/internal/engine/syntax"
	"modernity/internal/shared/observability"
)

const DefaultMaxMacroDepth = 64

// MacroIndex resolves standard library paths and macro names.
type MacroIndex interface {
	Resolve(qualified string) (stdindex.Definition, bool)
}

type Options struct {
	Strict        bool
	MaxMacroDepth int
	Exclude       []string // globs over crate-relative slash paths
	MaxFileBytes  int64
}

// Parser is safe for concurrent use; each Parse call owns its forest.
type Parser struct {
	pool    *syntax.ParserPool
	index   MacroIndex
	opts    Options
	exclude []glob.Glob
}

func New(index MacroIndex, opts Options) (*Parser, error) {
	if opts.MaxMacroDepth <= 0 {
		opts.MaxMacroDepth = DefaultMaxMacroDepth
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 32 << 20
	}
	p := &Parser{pool: syntax.SharedPool(), index: index, opts: opts}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, domainErrors.Wrap(err, domainErrors.CodeValidationError, fmt.Sprintf("invalid exclude pattern %q", pattern))
		}
		p.exclude = append(p.exclude, g)
	}
	return p, nil
}

// Parse builds the forest of version, whose SourceRoot must point at the
// unpacked crate. A version without any parsable file fails with
// PARSE_FAILURE.
func (p *Parser) Parse(ctx context.Context, version domain.LibraryVersion) (*SyntaxForest, error) {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("crate").Observe(time.Since(start).Seconds())
	}()

	forest := &SyntaxForest{Version: version}

	manifest, err := ReadManifest(filepath.Join(version.SourceRoot, "Cargo.toml"))
	if err != nil {
		forest.Issues = append(forest.Issues, Issue{
			Code:    domainErrors.CodeParseFailure,
			File:    "Cargo.toml",
			Message: err.Error(),
		})
	}
	forest.Manifest = manifest

	root, err := filepath.Abs(version.SourceRoot)
	if err != nil {
		root = version.SourceRoot
	}
	d := &discovery{parser: p, root: root, forest: forest, visited: map[string]bool{}}
	if err := d.run(ctx); err != nil {
		forest.Close()
		return nil, err
	}

	if forest.ParsedCount() == 0 {
		forest.Close()
		return nil, p.totalFailure(version, forest)
	}

	m := newMacroPass(p, forest, d.macros)
	if err := m.run(ctx); err != nil {
		forest.Close()
		return nil, err
	}

	slog.Debug("version parsed",
		"library", version.Name,
		"version", version.Version,
		"parsed", forest.ParsedCount(),
		"skipped", forest.SkippedCount(),
		"fragments", len(forest.Fragments),
		"invocations", len(forest.Invocations),
		"issues", len(forest.Issues),
	)
	return forest, nil
}

func (p *Parser) totalFailure(version domain.LibraryVersion, forest *SyntaxForest) error {
	err := domainErrors.New(domainErrors.CodeParseFailure, "no source file could be parsed")
	if len(forest.Files) == 0 {
		err = domainErrors.New(domainErrors.CodeParseFailure, "no crate root found")
	}
	for _, issue := range forest.Issues {
		if issue.Code == domainErrors.CodeParseFailure && issue.Line > 0 {
			err = domainErrors.AddContext(err, domainErrors.CtxPath, issue.File)
			err = domainErrors.AddContext(err, domainErrors.CtxLine, issue.Line)
			err = domainErrors.AddContext(err, domainErrors.CtxColumn, issue.Column)
			break
		}
	}
	err = domainErrors.AddContext(err, domainErrors.CtxLibrary, version.Name)
	return domainErrors.AddContext(err, domainErrors.CtxVersion, version.Version)
}

func (p *Parser) excluded(rel string) bool {
	for _, g := range p.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
