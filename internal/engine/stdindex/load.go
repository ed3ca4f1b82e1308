package stdindex

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	domainErrors "modernity/internal/core/errors"
	"modernity/internal/engine/syntax"
	"modernity/internal/shared/observability"
	"modernity/internal/shared/util"
)

const (
	cacheSchema = 1
	// maxErrorFraction is the share of item-list entries that may fail to
	// parse before an artifact is rejected as malformed.
	maxErrorFraction = 0.10
)

// Paths locates the three expansion artifacts.
type Paths struct {
	Std   string
	Core  string
	Alloc string
}

func (p Paths) byCrate() map[string]string {
	return map[string]string{"std": p.Std, "core": p.Core, "alloc": p.Alloc}
}

// Options controls Load. An empty CacheDir disables the JSON cache.
type Options struct {
	CacheDir string
}

type cacheFile struct {
	Schema  int     `json:"schema"`
	Digest  string  `json:"digest"`
	Root    *item   `json:"root"`
	Aliases []alias `json:"aliases"`
}

// Load builds the index from the expansion artifacts, or reads it from the
// cache when the artifacts are unchanged.
func Load(paths Paths, opts Options) (*Index, error) {
	sources := make(map[string][]byte, len(Crates))
	digest := xxhash.New()
	for _, crate := range Crates {
		path := paths.byCrate()[crate]
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domainErrors.AddContext(
				domainErrors.Wrap(err, domainErrors.CodeMissingExpansionFile, fmt.Sprintf("cannot read expanded %s", crate)),
				domainErrors.CtxPath, path)
		}
		sources[crate] = data
		_, _ = digest.WriteString(crate)
		_, _ = digest.Write([]byte{0})
		_, _ = digest.Write(data)
		_, _ = digest.Write([]byte{0})
	}
	key := fmt.Sprintf("%016x", digest.Sum64())

	cachePath := ""
	if opts.CacheDir != "" {
		cachePath = filepath.Join(opts.CacheDir, "index-"+key+".json")
		if ix, ok := readCache(cachePath, key); ok {
			slog.Debug("std index loaded from cache", "path", cachePath, "items", ix.Size())
			return ix, nil
		}
	}

	start := time.Now()
	ix, err := Build(sources)
	if err != nil {
		return nil, err
	}
	observability.ParsingDuration.WithLabelValues("stdindex").Observe(time.Since(start).Seconds())
	slog.Info("std index built", "items", ix.Size(), "duration", time.Since(start).Round(time.Millisecond))

	if cachePath != "" {
		if err := writeCache(cachePath, key, ix); err != nil {
			slog.Warn("failed to write std index cache", "path", cachePath, "error", err)
		}
	}
	return ix, nil
}

// Build constructs an index from in-memory sources keyed by crate name.
func Build(sources map[string][]byte) (*Index, error) {
	ix := newIndex()
	for _, crate := range Crates {
		src, ok := sources[crate]
		if !ok {
			return nil, domainErrors.Newf(domainErrors.CodeMissingExpansionFile, "no source for %s", crate)
		}
		if err := buildCrate(ix, crate, src); err != nil {
			return nil, domainErrors.AddContext(err, domainErrors.CtxLibrary, crate)
		}
	}
	// Prelude names resolve without qualification.
	ix.addAlias(alias{Scope: []string{}, Target: []string{"std", "prelude", "v1"}, Absolute: true})
	return ix, nil
}

func buildCrate(ix *Index, crate string, source []byte) error {
	tree := syntax.SharedPool().Parse(source)
	if tree == nil {
		return domainErrors.Newf(domainErrors.CodeMalformedExpansion, "expanded %s could not be parsed", crate)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.IsError() || root.Kind() != "source_file" {
		return domainErrors.Newf(domainErrors.CodeMalformedExpansion, "expanded %s is not a Rust source file", crate)
	}

	b := &builder{ix: ix, crate: crate, source: source}
	ix.ensure([]string{crate})
	b.build(root)

	total := b.itemCount + b.errorCount
	if b.itemCount == 0 {
		return domainErrors.Newf(domainErrors.CodeMalformedExpansion, "expanded %s contains no items", crate)
	}
	if frac := float64(b.errorCount) / float64(total); frac > maxErrorFraction {
		return domainErrors.Newf(domainErrors.CodeMalformedExpansion,
			"expanded %s: %d of %d items failed to parse", crate, b.errorCount, total)
	}
	if b.errorCount > 0 {
		slog.Warn("expanded source has syntax errors", "crate", crate, "errors", b.errorCount, "items", total)
	}
	return nil
}

func readCache(path, digest string) (*Index, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		slog.Warn("ignoring unreadable std index cache", "path", path, "error", err)
		return nil, false
	}
	if cf.Schema != cacheSchema || cf.Digest != digest || cf.Root == nil {
		return nil, false
	}
	ix := &Index{root: cf.Root, aliases: make(map[string][]alias)}
	for _, a := range cf.Aliases {
		ix.addAlias(a)
	}
	return ix, true
}

func writeCache(path, digest string, ix *Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cf := cacheFile{Schema: cacheSchema, Digest: digest, Root: ix.root}
	for _, key := range util.SortedStringKeys(ix.aliases) {
		cf.Aliases = append(cf.Aliases, ix.aliases[key]...)
	}
	data, err := json.Marshal(cf)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o644)
}
