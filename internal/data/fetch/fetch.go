// Package fetch downloads and unpacks .crate archives into scratch
// directories.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/shared/observability"
)

const (
	DefaultMaxArchiveBytes int64 = 256 << 20
	DefaultMaxFileBytes    int64 = 32 << 20
)

// Downloader streams a remote resource.
type Downloader interface {
	Download(ctx context.Context, rawURL string, fn func(io.Reader) error) error
}

// Checkout is an unpacked crate. Root is the crate directory inside an
// exclusively owned scratch directory; Cleanup removes the scratch directory
// and is safe to call more than once.
type Checkout struct {
	Root    string
	Cleanup func() error
}

type Options struct {
	ScratchDir      string // empty means os.TempDir()
	MaxArchiveBytes int64  // compressed size cap
	MaxFileBytes    int64  // per-entry cap
}

type Fetcher struct {
	downloader Downloader
	opts       Options
}

func NewFetcher(downloader Downloader, opts Options) *Fetcher {
	if opts.MaxArchiveBytes <= 0 {
		opts.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	return &Fetcher{downloader: downloader, opts: opts}
}

// Fetch obtains the archive of release and unpacks it. Every failure is a
// FETCH_FAILURE and leaves nothing behind on disk.
func (f *Fetcher) Fetch(ctx context.Context, name string, release domain.Release) (*Checkout, error) {
	start := time.Now()
	defer func() {
		observability.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	if f.opts.ScratchDir != "" {
		if err := os.MkdirAll(f.opts.ScratchDir, 0o755); err != nil {
			return nil, f.fail(err, name, release, "cannot create scratch directory")
		}
	}
	scratch, err := os.MkdirTemp(f.opts.ScratchDir, fmt.Sprintf("modernity-%s-%s-*", sanitize(name), sanitize(release.Version)))
	if err != nil {
		return nil, f.fail(err, name, release, "cannot create scratch directory")
	}
	cleanup := func() error {
		return os.RemoveAll(scratch)
	}

	root, err := f.acquire(ctx, release.ArchiveURL, scratch)
	if err != nil {
		if rmErr := cleanup(); rmErr != nil {
			slog.Warn("failed to remove scratch directory", "path", scratch, "error", rmErr)
		}
		return nil, f.fail(err, name, release, "cannot fetch archive")
	}

	slog.Debug("version unpacked", "library", name, "version", release.Version, "root", root)
	return &Checkout{Root: root, Cleanup: cleanup}, nil
}

func (f *Fetcher) acquire(ctx context.Context, location, scratch string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", fmt.Errorf("release has no archive location")
	}
	dest := filepath.Join(scratch, "src")

	u, err := url.Parse(location)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if f.downloader == nil {
			return "", fmt.Errorf("no downloader configured for %s", location)
		}
		var root string
		err := f.downloader.Download(ctx, location, func(r io.Reader) error {
			// A retried attempt starts from an empty destination.
			if err := os.RemoveAll(dest); err != nil {
				return err
			}
			var err error
			root, err = Extract(ctx, r, dest, f.limits())
			return err
		})
		return root, err
	}

	path := location
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return Extract(ctx, file, dest, f.limits())
}

func (f *Fetcher) limits() Limits {
	return Limits{MaxArchiveBytes: f.opts.MaxArchiveBytes, MaxFileBytes: f.opts.MaxFileBytes}
}

func (f *Fetcher) fail(err error, name string, release domain.Release, msg string) error {
	wrapped := domainErrors.Wrap(err, domainErrors.CodeFetchFailure, msg)
	wrapped = domainErrors.AddContext(wrapped, domainErrors.CtxLibrary, name)
	return domainErrors.AddContext(wrapped, domainErrors.CtxVersion, release.Version)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
