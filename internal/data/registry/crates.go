package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/shared/httputil"
)

// Crates lists crate releases from a crates.io compatible API.
type Crates struct {
	client      *Client
	cache       *httputil.Cache
	baseURL     string
	downloadURL string
}

// NewCrates builds a crates.io client. cache may be nil. downloadURL is the
// static archive host; archives live at {downloadURL}/{name}/{name}-{version}.crate.
func NewCrates(client *Client, cache *httputil.Cache, baseURL, downloadURL string) *Crates {
	return &Crates{
		client:      client,
		cache:       cache.Namespace("crates:"),
		baseURL:     strings.TrimRight(baseURL, "/"),
		downloadURL: strings.TrimRight(downloadURL, "/"),
	}
}

// Releases returns every published version of name in registry order.
func (c *Crates) Releases(ctx context.Context, name string) ([]domain.Release, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainErrors.New(domainErrors.CodeValidationError, "library name must not be empty")
	}

	var data crateResponse
	cached, err := c.cache.Get(name, &data)
	if err != nil && !errors.Is(err, httputil.ErrExpired) {
		slog.Debug("registry cache read failed", "crate", name, "error", err)
	}
	if !cached {
		endpoint := fmt.Sprintf("%s/crates/%s", c.baseURL, url.PathEscape(name))
		if err := c.client.GetJSON(ctx, endpoint, &data); err != nil {
			return nil, classify(err, name)
		}
		if err := c.cache.Set(name, data); err != nil {
			slog.Debug("registry cache write failed", "crate", name, "error", err)
		}
	}

	releases := make([]domain.Release, 0, len(data.Versions))
	for _, v := range data.Versions {
		published, err := time.Parse(time.RFC3339, v.CreatedAt)
		if err != nil {
			slog.Warn("skipping version with unparsable timestamp", "crate", name, "version", v.Num, "created_at", v.CreatedAt)
			continue
		}
		releases = append(releases, domain.Release{
			Version:     v.Num,
			PublishedAt: published.UTC(),
			Withdrawn:   v.Yanked,
			ArchiveURL:  c.archiveURL(name, v),
		})
	}
	return releases, nil
}

func (c *Crates) archiveURL(name string, v versionEntry) string {
	if c.downloadURL != "" {
		return fmt.Sprintf("%s/%s/%s-%s.crate", c.downloadURL, name, name, v.Num)
	}
	if v.DLPath != "" {
		if base, err := url.Parse(c.baseURL); err == nil {
			if ref, err := url.Parse(v.DLPath); err == nil {
				return base.ResolveReference(ref).String()
			}
		}
	}
	return ""
}

func classify(err error, name string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return domainErrors.AddContext(
			domainErrors.Newf(domainErrors.CodeLibraryNotFound, "crate %q does not exist", name),
			domainErrors.CtxLibrary, name)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domainErrors.AddContext(
			domainErrors.Wrap(err, domainErrors.CodeRegistryUnavailable, "registry request failed"),
			domainErrors.CtxLibrary, name)
	}
}

type crateResponse struct {
	Crate struct {
		Name       string `json:"name"`
		MaxVersion string `json:"max_version"`
	} `json:"crate"`
	Versions []versionEntry `json:"versions"`
}

type versionEntry struct {
	Num       string `json:"num"`
	CreatedAt string `json:"created_at"`
	Yanked    bool   `json:"yanked"`
	DLPath    string `json:"dl_path"`
}
