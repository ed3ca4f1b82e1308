package fetch

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	ErrUnsafePath   = errors.New("archive entry escapes the extraction root")
	ErrTooLarge     = errors.New("archive exceeds size limit")
	ErrNoCrateRoot  = errors.New("archive has no single top-level directory")
	errLimitReached = errors.New("limit reached")
)

// Limits caps the compressed archive and every unpacked entry.
type Limits struct {
	MaxArchiveBytes int64
	MaxFileBytes    int64
}

// Extract unpacks a gzip-compressed tar stream into dest and returns the
// single top-level directory of the archive. Entries that would land outside
// dest, links that point outside it and oversized input are rejected.
// Links that stay inside are skipped.
func Extract(ctx context.Context, r io.Reader, dest string, limits Limits) (string, error) {
	if limits.MaxArchiveBytes <= 0 {
		limits.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = DefaultMaxFileBytes
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}

	counted := &limitedReader{r: r, remaining: limits.MaxArchiveBytes}
	gz, err := gzip.NewReader(counted)
	if err != nil {
		return "", fmt.Errorf("open gzip stream: %w", sizeErr(err))
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	top := ""
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read tar entry: %w", sizeErr(err))
		}

		name, err := entryName(hdr.Name)
		if err != nil {
			return "", err
		}
		if name == "" {
			continue
		}
		first := strings.SplitN(name, "/", 2)[0]
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if top == "" {
			top = first
		} else if first != top {
			return "", fmt.Errorf("%w: found %q and %q", ErrNoCrateRoot, top, first)
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if hdr.Size > limits.MaxFileBytes {
				return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, hdr.Size)
			}
			if err := writeEntry(target, tr, limits.MaxFileBytes); err != nil {
				return "", sizeErr(err)
			}
		case tar.TypeSymlink, tar.TypeLink:
			if linkEscapes(name, hdr.Linkname, hdr.Typeflag == tar.TypeLink) {
				return "", fmt.Errorf("%w: link %s -> %s", ErrUnsafePath, name, hdr.Linkname)
			}
		default:
			// Devices, fifos and the like carry no source.
		}
	}

	if top == "" {
		return "", ErrNoCrateRoot
	}
	root := filepath.Join(dest, top)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return "", ErrNoCrateRoot
	}
	return root, nil
}

// entryName cleans an archive path and rejects absolute or escaping names.
func entryName(raw string) (string, error) {
	name := strings.ReplaceAll(raw, "\\", "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(raw) || (len(name) > 1 && name[1] == ':') {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, raw)
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, raw)
	}
	return clean, nil
}

func linkEscapes(name, link string, hard bool) bool {
	link = strings.ReplaceAll(link, "\\", "/")
	if strings.HasPrefix(link, "/") {
		return true
	}
	var resolved string
	if hard {
		resolved = path.Clean(link)
	} else {
		resolved = path.Clean(path.Join(path.Dir(name), link))
	}
	return resolved == ".." || strings.HasPrefix(resolved, "../")
}

func writeEntry(target string, r io.Reader, max int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(r, max+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n > max {
		return fmt.Errorf("%w: %s", ErrTooLarge, target)
	}
	return nil
}

// limitedReader fails instead of returning EOF when the cap is hit, so a
// truncated read is never mistaken for a complete archive.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		if n, err := l.r.Read(probe[:]); n == 0 && errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, errLimitReached
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func sizeErr(err error) error {
	if errors.Is(err, errLimitReached) {
		return ErrTooLarge
	}
	return err
}
