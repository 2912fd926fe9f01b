package installer

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/packmill/packmill/internal/catalog"
)

// extractArchive unpacks the downloaded artifact into dest. The format is
// chosen from the artifact URL, not from the temp file name.
func extractArchive(ctx context.Context, url, archive, dest string, onProgress func(float64)) error {
	name := strings.ToLower(url)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(ctx, archive, dest, onProgress)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTar(ctx, archive, dest, gzipReader, onProgress)
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return extractTar(ctx, archive, dest, xzReader, onProgress)
	case strings.HasSuffix(name, ".tar.zst"):
		return extractTar(ctx, archive, dest, zstdReader, onProgress)
	case strings.HasSuffix(name, ".tar"):
		return extractTar(ctx, archive, dest, nil, onProgress)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(url))
	}
}

func gzipReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func xzReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), nil
}

func zstdReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// extractTar unpacks a tar stream, optionally decompressed. Progress is
// compressed bytes consumed against the archive file size; when the size
// is unknown a single indeterminate value is reported instead.
func extractTar(ctx context.Context, archive, dest string, decompress func(io.Reader) (io.ReadCloser, error), onProgress func(float64)) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}
	if total <= 0 && onProgress != nil {
		onProgress(catalog.ProgressIndeterminate)
		onProgress = nil
	}

	counter := &countingReader{r: f}
	var src io.Reader = counter
	if decompress != nil {
		rc, err := decompress(counter)
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		defer rc.Close()
		src = rc
	}

	lastPct := -1
	report := func() {
		if onProgress == nil {
			return
		}
		pct := int(float64(counter.n) / float64(total) * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != lastPct {
			lastPct = pct
			onProgress(float64(pct))
		}
	}

	tr := tar.NewReader(src)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			// Keep directories writable so the rest of the archive can land
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := safeLink(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("failed to create hard link: %w", err)
			}
		}

		report()
	}

	if onProgress != nil && lastPct != 100 {
		onProgress(100)
	}
	return nil
}

// extractZip unpacks a zip archive. Progress is entries done over total
// entries.
func extractZip(ctx context.Context, archive, dest string, onProgress func(float64)) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	total := len(zr.File)
	lastPct := -1
	for done, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}

		switch {
		case zf.FileInfo().IsDir():
			if err := os.MkdirAll(target, zf.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case zf.Mode()&os.ModeSymlink != 0:
			rc, err := zf.Open()
			if err != nil {
				return fmt.Errorf("failed to read archive entry: %w", err)
			}
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("failed to read archive entry: %w", err)
			}
			if err := safeLink(dest, target, string(link)); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := os.Symlink(string(link), target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		default:
			rc, err := zf.Open()
			if err != nil {
				return fmt.Errorf("failed to read archive entry: %w", err)
			}
			werr := writeEntry(target, rc, zf.Mode().Perm())
			rc.Close()
			if werr != nil {
				return werr
			}
		}

		if onProgress != nil && total > 0 {
			pct := (done + 1) * 100 / total
			if pct != lastPct {
				lastPct = pct
				onProgress(float64(pct))
			}
		}
	}
	return nil
}

// safeJoin joins an archive entry name onto dest, refusing entries that
// would escape it.
func safeJoin(dest, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return filepath.Join(dest, cleaned), nil
}

// safeLink validates a symlink target, refusing absolute targets and
// relative ones that resolve outside dest from the link's own directory.
// Every link that lands on disk then points inside dest, so a later entry
// cannot write through one to the outside.
func safeLink(dest, linkPath, target string) error {
	if filepath.IsAbs(target) {
		return fmt.Errorf("archive link escapes destination: %s", target)
	}
	resolved := filepath.Join(filepath.Dir(linkPath), target)
	if resolved != dest && !strings.HasPrefix(resolved, dest+string(os.PathSeparator)) {
		return fmt.Errorf("archive link escapes destination: %s", target)
	}
	return nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
