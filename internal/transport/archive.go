package transport

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/opal-lang/skonfig/internal/engine"
	"github.com/opal-lang/skonfig/internal/shquote"
)

// ArchiveMode selects the compression applied to a transfer archive.
type ArchiveMode string

const (
	ArchiveNone ArchiveMode = "none"
	ArchiveGzip ArchiveMode = "gzip"
	ArchiveZstd ArchiveMode = "zstd"
)

// ArchiveFilesLimit is the threshold from §4.1: a source directory with at
// most this many top-level entries bypasses archiving entirely.
const ArchiveFilesLimit = 1

// ArchiveConfig controls whether and how Transfer archives a directory
// before sending it.
type ArchiveConfig struct {
	Enabled bool
	Mode    ArchiveMode
}

// ValidateArchiveMode rejects archive modes with no write-capable library
// anywhere in the grounding corpus (bzip2, xz) as a startup configuration
// error, per SPEC_FULL §4.1.
func ValidateArchiveMode(mode string) (ArchiveMode, error) {
	switch ArchiveMode(mode) {
	case ArchiveNone, ArchiveGzip, ArchiveZstd, "":
		if mode == "" {
			return ArchiveGzip, nil
		}
		return ArchiveMode(mode), nil
	case "bzip2", "xz":
		return "", &engine.ConfigurationError{
			Field: "archive-mode",
			Msg:   fmt.Sprintf("%q has no write-capable library available; use gzip or zstd", mode),
		}
	default:
		return "", &engine.ConfigurationError{Field: "archive-mode", Msg: fmt.Sprintf("unknown archive mode %q", mode)}
	}
}

// shouldArchive reports whether src, a directory, has enough entries to
// warrant archiving under cfg.
func shouldArchive(cfg ArchiveConfig, src string) (bool, error) {
	if !cfg.Enabled {
		return false, nil
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return false, err
	}
	return len(entries) > ArchiveFilesLimit, nil
}

// createArchive tars (and optionally compresses) src into a new temp file,
// returning its path. Caller removes it.
func createArchive(mode ArchiveMode, src string) (path string, err error) {
	f, err := os.CreateTemp("", "skonfig-xfer-*.tar")
	if err != nil {
		return "", err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	var w io.Writer = f
	var closer io.Closer
	switch mode {
	case ArchiveGzip:
		gz := gzip.NewWriter(f)
		w, closer = gz, gz
	case ArchiveZstd:
		zw, zerr := zstd.NewWriter(f)
		if zerr != nil {
			return "", zerr
		}
		w, closer = zw, zw
	case ArchiveNone:
	default:
		return "", fmt.Errorf("createArchive: unsupported mode %q", mode)
	}

	tw := tar.NewWriter(w)
	walkErr := filepath.Walk(src, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(src, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = rel
		if info.IsDir() {
			hdr.Name += "/"
		}
		if hdrErr := tw.WriteHeader(hdr); hdrErr != nil {
			return hdrErr
		}
		if info.IsDir() {
			return nil
		}
		src, openErr := os.Open(p)
		if openErr != nil {
			return openErr
		}
		defer src.Close()
		_, copyErr := io.Copy(tw, src)
		return copyErr
	})
	if walkErr != nil {
		return "", walkErr
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return "", err
		}
	}
	return f.Name(), nil
}

// extractArchiveLine returns the remote shell pipeline that extracts an
// archive of the given mode into dir, used by Remote.Transfer.
func extractArchiveLine(mode ArchiveMode, archivePath, dir string) string {
	switch mode {
	case ArchiveGzip:
		return fmt.Sprintf("tar xzf %s -C %s", shquote.Quote(archivePath), shquote.Quote(dir))
	case ArchiveZstd:
		return fmt.Sprintf("zstd -d -c %s | tar xf - -C %s", shquote.Quote(archivePath), shquote.Quote(dir))
	default:
		return fmt.Sprintf("tar xf %s -C %s", shquote.Quote(archivePath), shquote.Quote(dir))
	}
}

// extractArchiveLocal extracts archivePath (produced by createArchive) into
// dir on the local filesystem, used by Local transfers and tests.
func extractArchiveLocal(ctx context.Context, mode ArchiveMode, archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	switch mode {
	case ArchiveGzip:
		gz, gerr := gzip.NewReader(f)
		if gerr != nil {
			return gerr
		}
		defer gz.Close()
		r = gz
	case ArchiveZstd:
		zr, zerr := zstd.NewReader(f)
		if zerr != nil {
			return zerr
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
