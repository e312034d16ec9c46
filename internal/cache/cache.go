// Package cache implements cache persistence (spec.md §4.8): moving a
// completed per-host working directory under a deterministic cache
// root path, computed from a pattern language of %h/%N/%P placeholders
// plus strftime codes, with atomic per-file replace when the
// destination already exists.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ncruces/go-strftime"
)

var placeholderPattern = regexp.MustCompile(`([^%]|^)(%h|%P|%N)`)

// HostHash returns the cache pattern's %h placeholder value: the md5
// hex digest of the host string, matching the original implementation's
// str_hash helper (`_examples/original_source/skonfig/util/__init__.py`).
func HostHash(host string) string {
	sum := md5.Sum([]byte(host))
	return hex.EncodeToString(sum[:])
}

// SubPath expands pattern's %h/%N/%P placeholders and then applies
// strftime codes against start, producing the path a run's cache entry
// is stored under relative to the cache root (spec.md §4.8).
func SubPath(pattern, host string, start time.Time) string {
	if pattern == "" {
		return HostHash(host)
	}

	expanded := placeholderPattern.ReplaceAllStringFunc(pattern, func(m string) string {
		groups := placeholderPattern.FindStringSubmatch(m)
		lead, code := groups[1], groups[2]
		var repl string
		switch code {
		case "%P":
			repl = strconv.Itoa(os.Getpid())
		case "%h":
			repl = HostHash(host)
		case "%N":
			repl = host
		}
		return lead + repl
	})

	expanded = strftime.Format(expanded, start)

	expanded = strings.TrimLeft(expanded, string(filepath.Separator))
	if expanded == "" {
		return HostHash(host)
	}
	return expanded
}

// Meta is the small canonical record written to
// `<cache-entry>/.skonfig-meta.cbor` (SPEC_FULL §4.8 ADDED), giving a
// future dump tool a single deterministic artifact instead of needing
// to re-walk the moved tree.
type Meta struct {
	Host        string
	StartUnix   int64
	ObjectCount int
	AnyChanged  bool
}

// MarshalCBOR produces a deterministic encoding the same way the
// teacher's planfmt.CanonicalPlan.MarshalBinary does: CBOR's
// core-deterministic encoding options over a field-sorted struct, so
// two identical Meta values always hash identically.
func (m Meta) MarshalCBOR() ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cache: building cbor encoder: %w", err)
	}
	type metaAlias Meta
	return encMode.Marshal(metaAlias(m))
}

// Save moves workDir under root/SubPath(pattern, host, start), replacing
// any existing destination atomically file-by-file (spec.md §4.8), then
// writes target_host and .skonfig-meta.cbor into the entry.
func Save(workDir, root, pattern, host string, start time.Time, meta Meta) (string, error) {
	dest := filepath.Join(root, SubPath(pattern, host, start))

	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", err
		}
		if err := os.Rename(workDir, dest); err != nil {
			return "", err
		}
	} else {
		if err := replaceEntries(workDir, dest); err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(filepath.Join(dest, "target_host"), []byte(host+"\n"), 0o644); err != nil {
		return "", err
	}

	b, err := meta.MarshalCBOR()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dest, ".skonfig-meta.cbor"), b, 0o644); err != nil {
		return "", err
	}

	return dest, nil
}

// replaceEntries moves every top-level entry of src into dst, removing
// any existing entry of the same name first (spec.md §4.8 "entries are
// replaced atomically file-by-file").
func replaceEntries(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if err := os.RemoveAll(dstPath); err != nil {
			return fmt.Errorf("cache: cannot delete old cache entry %s: %w", dstPath, err)
		}
		if err := os.Rename(srcPath, dstPath); err != nil {
			return err
		}
	}
	return os.RemoveAll(src)
}
