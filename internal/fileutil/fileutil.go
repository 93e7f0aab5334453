// Package fileutil handles the engine's filesystem edges: corpus
// discovery, xz-compressed inputs, atomic output writes, and quarantine
// moves.
package fileutil

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
)

// Discover returns the corpus documents under dir: every *.xml and
// *.xml.xz file, recursively, in lexical path order. The order is the
// batch processing order, so it must be stable across runs.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsDocument(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "discovering documents under %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// IsDocument reports whether path names a corpus document.
func IsDocument(path string) bool {
	return strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".xml.xz")
}

// ReadDocument reads a document, transparently decompressing .xml.xz.
func ReadDocument(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, errors.NewMalformed(path, "xz container", err)
		}
		r = xr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewMalformed(path, "reading document", err)
	}
	return data, nil
}

// OutputName maps an input document name to its output name: compressed
// inputs are written back as plain .xml.
func OutputName(input string) string {
	name := filepath.Base(input)
	return strings.TrimSuffix(name, ".xz")
}

// WriteAtomic writes data to path through a temp file in the same
// directory and a rename, so readers never observe a partial document.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// Quarantine moves a document into the quarantine directory, keeping its
// base name. An existing quarantined file with the same name is
// overwritten; the newest failure is the interesting one.
func Quarantine(path, quarantineDir string) (string, error) {
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", quarantineDir)
	}
	dest := filepath.Join(quarantineDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		// Cross-device moves fall back to copy and remove.
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return "", errors.Wrapf(err, "quarantining %s", path)
		}
		if werr := os.WriteFile(dest, data, 0o644); werr != nil {
			return "", errors.Wrapf(werr, "quarantining %s", path)
		}
		if rerr := os.Remove(path); rerr != nil {
			return "", errors.Wrapf(rerr, "removing quarantined %s", path)
		}
	}
	return dest, nil
}
