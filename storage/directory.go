package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nczempin/httpserver-go-uring/errors"
)

// tempPrefix marks uploads still being written. Such names are never served.
const tempPrefix = ".upload-"

// Directory serves files from one flat base directory. Names are single path
// elements; anything that could climb out of the base is rejected.
type Directory struct {
	base string
}

// NewDirectory resolves base to a canonical absolute path. The directory must exist.
func NewDirectory(base string) (*Directory, error) {
	if base == "" {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorNotConfigured, "empty directory", nil)
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorInvalidPath, "cannot resolve "+base, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorInvalidPath, "cannot resolve "+base, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorInvalidPath, "cannot stat "+canonical, err)
	}
	if !info.IsDir() {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorInvalidPath, canonical+" is not a directory", nil)
	}

	return &Directory{base: canonical}, nil
}

// Base returns the canonical base directory
func (d *Directory) Base() string {
	return d.base
}

// resolve maps a file name to a path inside the base directory
func (d *Directory) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") || strings.HasPrefix(name, tempPrefix) {
		return "", errors.NewFilesystemError(
			errors.FilesystemErrorInvalidPath,
			fmt.Sprintf("invalid file name %q", name),
			nil,
		)
	}

	target := filepath.Join(d.base, name)
	if filepath.Dir(target) != d.base {
		return "", errors.NewFilesystemError(
			errors.FilesystemErrorInvalidPath,
			fmt.Sprintf("%q escapes %s", name, d.base),
			nil,
		)
	}

	return target, nil
}

// Read returns the contents of name as raw bytes
func (d *Directory) Read(name string) ([]byte, error) {
	target, err := d.resolve(name)
	if err != nil {
		return nil, err
	}

	// Symlinks are not followed, so a link placed in the directory cannot expose
	// anything outside it. Lstat also keeps FIFOs from blocking the open.
	linfo, err := os.Lstat(target)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "cannot stat "+name, err)
	}
	if !linfo.Mode().IsRegular() {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, name+" is not a regular file", nil)
	}

	f, err := os.OpenFile(target, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "cannot open "+name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "cannot stat "+name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, name+" is not a regular file", nil)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.NewFilesystemError(errors.FilesystemErrorReadFailure, "cannot read "+name, err)
	}

	return data, nil
}

// Write creates or replaces name with data. The content is written to a temporary
// file in the same directory and renamed into place, so concurrent readers see
// either the old or the new content, never a partial write.
func (d *Directory) Write(name string, data []byte) error {
	target, err := d.resolve(name)
	if err != nil {
		return err
	}

	if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, name+" is not a regular file", nil)
	}

	tmp, err := os.CreateTemp(d.base, tempPrefix+"*")
	if err != nil {
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, "cannot create temporary file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, "cannot write "+name, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, "cannot write "+name, err)
	}

	// CreateTemp uses 0600; uploaded files get the usual default
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, "cannot chmod "+name, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.NewFilesystemError(errors.FilesystemErrorWriteFailure, "cannot replace "+name, err)
	}

	return nil
}
