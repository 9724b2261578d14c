// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingdir writes files atomically by staging them in a temporary
// location alongside their destination.
package stagingdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// F is a staged file.
//
// While F is active, it resides in a temporary location. Once finished, F can
// either be committed or destroyed. On commit, it is atomically moved into its
// destination; on destroy, it is deleted.
type F struct {
	*os.File

	// path is the path of the staged file, empty once committed or destroyed.
	path string
}

// New creates a staged file in dir. The temporary name starts with prefix.
//
// dir should be on the same filesystem as the eventual destination, so that
// Commit is a rename.
func New(dir, prefix string) (*F, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating staging directory %q", dir)
	}

	fd, err := os.CreateTemp(dir, "."+prefix+"-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating staged file")
	}
	return &F{File: fd, path: fd.Name()}, nil
}

// Path returns the staged file's temporary path.
func (sf *F) Path() string { return sf.path }

// Destroy closes and deletes the staged file.
func (sf *F) Destroy() error {
	if sf.path == "" {
		// There is nothing to destroy.
		return nil
	}

	_ = sf.File.Close()
	if err := os.Remove(sf.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	sf.path = "" // Destroyed.
	return nil
}

// Commit syncs and closes the staged file, then atomically moves it to dest,
// replacing anything already there.
func (sf *F) Commit(dest string) error {
	// If we've already been committed, this is an error.
	if sf.path == "" {
		return errors.New("invalid staged file")
	}

	if err := sf.File.Sync(); err != nil {
		return errors.Wrap(err, "syncing staged file")
	}
	if err := sf.File.Close(); err != nil {
		return errors.Wrap(err, "closing staged file")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "creating destination directory for %q", dest)
	}
	if err := os.Rename(sf.path, dest); err != nil {
		return errors.Wrapf(err, "moving staged file into place (%q => %q)", sf.path, dest)
	}
	sf.path = "" // Path no longer exists, committed.
	return nil
}

// WriteFile atomically writes data to dest.
func WriteFile(dest string, data []byte) error {
	sf, err := New(filepath.Dir(dest), filepath.Base(dest))
	if err != nil {
		return err
	}
	defer func() { _ = sf.Destroy() }()

	if _, err := sf.Write(data); err != nil {
		return errors.Wrap(err, "writing staged file")
	}
	return sf.Commit(dest)
}
