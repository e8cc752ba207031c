// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package locate finds artifacts inside a mounted Windows filesystem.
//
// Acquisition tools do not agree on the case of reconstructed paths (some
// lowercase everything, some keep the original case), so every path component
// is matched case-insensitively. Directory entries are scanned in lexical order
// and the first case-insensitive match wins, even if a later entry matches
// exactly.
package locate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// NTUserDat is the file name of the per-user registry hive.
const NTUserDat = "NTUSER.DAT"

// NotFoundError reports an expected path that does not exist in any case.
type NotFoundError struct {
	Path      string
	Component string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file not found: '%s'", e.Path)
}

// Unwrap makes NotFoundError match os.ErrNotExist.
func (e *NotFoundError) Unwrap() error {
	return os.ErrNotExist
}

// Resolve walks the slash separated expected path below root and returns the
// path with the case found on disk.
func Resolve(fs afero.Fs, root, expected string) (string, error) {
	current := root
	for _, part := range strings.Split(filepath.ToSlash(expected), "/") {
		if part == "" || part == "." {
			continue
		}

		isDir, err := afero.IsDir(fs, current)
		if err != nil && !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "could not stat %s", current)
		}
		if !isDir {
			return "", &NotFoundError{Path: expected, Component: part}
		}

		infos, err := afero.ReadDir(fs, current)
		if err != nil {
			return "", errors.Wrapf(err, "could not list %s", current)
		}

		name, ok := match(infos, part)
		if !ok {
			return "", &NotFoundError{Path: expected, Component: part}
		}
		current = filepath.Join(current, name)
	}
	return current, nil
}

// match expects infos sorted by name, as returned by afero.ReadDir.
func match(infos []os.FileInfo, part string) (string, bool) {
	for _, info := range infos {
		if strings.EqualFold(info.Name(), part) {
			return info.Name(), true
		}
	}
	return "", false
}

// Profile is a user profile directory that contains a user hive.
type Profile struct {
	User string
	Hive string
}

// FindUserProfiles returns every direct subdirectory of usersDir that contains
// an NTUSER.DAT file in any case. Directories without it are skipped.
func FindUserProfiles(fs afero.Fs, usersDir string) ([]Profile, error) {
	dirs, err := afero.ReadDir(fs, usersDir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list %s", usersDir)
	}

	var profiles []Profile
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		profileDir := filepath.Join(usersDir, dir.Name())
		files, err := afero.ReadDir(fs, profileDir)
		if err != nil {
			return nil, errors.Wrapf(err, "could not list %s", profileDir)
		}
		for _, file := range files {
			if file.IsDir() || !strings.EqualFold(file.Name(), NTUserDat) {
				continue
			}
			slog.Info("found profile directory for user", "user", dir.Name())
			profiles = append(profiles, Profile{User: dir.Name(), Hive: filepath.Join(profileDir, file.Name())})
			break
		}
	}
	return profiles, nil
}

// Locator resolves paths relative to a mount point.
type Locator struct {
	fs   afero.Fs
	root string
}

// New creates a Locator for the tree below root.
func New(fs afero.Fs, root string) *Locator {
	return &Locator{fs: fs, root: root}
}

// Find resolves expected. A missing path is an error if failIfMissing is set,
// otherwise it is logged and an empty path is returned.
func (l *Locator) Find(expected string, failIfMissing bool) (string, error) {
	p, err := Resolve(l.fs, l.root, expected)
	if err == nil {
		return p, nil
	}

	var notFound *NotFoundError
	if !failIfMissing && errors.As(err, &notFound) {
		slog.Warn("file not found", "path", expected)
		return "", nil
	}
	return "", err
}

// UserProfiles lists the user profiles below usersDir.
func (l *Locator) UserProfiles(usersDir string) ([]Profile, error) {
	return FindUserProfiles(l.fs, usersDir)
}
