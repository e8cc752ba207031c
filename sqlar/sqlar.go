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

// Package sqlar writes and reads SQLite archives. Files are stored in the
// sqlar table of a sqlite database, their content zlib compressed when
// this saves space.
package sqlar

import (
	"bytes"
	"compress/zlib"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);`

// Archive is an open SQLite archive.
type Archive struct {
	cursor *sqlite.Conn
}

// New opens or creates the archive at url.
func New(url string) (*Archive, error) {
	var err error
	a := &Archive{}

	a.cursor, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}

	if err := exec(a.cursor.Prep(table)); err != nil {
		a.cursor.Close() // nolint:errcheck
		return nil, err
	}
	return a, nil
}

// Add stores a file. Existing files with the same name are replaced.
func (a *Archive) Add(name string, mode os.FileMode, mtime time.Time, data []byte) error {
	name = normalizeFilename(name)

	blob, err := compress(data)
	if err != nil {
		return errors.Wrapf(err, "could not compress %s", name)
	}

	stmt := a.cursor.Prep(`REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES ($name, $mode, $mtime, $sz, $data)`)
	stmt.SetText("$name", name)
	stmt.SetInt64("$mode", int64(mode))
	stmt.SetInt64("$mtime", mtime.Unix())
	stmt.SetInt64("$sz", int64(len(data)))
	if len(blob) == 0 {
		// an empty []byte would bind NULL, which marks directories
		stmt.SetZeroBlob("$data", 0)
	} else {
		stmt.SetBytes("$data", blob)
	}
	return errors.Wrapf(exec(stmt), "could not add %s", name)
}

// Pack adds all regular files of fsys matching the doublestar pattern and
// returns their names.
func (a *Archive) Pack(fsys afero.Fs, pattern string) ([]string, error) {
	iofs := afero.NewIOFS(fsys)
	matches, err := fsdoublestar.Glob(iofs, pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "could not glob %s", pattern)
	}
	sort.Strings(matches)

	var packed []string
	for _, match := range matches {
		info, err := fs.Stat(iofs, match)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}

		data, err := fs.ReadFile(iofs, match)
		if err != nil {
			return nil, err
		}

		slog.Info("pack", "file", match)
		if err := a.Add(match, info.Mode(), info.ModTime(), data); err != nil {
			return nil, err
		}
		packed = append(packed, normalizeFilename(match))
	}
	return packed, nil
}

// List returns all entries of the archive ordered by name.
func (a *Archive) List() ([]os.FileInfo, error) {
	stmt := a.cursor.Prep(`SELECT name, mode, mtime, sz FROM sqlar ORDER BY name`)

	var infos []os.FileInfo
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		} else if !hasRow {
			break
		}

		mode := os.FileMode(stmt.GetInt64("mode"))
		infos = append(infos, &Info{
			name:  stmt.GetText("name"),
			sz:    stmt.GetInt64("sz"),
			mode:  mode,
			mtime: time.Unix(stmt.GetInt64("mtime"), 0),
			dir:   mode.IsDir(),
		})
	}
	return infos, stmt.Reset()
}

// Read returns the uncompressed content of a file.
func (a *Archive) Read(name string) ([]byte, error) {
	name = normalizeFilename(name)

	stmt := a.cursor.Prep(`SELECT sz, data FROM sqlar WHERE name = $name`)
	stmt.SetText("$name", name)

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, err
	} else if !hasRow {
		return nil, errors.Wrap(os.ErrNotExist, name)
	}

	size := stmt.GetInt64("sz")
	blob := make([]byte, stmt.GetLen("data"))
	stmt.GetBytes("data", blob)
	if err := stmt.Reset(); err != nil {
		return nil, err
	}

	if int64(len(blob)) == size {
		return blob, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errors.Wrapf(err, "could not decompress %s", name)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decompress %s", name)
	}
	if int64(len(data)) != size {
		return nil, errors.Errorf("wrong size for %s (is %d, expected %d)", name, len(data), size)
	}
	return data, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	return a.cursor.Close()
}

// Info describes an archive entry.
type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	dir   bool
	name  string
}

// Name returns the full name inside the archive.
func (i *Info) Name() string       { return i.name }
func (i *Info) Size() int64        { return i.sz }
func (i *Info) Mode() os.FileMode  { return i.mode }
func (i *Info) ModTime() time.Time { return i.mtime }
func (i *Info) IsDir() bool        { return i.dir }
func (i *Info) Sys() interface{}   { return nil }

func compress(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zlib.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if buf.Len() >= len(data) {
		return data, nil
	}
	return buf.Bytes(), nil
}

func exec(stmt *sqlite.Stmt) error {
	_, err := stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Reset()
}

// normalizeFilename returns slash separated names without leading slash,
// like the sqlite3 command line tool stores them.
func normalizeFilename(name string) string {
	name = filepath.ToSlash(name)
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
