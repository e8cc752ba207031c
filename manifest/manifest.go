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

// Package manifest records the tool executions of a collection and the files
// they produced in a sqlite database next to the output files.
//
// Every execution is stored as a process element and every output file as a
// file element with its size and hashes, so the output directory can be
// checked for missing, modified or unexpected files later on.
package manifest

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/fatih/structs"
	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// FileName is the name of the manifest inside the output directory.
const FileName = "manifest.db"

const manifestVersion = 1
const manifestApplicationID = 2003790956
const discriminator = "type"
const timeFormat = "2006-01-02T15:04:05.000Z"

// ErrManifestExists is returned by New for an existing manifest.
var ErrManifestExists = errors.New("manifest already exists")

// ErrManifestNotExists is returned by Open for a missing manifest.
var ErrManifestNotExists = errors.New("manifest does not exist")

// ErrElementNotExists is returned by Get for unknown ids.
var ErrElementNotExists = errors.New("element does not exist")

// Manifest is a sqlite database of process and file elements.
type Manifest struct {
	cursor  *sqlite.Conn
	schemas map[string]*jsonschema.Schema
}

// New creates a new manifest.
func New(url string) (*Manifest, error) {
	return open(url, true)
}

// Open opens an existing manifest.
func Open(url string) (*Manifest, error) {
	return open(url, false)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	_, err = stmt.Step()
	if err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	return exec(conn, "PRAGMA "+name+" = "+fmt.Sprint(i))
}

func exec(conn *sqlite.Conn, query string) error {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	if _, err = stmt.Step(); err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*Manifest, error) { // nolint:gocyclo
	if url != ":memory:" {
		exists := true
		_, err := os.Stat(url)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}

		if create && exists {
			return nil, errors.Wrap(ErrManifestExists, url)
		}
		if !create && !exists {
			return nil, errors.Wrap(ErrManifestNotExists, url)
		}

		if create {
			if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
				return nil, err
			}
			slog.Info("creating manifest", "path", url)
			f, err := os.Create(url) // #nosec
			if err != nil {
				return nil, err
			}
			if err := f.Close(); err != nil {
				return nil, err
			}
		}
	}

	m := &Manifest{}
	var err error
	m.schemas, err = loadSchemas()
	if err != nil {
		return nil, err
	}

	m.cursor, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}

	if create {
		if err := m.setup(); err != nil {
			m.cursor.Close() // nolint:errcheck
			return nil, err
		}
		return m, nil
	}

	if err := m.check(); err != nil {
		m.cursor.Close() // nolint:errcheck
		return nil, err
	}
	return m, nil
}

func (m *Manifest) setup() error {
	if err := setPragma(m.cursor, "application_id", manifestApplicationID); err != nil {
		return err
	}
	if err := setPragma(m.cursor, "user_version", manifestVersion); err != nil {
		return err
	}
	return exec(m.cursor, "CREATE TABLE IF NOT EXISTS `elements` "+
		"(id TEXT PRIMARY KEY, type TEXT NOT NULL, json TEXT NOT NULL, insert_time TEXT NOT NULL)")
}

func (m *Manifest) check() error {
	applicationID, err := pragma(m.cursor, "application_id")
	if err != nil {
		return err
	}
	if applicationID != manifestApplicationID {
		msg := "wrong file format (application_id is %d, requires %d)"
		return fmt.Errorf(msg, applicationID, manifestApplicationID)
	}

	version, err := pragma(m.cursor, "user_version")
	if err != nil {
		return err
	}
	if version != manifestVersion {
		msg := "wrong file format (user_version is %d, requires %d)"
		return fmt.Errorf(msg, version, manifestVersion)
	}
	return nil
}

// Insert validates and adds a single element. It returns the element id.
func (m *Manifest) Insert(element JSONElement) (string, error) {
	id := gjson.GetBytes(element, "id")
	if !id.Exists() {
		return "", errors.New("element needs to have an id")
	}

	flaws, err := m.validateElementSchema(element)
	if err != nil {
		return "", err
	}
	if len(flaws) > 0 {
		return "", fmt.Errorf("element could not be validated [%s]", strings.Join(flaws, ","))
	}

	stmt, err := m.cursor.Prepare("INSERT INTO `elements` (id, type, json, insert_time) VALUES ($id, $type, $json, $time)")
	if err != nil {
		return "", errors.Wrap(err, "could not prepare insert")
	}
	stmt.SetText("$id", id.String())
	stmt.SetText("$type", gjson.GetBytes(element, discriminator).String())
	stmt.SetText("$json", string(element))
	stmt.SetText("$time", time.Now().UTC().Format(timeFormat))
	if _, err = stmt.Step(); err != nil {
		return "", errors.Wrapf(err, "could not insert %s", id.String())
	}
	return id.String(), stmt.Finalize()
}

// InsertStruct converts a Go struct to an element and inserts it.
func (m *Manifest) InsertStruct(element interface{}) (string, error) {
	fields := lower(structs.Map(element)).(map[string]interface{})
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return m.Insert(b)
}

// Get retrieves a single element.
func (m *Manifest) Get(id string) (JSONElement, error) {
	stmt, err := m.cursor.Prepare("SELECT json FROM `elements` WHERE id = $id")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$id", id)

	elements, err := rowsToElements(stmt)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errors.Wrap(ErrElementNotExists, id)
	}
	return elements[0], nil
}

// Select retrieves all elements of a type in insertion order.
func (m *Manifest) Select(elementType string) ([]JSONElement, error) {
	stmt, err := m.cursor.Prepare("SELECT json FROM `elements` WHERE type = $type ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$type", elementType)
	return rowsToElements(stmt)
}

// All returns every element in insertion order.
func (m *Manifest) All() ([]JSONElement, error) {
	stmt, err := m.cursor.Prepare("SELECT json FROM `elements` ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	return rowsToElements(stmt)
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.cursor.Close()
}

func rowsToElements(stmt *sqlite.Stmt) ([]JSONElement, error) {
	elements := []JSONElement{}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		elements = append(elements, JSONElement(stmt.GetText("json")))
	}
	return elements, stmt.Finalize()
}

/* ################################
#   Validate
################################ */

// Validate checks the output files in fs against the manifest. Missing files,
// wrong sizes or hashes and files not referenced by any element are reported
// as flaws.
func (m *Manifest) Validate(fsys afero.Fs) (flaws []string, err error) {
	flaws = []string{}
	expectedFiles := map[string]bool{}

	elements, err := m.All()
	if err != nil {
		return nil, err
	}
	for _, element := range elements {
		elementFlaws, elementExpectedFiles, err := m.validateElement(fsys, element)
		if err != nil {
			return nil, err
		}
		flaws = append(flaws, elementFlaws...)
		for _, expectedFile := range elementExpectedFiles {
			expectedFiles[filepath.ToSlash(expectedFile)] = true
		}
	}

	matches, err := fsdoublestar.Glob(afero.NewIOFS(fsys), "**")
	if err != nil {
		return nil, errors.Wrap(err, "could not list output files")
	}

	foundFiles := map[string]bool{}
	var additionalFiles []string
	for _, match := range matches {
		info, err := fs.Stat(afero.NewIOFS(fsys), match)
		if err != nil || info.IsDir() || strings.HasPrefix(path(match), FileName) {
			continue
		}
		foundFiles[path(match)] = true
		if !expectedFiles[path(match)] {
			additionalFiles = append(additionalFiles, path(match))
		}
	}
	sort.Strings(additionalFiles)
	if len(additionalFiles) > 0 {
		flaws = append(flaws, fmt.Sprintf("additional files: ('%s')", strings.Join(additionalFiles, "', '")))
	}

	var missingFiles []string
	for expectedFile := range expectedFiles {
		if !foundFiles[expectedFile] {
			missingFiles = append(missingFiles, expectedFile)
		}
	}
	sort.Strings(missingFiles)
	if len(missingFiles) > 0 {
		flaws = append(flaws, fmt.Sprintf("missing files: ('%s')", strings.Join(missingFiles, "', '")))
	}
	return flaws, nil
}

func path(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(name), "/")
}

func (m *Manifest) validateElement(fsys afero.Fs, element JSONElement) (flaws []string, expectedFiles []string, err error) { // nolint:gocyclo
	schemaFlaws, err := m.validateElementSchema(element)
	if err != nil {
		return nil, nil, err
	}
	flaws = append(flaws, schemaFlaws...)

	var fields map[string]interface{}
	if err := json.Unmarshal(element, &fields); err != nil {
		return nil, nil, err
	}

	for field, value := range fields {
		if !strings.HasSuffix(field, "_path") {
			continue
		}
		exportPath, ok := value.(string)
		if !ok {
			flaws = append(flaws, fmt.Sprintf("%s is not a string", field))
			continue
		}
		if strings.Contains(exportPath, "..") {
			flaws = append(flaws, fmt.Sprintf("'..' in %s", exportPath))
			continue
		}
		expectedFiles = append(expectedFiles, path(exportPath))

		exists, err := afero.Exists(fsys, exportPath)
		if err != nil {
			return nil, nil, err
		}
		if !exists || field != "export_path" {
			continue
		}

		if size, ok := fields["size"]; ok {
			fi, err := fsys.Stat(exportPath)
			if err != nil {
				return nil, nil, err
			}
			if int64(size.(float64)) != fi.Size() {
				flaws = append(flaws, fmt.Sprintf("wrong size for %s (is %d, expected %d)", exportPath, fi.Size(), int64(size.(float64))))
			}
		}

		if hashes, ok := fields["hashes"].(map[string]interface{}); ok {
			hashFlaws, err := validateHashes(fsys, exportPath, hashes)
			if err != nil {
				return nil, nil, err
			}
			flaws = append(flaws, hashFlaws...)
		}
	}
	return flaws, expectedFiles, nil
}

func validateHashes(fsys afero.Fs, exportPath string, hashes map[string]interface{}) (flaws []string, err error) {
	algorithms := make([]string, 0, len(hashes))
	for algorithm := range hashes {
		algorithms = append(algorithms, algorithm)
	}
	sort.Strings(algorithms)

	for _, algorithm := range algorithms {
		var h hash.Hash
		switch algorithm {
		case "MD5":
			h = md5.New() // #nosec
		case "SHA-1", "SHA1":
			h = sha1.New() // #nosec
		default:
			flaws = append(flaws, fmt.Sprintf("unsupported hash %s for %s", algorithm, exportPath))
			continue
		}

		f, err := fsys.Open(exportPath)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(h, f)
		f.Close() // nolint:errcheck
		if err != nil {
			return nil, err
		}

		if fmt.Sprintf("%x", h.Sum(nil)) != hashes[algorithm] {
			flaws = append(flaws, fmt.Sprintf("hashvalue mismatch %s for %s", algorithm, exportPath))
		}
	}
	return flaws, nil
}
