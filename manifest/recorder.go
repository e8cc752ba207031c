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

package manifest

import (
	"context"
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/windowstimeline/toolset"
)

// Recorder adds an execution and its output file to a manifest. Its Record
// method can be registered with toolset.WithObserver.
type Recorder struct {
	Manifest *Manifest
	Fs       afero.Fs
}

// Record stores a file element for the output of the execution and a process
// element for the execution itself.
func (r *Recorder) Record(_ context.Context, execution toolset.Execution) error {
	file := NewFile()
	file.Name = filepath.Base(execution.Output)
	file.ExportPath = filepath.ToSlash(execution.Output)
	file.Artifact = execution.Artifact

	size, hashes, err := hashFile(r.Fs, execution.Output)
	if err != nil {
		file.AddError(errors.Wrap(err, "could not hash output").Error())
	} else {
		file.Size = float64(size)
		file.Hashes = hashes
	}
	if fi, err := r.Fs.Stat(execution.Output); err == nil {
		file.Mtime = fi.ModTime().UTC().Format(timeFormat)
	}

	if _, err := r.Manifest.InsertStruct(file); err != nil {
		return errors.Wrapf(err, "could not record %s", execution.Output)
	}

	process := NewProcess()
	process.Name = execution.Tool
	process.Artifact = execution.Artifact
	process.CreatedTime = execution.Started.UTC().Format(timeFormat)
	process.CommandLine = execution.CommandLine()
	process.Arguments = execution.Args
	process.StdoutPath = file.ExportPath
	process.ReturnCode = float64(execution.ExitCode)
	process.Duration = execution.Duration.Round(time.Millisecond).Seconds()
	if execution.Stderr != "" {
		process.AddError(fmt.Sprintf("%s: %s", execution.Tool, execution.Stderr))
	}

	_, err = r.Manifest.InsertStruct(process)
	return errors.Wrapf(err, "could not record %s", execution.CommandLine())
}

func hashFile(fs afero.Fs, name string) (int64, map[string]interface{}, error) {
	f, err := fs.Open(name)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	md5hash, sha1hash := md5.New(), sha1.New() // #nosec
	size, err := io.Copy(io.MultiWriter(md5hash, sha1hash), f)
	if err != nil {
		return 0, nil, err
	}
	return size, map[string]interface{}{
		"MD5":   fmt.Sprintf("%x", md5hash.Sum(nil)),
		"SHA-1": fmt.Sprintf("%x", sha1hash.Sum(nil)),
	}, nil
}
