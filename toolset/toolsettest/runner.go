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

// Package toolsettest provides a scripted toolset.Runner for tests.
package toolsettest

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"
)

// Handler simulates a tool. It gets the arguments and standard input.
type Handler func(args []string, stdin string) (stdout, stderr string, err error)

// Call records a single invocation.
type Call struct {
	Tool  string
	Args  []string
	Stdin string
}

// ExitStatus is an error carrying a process exit code.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// ExitCode returns the exit code.
func (e ExitStatus) ExitCode() int {
	return int(e)
}

// Runner dispatches on the base name of the executable.
type Runner struct {
	Handlers map[string]Handler
	Calls    []Call
}

// Run implements toolset.Runner.
func (r *Runner) Run(_ context.Context, p string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var in []byte
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		in = b
	}

	name := path.Base(p)
	r.Calls = append(r.Calls, Call{Tool: name, Args: args, Stdin: string(in)})

	handler, ok := r.Handlers[name]
	if !ok {
		return fmt.Errorf("no handler for %s", name)
	}
	out, errOut, err := handler(args, string(in))
	if _, werr := io.WriteString(stdout, out); werr != nil {
		return werr
	}
	if _, werr := io.WriteString(stderr, errOut); werr != nil {
		return werr
	}
	return err
}

// Count returns how often a tool was called.
func (r *Runner) Count(tool string) int {
	n := 0
	for _, call := range r.Calls {
		if call.Tool == tool {
			n++
		}
	}
	return n
}

// LookPath pretends that exactly the given executables are installed in
// /usr/bin.
func LookPath(installed ...string) func(file string) (string, error) {
	return func(file string) (string, error) {
		for _, name := range installed {
			if strings.EqualFold(name, file) {
				return "/usr/bin/" + name, nil
			}
		}
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
}
