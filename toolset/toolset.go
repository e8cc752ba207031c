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

// Package toolset binds logical tool names to executables on the host and runs
// them with captured output.
//
// A binding is resolved the first time the tool is needed and the result is
// kept for the lifetime of the Toolset, so a run probes the search path at most
// once per tool. A failed resolution is permanent.
package toolset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrUnknownTool is returned for tool names that were never registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrOutputExists is returned when an output name is written twice in one run.
var ErrOutputExists = errors.New("output already written")

// ErrNoOutput is returned for output-bearing invocations on a Toolset without
// an output filesystem.
var ErrNoOutput = errors.New("no output directory")

// Tool describes an external program by its logical name and the executable
// names it may be installed under.
type Tool struct {
	Name         string
	Binaries     []string
	HowToInstall string
}

func (t Tool) binaries() []string {
	if len(t.Binaries) == 0 {
		return []string{t.Name}
	}
	return t.Binaries
}

// MissingToolError reports that none of a tool's executables is installed.
type MissingToolError struct {
	Tool         string
	HowToInstall string
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("missing '%s', please %s", e.Tool, e.HowToInstall)
}

// ExecError reports a tool that exited unsuccessfully.
type ExecError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("error while running command `%s`: %s", strings.Join(e.Command, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type state int

const (
	unresolved state = iota
	resolved
	failed
)

type binding struct {
	tool  Tool
	state state
	path  string
	err   error
}

// Transform reshapes captured tool output before it is returned or written.
// It may run further tools, hence the context and the error.
type Transform func(ctx context.Context, output string) (string, error)

// Invocation is a single call of a registered tool.
type Invocation struct {
	Tool string
	Args []string
	// Input is fed to the standard input of the tool if not empty.
	Input string
	// Output is the file name inside the output filesystem. If empty the
	// (transformed) output is returned instead of written.
	Output    string
	Transform Transform
	// Artifact names the collected artifact, it is only passed on to the
	// observer.
	Artifact string
}

// Execution describes a finished, output-bearing tool run.
type Execution struct {
	Tool     string
	Path     string
	Args     []string
	Artifact string
	Output   string
	Started  time.Time
	Duration time.Duration
	ExitCode int
	Stderr   string
}

// CommandLine returns the executed command as a single string.
func (e Execution) CommandLine() string {
	return strings.Join(append([]string{e.Path}, e.Args...), " ")
}

// Observer is called after an output file was written.
type Observer func(ctx context.Context, execution Execution) error

// Option configures a Toolset.
type Option func(*Toolset)

// WithLookPath replaces exec.LookPath for resolving executables.
func WithLookPath(lookPath func(file string) (string, error)) Option {
	return func(ts *Toolset) { ts.lookPath = lookPath }
}

// WithRunner replaces the process runner.
func WithRunner(runner Runner) Option {
	return func(ts *Toolset) { ts.runner = runner }
}

// WithOutput sets the filesystem output files are written to. Names are
// relative to its root.
func WithOutput(fs afero.Fs) Option {
	return func(ts *Toolset) { ts.output = fs }
}

// WithObserver registers a callback for every written output.
func WithObserver(observer Observer) Option {
	return func(ts *Toolset) { ts.observer = observer }
}

// Toolset is a registry of tool bindings. It is not safe for concurrent use.
type Toolset struct {
	bindings map[string]*binding
	lookPath func(file string) (string, error)
	runner   Runner
	output   afero.Fs
	observer Observer
	written  map[string]bool
}

// New creates a Toolset for the given tools. Nothing is resolved yet.
func New(tools []Tool, opts ...Option) *Toolset {
	ts := &Toolset{
		bindings: map[string]*binding{},
		lookPath: exec.LookPath,
		runner:   ExecRunner{},
		written:  map[string]bool{},
	}
	for _, tool := range tools {
		ts.bindings[tool.Name] = &binding{tool: tool}
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

// Resolve returns the executable path of a tool. The search path is only
// probed on the first call for each tool.
func (ts *Toolset) Resolve(name string) (string, error) {
	b, ok := ts.bindings[name]
	if !ok {
		return "", errors.Wrap(ErrUnknownTool, name)
	}

	switch b.state {
	case resolved:
		return b.path, nil
	case failed:
		return "", b.err
	}

	binaries := b.tool.binaries()
	for _, binary := range binaries {
		p, err := ts.lookPath(binary)
		if err == nil {
			b.state, b.path = resolved, p
			slog.Debug("resolved tool", "tool", name, "path", p)
			return p, nil
		}
	}

	b.state = failed
	b.err = &MissingToolError{Tool: binaries[0], HowToInstall: b.tool.HowToInstall}
	return "", b.err
}

// ResolveAll resolves the given tools and returns the first failure.
func (ts *Toolset) ResolveAll(names ...string) error {
	for _, name := range names {
		if _, err := ts.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}

// Run executes an invocation. A non-zero exit status is returned as
// *ExecError. If inv.Output is set, the result is written to that file and an
// empty string is returned.
func (ts *Toolset) Run(ctx context.Context, inv Invocation) (string, error) {
	path, err := ts.Resolve(inv.Tool)
	if err != nil {
		return "", err
	}

	if inv.Output != "" {
		if ts.output == nil {
			return "", errors.Wrap(ErrNoOutput, inv.Output)
		}
		if ts.written[inv.Output] {
			return "", errors.Wrap(ErrOutputExists, inv.Output)
		}
	}

	var stdin io.Reader
	if inv.Input != "" {
		stdin = strings.NewReader(inv.Input)
	}
	var stdout, stderr bytes.Buffer

	execution := Execution{
		Tool:     inv.Tool,
		Path:     path,
		Args:     inv.Args,
		Artifact: inv.Artifact,
		Output:   inv.Output,
		Started:  time.Now().UTC(),
	}
	err = ts.runner.Run(ctx, path, inv.Args, stdin, &stdout, &stderr)
	execution.Duration = time.Since(execution.Started)
	execution.Stderr = stderr.String()
	if err != nil {
		execErr := &ExecError{
			Command:  append([]string{path}, inv.Args...),
			ExitCode: exitCode(err),
			Stderr:   stderr.String(),
			Err:      err,
		}
		slog.Error("error while running command", "command", execution.CommandLine(), "stderr", execErr.Stderr)
		return "", execErr
	}

	result := stdout.String()
	if inv.Transform != nil {
		result, err = inv.Transform(ctx, result)
		if err != nil {
			return "", err
		}
	}

	if inv.Output == "" {
		return result, nil
	}

	if err := afero.WriteFile(ts.output, inv.Output, []byte(result), 0644); err != nil {
		return "", errors.Wrapf(err, "could not write %s", inv.Output)
	}
	ts.written[inv.Output] = true

	if ts.observer != nil {
		if err := ts.observer(ctx, execution); err != nil {
			return "", errors.Wrapf(err, "could not record %s", inv.Output)
		}
	}
	return "", nil
}

func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}
