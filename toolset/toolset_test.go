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

package toolset

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/windowstimeline/toolset/toolsettest"
)

var (
	rip      = Tool{Name: "rip", Binaries: []string{"rip", "rip.pl"}, HowToInstall: "install RegRipper as `rip`"}
	mactime2 = Tool{Name: "mactime2", Binaries: []string{"mactime2"}, HowToInstall: "run `cargo install dfir-toolkit`"}
)

func echoRunner() *toolsettest.Runner {
	return &toolsettest.Runner{Handlers: map[string]toolsettest.Handler{
		"rip": func(args []string, _ string) (string, string, error) {
			return strings.Join(args, " "), "", nil
		},
		"rip.pl": func(args []string, _ string) (string, string, error) {
			return "pl " + strings.Join(args, " "), "", nil
		},
		"mactime2": func(_ []string, stdin string) (string, string, error) {
			return strings.ToUpper(stdin), "", nil
		},
	}}
}

func TestToolset_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		tool      string
		want      string
		wantErr   bool
	}{
		{"first alias", []string{"rip", "rip.pl"}, "rip", "/usr/bin/rip", false},
		{"second alias", []string{"rip.pl"}, "rip", "/usr/bin/rip.pl", false},
		{"missing", []string{"mactime2"}, "rip", "", true},
		{"unknown", []string{"rip"}, "regdump", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := New([]Tool{rip, mactime2}, WithLookPath(toolsettest.LookPath(tt.installed...)))
			got, err := ts.Resolve(tt.tool)
			if (err != nil) != tt.wantErr {
				t.Errorf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolset_ResolveMemoized(t *testing.T) {
	probes := 0
	lookPath := func(file string) (string, error) {
		probes++
		if file == "rip" {
			return "/opt/rip", nil
		}
		return "", exec.ErrNotFound
	}
	ts := New([]Tool{rip, mactime2}, WithLookPath(lookPath))

	for i := 0; i < 3; i++ {
		p, err := ts.Resolve("rip")
		require.NoError(t, err)
		assert.Equal(t, "/opt/rip", p)
	}
	assert.Equal(t, 1, probes)

	for i := 0; i < 3; i++ {
		_, err := ts.Resolve("mactime2")
		require.Error(t, err)
	}
	assert.Equal(t, 2, probes, "a failed resolution must not be retried")
}

func TestMissingToolError(t *testing.T) {
	ts := New([]Tool{rip}, WithLookPath(toolsettest.LookPath()))
	err := ts.ResolveAll("rip")

	var missing *MissingToolError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "rip", missing.Tool)
	assert.Equal(t, "missing 'rip', please install RegRipper as `rip`", err.Error())
}

func TestToolset_Run(t *testing.T) {
	upper := func(_ context.Context, s string) (string, error) { return strings.ToUpper(s), nil }

	tests := []struct {
		name       string
		inv        Invocation
		want       string
		wantOutput string
	}{
		{"return", Invocation{Tool: "rip", Args: []string{"-r", "SYSTEM", "-p", "compname"}}, "-r SYSTEM -p compname", ""},
		{"stdin", Invocation{Tool: "mactime2", Args: []string{"-b", "-", "-d"}, Input: "body"}, "BODY", ""},
		{"transform", Invocation{Tool: "rip", Args: []string{"-aT"}, Transform: upper}, "-AT", ""},
		{"output", Invocation{Tool: "rip", Args: []string{"-p", "ips"}, Output: "rip_ips.txt"}, "", "-p ips"},
		{"transformed output", Invocation{Tool: "rip", Args: []string{"-p", "ips"}, Output: "rip_ips.txt", Transform: upper}, "", "-P IPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			ts := New([]Tool{rip, mactime2},
				WithLookPath(toolsettest.LookPath("rip", "mactime2")),
				WithRunner(echoRunner()),
				WithOutput(fs),
			)

			got, err := ts.Run(context.Background(), tt.inv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			if tt.inv.Output != "" {
				b, err := afero.ReadFile(fs, tt.inv.Output)
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, string(b))
			}
		})
	}
}

func TestToolset_RunFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &toolsettest.Runner{Handlers: map[string]toolsettest.Handler{
		"rip": func([]string, string) (string, string, error) {
			return "partial", "ERROR: hive not found\n", toolsettest.ExitStatus(2)
		},
	}}
	ts := New([]Tool{rip}, WithLookPath(toolsettest.LookPath("rip")), WithRunner(runner), WithOutput(fs))

	_, err := ts.Run(context.Background(), Invocation{Tool: "rip", Args: []string{"-r", "x"}, Output: "rip_x.txt"})

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 2, execErr.ExitCode)
	assert.Equal(t, []string{"/usr/bin/rip", "-r", "x"}, execErr.Command)
	assert.Contains(t, err.Error(), "hive not found")

	exists, err := afero.Exists(fs, "rip_x.txt")
	require.NoError(t, err)
	assert.False(t, exists, "failed invocations must not write output")
}

func TestToolset_RunTransformFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	ts := New([]Tool{rip}, WithLookPath(toolsettest.LookPath("rip")), WithRunner(echoRunner()), WithOutput(fs))
	boom := errors.New("boom")

	_, err := ts.Run(context.Background(), Invocation{
		Tool: "rip", Output: "tln.csv",
		Transform: func(context.Context, string) (string, error) { return "", boom },
	})
	assert.ErrorIs(t, err, boom)

	exists, _ := afero.Exists(fs, "tln.csv")
	assert.False(t, exists)
}

func TestToolset_WriteOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	ts := New([]Tool{rip}, WithLookPath(toolsettest.LookPath("rip")), WithRunner(echoRunner()), WithOutput(fs))

	inv := Invocation{Tool: "rip", Args: []string{"-p", "run"}, Output: "rip_run.txt"}
	_, err := ts.Run(context.Background(), inv)
	require.NoError(t, err)

	_, err = ts.Run(context.Background(), inv)
	assert.ErrorIs(t, err, ErrOutputExists)
}

func TestToolset_RunWithoutOutput(t *testing.T) {
	ts := New([]Tool{rip}, WithLookPath(toolsettest.LookPath("rip")), WithRunner(echoRunner()))
	_, err := ts.Run(context.Background(), Invocation{Tool: "rip", Output: "x.txt"})
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestToolset_Observer(t *testing.T) {
	var seen []Execution
	observer := func(_ context.Context, e Execution) error {
		seen = append(seen, e)
		return nil
	}
	ts := New([]Tool{rip, mactime2},
		WithLookPath(toolsettest.LookPath("rip", "mactime2")),
		WithRunner(echoRunner()),
		WithOutput(afero.NewMemMapFs()),
		WithObserver(observer),
	)

	_, err := ts.Run(context.Background(), Invocation{Tool: "mactime2", Args: []string{"-t", "list"}})
	require.NoError(t, err)
	_, err = ts.Run(context.Background(), Invocation{Tool: "rip", Args: []string{"-p", "ips"}, Output: "rip_ips.txt", Artifact: "SYSTEM"})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "rip_ips.txt", seen[0].Output)
	assert.Equal(t, "SYSTEM", seen[0].Artifact)
	assert.Equal(t, "/usr/bin/rip -p ips", seen[0].CommandLine())
}
