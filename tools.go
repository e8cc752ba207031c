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

package windowstimeline

import (
	"context"

	"github.com/forensicanalysis/windowstimeline/toolset"
)

// Logical tool names.
const (
	RegRipper = "rip"
	Regdump   = "regdump"
	Mactime2  = "mactime2"
)

// Tools returns the bindings of all tools a collection uses.
func Tools() []toolset.Tool {
	return []toolset.Tool{
		{Name: Mactime2, Binaries: []string{"mactime2"}, HowToInstall: "run `cargo install dfir-toolkit`"},
		{Name: Regdump, Binaries: []string{"regdump"}, HowToInstall: "run `cargo install nt_hive2`"},
		{Name: RegRipper, Binaries: []string{"rip", "rip.pl"}, HowToInstall: "install RegRipper as `rip`"},
	}
}

// Sorter sorts bodyfile text into a CSV timeline with mactime2.
type Sorter struct {
	Toolset *toolset.Toolset
	// Timezone converts timestamps from UTC if set.
	Timezone string
}

// Sort pipes bodyfile into mactime2.
func (s *Sorter) Sort(ctx context.Context, bodyfile string) (string, error) {
	args := []string{"-b", "-", "-d"}
	if s.Timezone != "" {
		args = append(args, "-t", s.Timezone)
	}
	return s.Toolset.Run(ctx, toolset.Invocation{Tool: Mactime2, Args: args, Input: bodyfile})
}

// ListTimezones returns the timezones mactime2 supports.
func ListTimezones(ctx context.Context, ts *toolset.Toolset) (string, error) {
	return ts.Run(ctx, toolset.Invocation{Tool: Mactime2, Args: []string{"-t", "list"}})
}
