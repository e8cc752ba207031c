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

package cmd

import (
	"errors"
	"fmt"

	"github.com/forensicanalysis/windowstimeline"
	"github.com/forensicanalysis/windowstimeline/locate"
	"github.com/forensicanalysis/windowstimeline/toolset"
)

// Exit codes of the windowstimeline command.
const (
	ExitFailure         = 1
	ExitConfig          = 2
	ExitMissingArtifact = 3
	ExitNotADirectory   = 4
	ExitUsage           = 5
)

// ExitError carries the exit code for an error returned by a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(message string, err error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: message, Err: err}
}

// ExitCode maps an error to the process exit code. nil maps to 0, errors
// without a known cause to ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	var missingTool *toolset.MissingToolError
	var notFound *locate.NotFoundError
	var notADir *windowstimeline.NotADirectoryError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.As(err, &missingTool):
		return ExitConfig
	case errors.As(err, &notFound):
		return ExitMissingArtifact
	case errors.As(err, &notADir):
		return ExitNotADirectory
	default:
		return ExitFailure
	}
}
