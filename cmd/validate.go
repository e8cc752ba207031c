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
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/windowstimeline/manifest"
)

func validate() *cobra.Command {
	var noFail bool
	validateCommand := &cobra.Command{
		Use:   "validate OUTPUT_DIR",
		Short: "Check an output directory against its manifest",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageError("requires exactly one output directory", nil)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(cmd.ErrOrStderr(), verbose)

			m, err := manifest.Open(filepath.Join(args[0], manifest.FileName))
			if err != nil {
				return &ExitError{Code: ExitConfig, Message: "could not open manifest", Err: err}
			}
			defer m.Close()

			flaws, err := m.Validate(afero.NewBasePathFs(afero.NewOsFs(), args[0]))
			if err != nil {
				return err
			}
			b, err := json.Marshal(flaws)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			if len(flaws) > 0 && !noFail {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d flaws found", len(flaws))}
			}
			return nil
		},
	}
	validateCommand.Flags().BoolVar(&noFail, "no-fail", false, "return exit code 0")
	return validateCommand
}
