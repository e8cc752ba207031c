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

// Package cmd implements the windowstimeline command line tool.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/windowstimeline"
	"github.com/forensicanalysis/windowstimeline/manifest"
	"github.com/forensicanalysis/windowstimeline/sqlar"
	"github.com/forensicanalysis/windowstimeline/toolset"
)

// Root returns the windowstimeline command with its validate subcommand.
func Root() *cobra.Command {
	return root()
}

func root(opts ...toolset.Option) *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:   "windowstimeline [flags] MOUNT_DIR",
		Short: "Create timelines from a mounted Windows image",
		Long: `Create timelines from a mounted Windows image.

windowstimeline runs RegRipper, regdump and mactime2 against the registry hives
and user profiles found below MOUNT_DIR and writes their results to the output
directory.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usageError("too many arguments", nil)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), config.Verbose)
			return collect(cmd.Context(), cmd.OutOrStdout(), config, args, opts...)
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("invalid flags", err)
	})

	flags := rootCmd.Flags()
	flags.StringP("timezone", "t", "", "convert timestamps from UTC to this timezone")
	flags.StringP("extract-evtx", "e", "", "extract windows event logs (not implemented)")
	flags.BoolP("ignore-case", "i", false, "ignore case of paths in the image (always on)")
	flags.BoolP("parse-mft", "m", false, "parse the $MFT (not implemented)")
	flags.BoolP("list-timezones", "l", false, "list the timezones mactime2 supports and exit")
	flags.StringP("execute-hayabusa", "H", "", "run hayabusa on the event logs (not implemented)")
	flags.StringP("output-dir", "o", "", "output directory (default \"output\")")
	flags.Bool("manifest", false, "record executions and output hashes in "+manifest.FileName)
	flags.String("archive", "", "pack all output files into this sqlite archive")
	flags.Bool("no-user-timeline", false, "skip the full timeline of every NTUSER.DAT")
	flags.StringVar(&configFile, "config", "", "config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(validate())
	return rootCmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func collect(ctx context.Context, stdout io.Writer, config Config, args []string, opts ...toolset.Option) error { // nolint:gocyclo
	if config.ExtractEvtx != "" {
		slog.Warn("extracting event logs is not implemented", "evtx", config.ExtractEvtx)
	}
	if config.ParseMft {
		slog.Warn("parsing the $MFT is not implemented")
	}
	if config.Hayabusa != "" {
		slog.Warn("executing hayabusa is not implemented", "hayabusa", config.Hayabusa)
	}

	outFs := afero.NewBasePathFs(afero.NewOsFs(), config.OutputDir)

	var recorder *manifest.Recorder
	opts = append(opts, toolset.WithOutput(outFs), toolset.WithObserver(func(ctx context.Context, execution toolset.Execution) error {
		if recorder == nil {
			return nil
		}
		return recorder.Record(ctx, execution)
	}))
	ts := toolset.New(windowstimeline.Tools(), opts...)

	if config.ListTimezones {
		timezones, err := windowstimeline.ListTimezones(ctx, ts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(stdout, timezones)
		return err
	}

	if len(args) != 1 {
		return usageError("requires MOUNT_DIR", nil)
	}
	if config.Archive != "" && inside(config.Archive, config.OutputDir) {
		return usageError("archive must not be inside the output directory", nil)
	}

	wt, err := windowstimeline.New(afero.NewOsFs(), args[0], ts, windowstimeline.Options{
		Timezone:         config.Timezone,
		SkipUserTimeline: config.NoUserTimeline,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.OutputDir, 0750); err != nil {
		return errors.Wrap(err, "could not create output directory")
	}

	var m *manifest.Manifest
	if config.Manifest {
		m, err = manifest.New(filepath.Join(config.OutputDir, manifest.FileName))
		if err != nil {
			return &ExitError{Code: ExitConfig, Message: "could not create manifest", Err: err}
		}
		recorder = &manifest.Recorder{Manifest: m, Fs: outFs}
	}

	err = wt.Create(ctx)
	if m != nil {
		if closeErr := m.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return err
	}

	if config.Archive != "" {
		return pack(config.Archive, outFs)
	}
	return nil
}

func pack(url string, fs afero.Fs) error {
	archive, err := sqlar.New(url)
	if err != nil {
		return err
	}
	defer archive.Close()

	packed, err := archive.Pack(fs, "**")
	if err != nil {
		return errors.Wrapf(err, "could not pack %s", url)
	}
	slog.Info("packed output", "archive", url, "files", len(packed))
	return nil
}

func inside(name, dir string) bool {
	absName, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absName)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
