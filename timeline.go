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
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/forensicanalysis/windowstimeline/bodyfile"
	"github.com/forensicanalysis/windowstimeline/locate"
	"github.com/forensicanalysis/windowstimeline/toolset"
)

// Hive is a registry hive the collection looks for.
type Hive struct {
	Name     string
	Path     string
	Required bool
	// Plugins are the RegRipper plugins run for the host information.
	Plugins []string
}

// Hives lists the machine hives in collection order.
var Hives = []Hive{ // nolint:gochecknoglobals
	{
		Name: "SYSTEM", Path: "Windows/System32/config/SYSTEM", Required: true,
		Plugins: []string{"compname", "timezone", "shutdown", "ips", "usbstor", "mountdev2"},
	},
	{
		Name: "SOFTWARE", Path: "Windows/System32/config/SOFTWARE", Required: true,
		Plugins: []string{"msis", "winver", "profilelist", "lastloggedon"},
	},
	{
		Name: "SAM", Path: "Windows/System32/config/SAM", Required: true,
		Plugins: []string{"samparse"},
	},
	{
		Name: "AMCACHE", Path: "Windows/AppCompat/Programs/Amcache.hve", Required: true,
	},
}

// UsersDir contains the user profile directories.
const UsersDir = "Users"

// UserPlugins are the RegRipper plugins run against every NTUSER.DAT.
var UserPlugins = []string{"run", "cmdproc"} // nolint:gochecknoglobals

// NotADirectoryError is returned for a mount point that is not a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("not a directory: %s", e.Path)
}

// Artifact is a hive resolved inside the mount.
type Artifact struct {
	Hive
	// Resolved is the path with the case found on disk, empty if absent.
	Resolved string
}

// Found reports whether the artifact exists in the mount.
func (a Artifact) Found() bool {
	return a.Resolved != ""
}

// Options configure a collection.
type Options struct {
	// Timezone is passed to mactime2 for every sorted timeline.
	Timezone string
	// SkipUserTimeline disables the full RegRipper timeline per user.
	SkipUserTimeline bool
}

// WindowsTimeline collects registry information and timelines from a mounted
// Windows filesystem.
type WindowsTimeline struct {
	locator    *locate.Locator
	toolset    *toolset.Toolset
	sorter     *Sorter
	normalizer *bodyfile.Normalizer
	artifacts  []Artifact
	usersDir   string
	opts       Options
}

// New checks the mount point, resolves all tools and locates the hives and the
// users directory. Nothing is executed or written yet.
func New(fs afero.Fs, mountDir string, ts *toolset.Toolset, opts Options) (*WindowsTimeline, error) {
	isDir, err := afero.IsDir(fs, mountDir)
	if err != nil || !isDir {
		return nil, &NotADirectoryError{Path: mountDir}
	}

	if err := ts.ResolveAll(Mactime2, Regdump, RegRipper); err != nil {
		return nil, err
	}

	wt := &WindowsTimeline{
		locator: locate.New(fs, mountDir),
		toolset: ts,
		opts:    opts,
	}
	wt.sorter = &Sorter{Toolset: ts, Timezone: opts.Timezone}
	wt.normalizer = &bodyfile.Normalizer{Sorter: wt.sorter}

	for _, hive := range Hives {
		p, err := wt.locator.Find(hive.Path, hive.Required)
		if err != nil {
			return nil, err
		}
		wt.artifacts = append(wt.artifacts, Artifact{Hive: hive, Resolved: p})
	}

	wt.usersDir, err = wt.locator.Find(UsersDir, true)
	if err != nil {
		return nil, err
	}
	return wt, nil
}

// Artifacts returns all hives, found or not.
func (wt *WindowsTimeline) Artifacts() []Artifact {
	return wt.artifacts
}

// Create runs the whole collection. The first failure aborts it; files
// written until then are kept.
func (wt *WindowsTimeline) Create(ctx context.Context) error {
	if err := wt.HostInfo(ctx); err != nil {
		return err
	}

	for _, artifact := range wt.artifacts {
		if !artifact.Found() {
			continue
		}
		if err := wt.RegistryTimeline(ctx, artifact); err != nil {
			return err
		}
	}

	profiles, err := wt.locator.UserProfiles(wt.usersDir)
	if err != nil {
		return err
	}
	for _, profile := range profiles {
		if err := wt.UserInfo(ctx, profile.User, profile.Hive); err != nil {
			return err
		}
	}
	return nil
}

// HostInfo runs the RegRipper plugins of every found hive.
func (wt *WindowsTimeline) HostInfo(ctx context.Context) error {
	for _, artifact := range wt.artifacts {
		if !artifact.Found() {
			continue
		}
		for _, plugin := range artifact.Plugins {
			_, err := wt.toolset.Run(ctx, toolset.Invocation{
				Tool:     RegRipper,
				Args:     []string{"-r", artifact.Resolved, "-p", plugin},
				Output:   fmt.Sprintf("rip_%s.txt", plugin),
				Artifact: artifact.Name,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// RegistryTimeline writes two sorted timelines of a hive, one from RegRipper
// and one from regdump.
func (wt *WindowsTimeline) RegistryTimeline(ctx context.Context, artifact Artifact) error {
	filename := filepath.Base(artifact.Resolved)

	slog.Info("creating regripper timeline", "hive", filename)
	_, err := wt.toolset.Run(ctx, toolset.Invocation{
		Tool:      RegRipper,
		Args:      []string{"-r", artifact.Resolved, "-aT"},
		Output:    fmt.Sprintf("tln_%s.csv", filename),
		Transform: wt.normalizer.Normalize,
		Artifact:  artifact.Name,
	})
	if err != nil {
		return err
	}

	slog.Info("creating regdump timeline", "hive", filename)
	_, err = wt.toolset.Run(ctx, toolset.Invocation{
		Tool:      Regdump,
		Args:      []string{"-F", "bodyfile", artifact.Resolved},
		Output:    fmt.Sprintf("regtln_%s.csv", filename),
		Transform: wt.sorter.Sort,
		Artifact:  artifact.Name,
	})
	return err
}

// UserInfo runs the user plugins and the user timeline against an NTUSER.DAT.
func (wt *WindowsTimeline) UserInfo(ctx context.Context, user, ntuserDat string) error {
	slog.Info("creating regripper timeline for user", "user", user)
	artifact := "NTUSER.DAT " + user

	for _, plugin := range UserPlugins {
		_, err := wt.toolset.Run(ctx, toolset.Invocation{
			Tool:     RegRipper,
			Args:     []string{"-r", ntuserDat, "-p", plugin},
			Output:   fmt.Sprintf("rip_%s_%s.txt", user, plugin),
			Artifact: artifact,
		})
		if err != nil {
			return err
		}
	}

	if wt.opts.SkipUserTimeline {
		return nil
	}
	_, err := wt.toolset.Run(ctx, toolset.Invocation{
		Tool:      RegRipper,
		Args:      []string{"-r", ntuserDat, "-aT"},
		Output:    fmt.Sprintf("tln_user_%s.csv", user),
		Transform: wt.normalizer.Normalize,
		Artifact:  artifact,
	})
	return err
}
