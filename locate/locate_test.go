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

package locate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mount(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range files {
		p := filepath.Join("/mnt", filepath.FromSlash(name))
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, afero.WriteFile(fs, p, []byte("regf"), 0644))
	}
	return fs
}

func TestResolve(t *testing.T) {
	fs := mount(t,
		"windows/system32/config/SYSTEM",
		"windows/AppCompat/Programs/amcache.hve",
		"Users/alice/NTUSER.DAT",
	)

	tests := []struct {
		name     string
		expected string
		want     string
		wantErr  bool
	}{
		{"lowercase dirs", "Windows/System32/config/SYSTEM", "/mnt/windows/system32/config/SYSTEM", false},
		{"lowercase file", "Windows/AppCompat/Programs/Amcache.hve", "/mnt/windows/AppCompat/Programs/amcache.hve", false},
		{"exact", "Users/alice/NTUSER.DAT", "/mnt/Users/alice/NTUSER.DAT", false},
		{"directory", "USERS", "/mnt/Users", false},
		{"root", "", "/mnt", false},
		{"missing file", "Windows/System32/config/SAM", "", true},
		{"missing dir", "Windows/System32/winevt/Logs", "", true},
		{"below file", "Users/alice/NTUSER.DAT/x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(fs, "/mnt", tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, filepath.FromSlash(tt.want), filepath.FromSlash(got))
			if tt.wantErr {
				var notFound *NotFoundError
				assert.True(t, errors.As(err, &notFound))
				assert.ErrorIs(t, err, os.ErrNotExist)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	fs := mount(t, "WINDOWS/System32/CONFIG/software")
	first, err := Resolve(fs, "/mnt", "Windows/System32/config/SOFTWARE")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Resolve(fs, "/mnt", "Windows/System32/config/SOFTWARE")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveTieBreak(t *testing.T) {
	fs := mount(t, "config/system", "config/SYSTEM")

	tests := []struct {
		name     string
		expected string
		want     string
	}{
		{"lower", "config/system", "/mnt/config/SYSTEM"},
		{"upper", "config/SYSTEM", "/mnt/config/SYSTEM"},
		{"mixed", "config/System", "/mnt/config/SYSTEM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(fs, "/mnt", tt.expected)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestLocator_Find(t *testing.T) {
	fs := mount(t, "Windows/System32/config/SYSTEM")
	l := New(fs, "/mnt")

	got, err := l.Find("Windows/System32/config/SAM", false)
	assert.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.Find("Windows/System32/config/SAM", true)
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "SAM", notFound.Component)
	assert.Equal(t, "file not found: 'Windows/System32/config/SAM'", err.Error())

	got, err = l.Find("windows/system32/config/system", true)
	assert.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/mnt/Windows/System32/config/SYSTEM"), got)
}

func TestFindUserProfiles(t *testing.T) {
	fs := mount(t,
		"Users/alice/ntuser.dat",
		"Users/bob/NTUSER.DAT",
		"Users/bob/ntuser.dat",
		"Users/Public/Desktop/desktop.ini",
		"Users/Default/NTUSER.DAT.LOG1",
		"Users/desktop.ini",
	)
	require.NoError(t, fs.MkdirAll("/mnt/Users/carol/NTUSER.DAT", 0755))

	profiles, err := FindUserProfiles(fs, "/mnt/Users")
	require.NoError(t, err)

	want := []Profile{
		{User: "alice", Hive: filepath.FromSlash("/mnt/Users/alice/ntuser.dat")},
		{User: "bob", Hive: filepath.FromSlash("/mnt/Users/bob/NTUSER.DAT")},
	}
	assert.Equal(t, want, profiles)
}

func TestFindUserProfilesEmpty(t *testing.T) {
	fs := mount(t, "Users/Public/desktop.ini")
	profiles, err := New(fs, "/mnt").UserProfiles("/mnt/Users")
	require.NoError(t, err)
	assert.Empty(t, profiles)

	_, err = FindUserProfiles(fs, "/mnt/Nope")
	assert.Error(t, err)
}
