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

// Package windowstimeline collects timeline information from a mounted
// Windows filesystem.
//
// It locates the registry hives and user profiles inside the mount, runs
// external analysis tools against them and writes one file per artifact and
// query into an output directory.
//
// Tools
//
// The following programs must be installed:
//     - rip (RegRipper, also found as rip.pl): registry plugins and TLN timelines
//     - regdump (nt_hive2): bodyfile export of registry hives
//     - mactime2 (dfir-toolkit): sorts bodyfiles into CSV timelines
//
// Output
//
// An example output directory:
//     output/
//     ├── rip_compname.txt
//     ├── ...
//     ├── rip_samparse.txt
//     ├── tln_SYSTEM.csv
//     ├── regtln_SYSTEM.csv
//     ├── ...
//     ├── rip_alice_run.txt
//     ├── rip_alice_cmdproc.txt
//     ├── tln_user_alice.csv
//     └── manifest.db (with --manifest)
package windowstimeline
