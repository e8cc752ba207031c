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

// Package bodyfile converts the TLN timeline output of registry tools into
// bodyfile records and sorts them with an external sorter.
//
// A TLN line has the fields time|source|system|user|description. Only lines
// with a numeric time, a source and empty system and user fields are events;
// banners and warnings printed by the tools are dropped.
package bodyfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// LineSeparator joins records, it follows the host convention.
var LineSeparator = lineSeparator()

func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// The source is matched like a unicode word, so non-ASCII sources are kept.
var tlnLine = regexp.MustCompile(`^\d+\|[\p{L}\p{N}_]+\|\|\|`)

const maxLineLength = 16 * 1024 * 1024

// Event is a single timestamped TLN line. Time holds the decimal timestamp
// as written by the tool, so values beyond int64 reach the sorter unchanged.
type Event struct {
	Time        string
	Source      string
	Description string
}

// Record is a bodyfile line. Unknown fields carry the placeholders the sorter
// expects: "0" for hash, inode and mode, 0 for the numeric fields and -1 for
// the birth time.
type Record struct {
	MD5    string
	Name   string
	Inode  string
	Mode   string
	UID    int64
	GID    int64
	Size   int64
	Atime  int64
	Mtime  string
	Ctime  int64
	Crtime int64
}

func (r Record) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%d|%d|%d|%s|%d|%d",
		r.MD5, r.Name, r.Inode, r.Mode, r.UID, r.GID, r.Size, r.Atime, r.Mtime, r.Ctime, r.Crtime)
}

// Record returns the bodyfile record of the event. Only the modification
// time is known.
func (e Event) Record() Record {
	return Record{
		MD5:    "0",
		Name:   e.Description,
		Inode:  "0",
		Mode:   "0",
		Mtime:  e.Time,
		Crtime: -1,
	}
}

// ParseLine parses a single TLN line. It returns false for lines that are
// not events.
func ParseLine(line string) (Event, bool) {
	if !tlnLine.MatchString(line) {
		return Event{}, false
	}
	fields := strings.Split(line, "|")
	return Event{Time: fields[0], Source: fields[1], Description: fields[4]}, true
}

// ParseTLN returns all events of a TLN stream in input order.
func ParseTLN(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		if event, ok := ParseLine(scanner.Text()); ok {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "could not read timeline")
	}
	return events, nil
}

// FromTLN converts TLN text into bodyfile text, one record per event.
func FromTLN(tln string) (string, error) {
	events, err := ParseTLN(strings.NewReader(tln))
	if err != nil {
		return "", err
	}
	records := make([]string, 0, len(events))
	for _, event := range events {
		records = append(records, event.Record().String())
	}
	return strings.Join(records, LineSeparator), nil
}

// Sorter turns bodyfile text into a sorted timeline.
type Sorter interface {
	Sort(ctx context.Context, bodyfile string) (string, error)
}

// SorterFunc adapts a function to the Sorter interface.
type SorterFunc func(ctx context.Context, bodyfile string) (string, error)

// Sort calls f.
func (f SorterFunc) Sort(ctx context.Context, bodyfile string) (string, error) {
	return f(ctx, bodyfile)
}

// Normalizer converts TLN output into a sorted timeline.
type Normalizer struct {
	Sorter Sorter
}

// Normalize converts tln to bodyfile records and sorts them. Its signature
// matches toolset.Transform.
func (n *Normalizer) Normalize(ctx context.Context, tln string) (string, error) {
	body, err := FromTLN(tln)
	if err != nil {
		return "", err
	}
	return n.Sorter.Sort(ctx, body)
}
