// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls models the single-rendition HLS manifests produced by the
// transcoder and rebases them for delivery.
package hls

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ManifestName is the file name of the manifest inside a content's hls folder.
const ManifestName = "playlist.m3u8"

// SegmentExt is the suffix that marks a manifest line as a segment reference.
const SegmentExt = ".ts"

// Manifest is an ordered, immutable list of manifest lines.
type Manifest struct {
	lines []string
}

// ParseManifest reads r line by line. Line text is kept verbatim except for a
// trailing carriage return.
func ParseManifest(r io.Reader) (*Manifest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return &Manifest{lines: lines}, nil
}

// Lines returns a copy of the manifest lines.
func (m *Manifest) Lines() []string {
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// IsSegmentRef reports whether line refers to a segment file.
func IsSegmentRef(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), SegmentExt)
}

// Segments returns the trimmed segment references in manifest order.
func (m *Manifest) Segments() []string {
	var refs []string
	for _, line := range m.lines {
		if IsSegmentRef(line) {
			refs = append(refs, strings.TrimSpace(line))
		}
	}
	return refs
}

// Summary is timeline information derived from a manifest.
type Summary struct {
	Segments      int
	TotalDuration time.Duration
	// VOD is set by #EXT-X-PLAYLIST-TYPE:VOD or #EXT-X-ENDLIST.
	VOD bool
}

// Summarize sums EXTINF durations over segment references.
func (m *Manifest) Summarize() (Summary, error) {
	var (
		s    Summary
		next time.Duration
	)
	for _, raw := range m.lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"), line == "#EXT-X-ENDLIST":
			s.VOD = true
		case strings.HasPrefix(line, "#EXTINF:"):
			d, err := parseExtinf(line)
			if err != nil {
				return Summary{}, err
			}
			next = d
		case IsSegmentRef(line):
			s.Segments++
			s.TotalDuration += next
			next = 0
		}
	}
	return s, nil
}

// parseExtinf handles "#EXTINF:5.000000," and "#EXTINF:5,title".
func parseExtinf(line string) (time.Duration, error) {
	v := strings.TrimPrefix(line, "#EXTINF:")
	if idx := strings.Index(v, ","); idx != -1 {
		v = v[:idx]
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid EXTINF duration: %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
