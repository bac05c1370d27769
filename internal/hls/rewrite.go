// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"strconv"
	"strings"
)

// Rewrite rebases segment references onto publicBaseURL:
// a segment line becomes "{base}/{contentID}/hls/{trimmed line}". All other
// lines pass through unchanged and in order. The result is joined with "\n".
func Rewrite(lines []string, publicBaseURL string, contentID int64) string {
	prefix := SegmentURLPrefix(publicBaseURL, contentID)

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if IsSegmentRef(line) {
			b.WriteString(prefix)
			b.WriteString(strings.TrimSpace(line))
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// SegmentURLPrefix returns "{base}/{contentID}/hls/" with any trailing slashes
// on base removed.
func SegmentURLPrefix(publicBaseURL string, contentID int64) string {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	return base + "/" + strconv.FormatInt(contentID, 10) + "/hls/"
}
