// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remotestore

import (
	"path"
	"strconv"
)

// Remote layout, relative to the store root:
//
//	{id}/cover.jpg
//	{id}/hls/playlist.m3u8
//	{id}/hls/seg%05d.ts
const (
	HLSDirName   = "hls"
	CoverName    = "cover.jpg"
	ManifestName = "playlist.m3u8"
)

func ContentDir(id int64) string { return strconv.FormatInt(id, 10) }

func HLSDir(id int64) string { return path.Join(ContentDir(id), HLSDirName) }

func ManifestPath(id int64) string { return path.Join(HLSDir(id), ManifestName) }

// SegmentPath joins name under the content's hls dir. Callers validate name.
func SegmentPath(id int64, name string) string { return path.Join(HLSDir(id), name) }

func CoverPath(id int64) string { return path.Join(ContentDir(id), CoverName) }
