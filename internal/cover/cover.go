// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cover normalises uploaded cover art into a bounded JPEG.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDim caps both sides of the stored cover.
	DefaultMaxDim = 250
	// Quality is the JPEG quality of the stored cover.
	Quality = 75
)

var (
	// ErrInvalidFormat is returned for non-JPEG names or undecodable data.
	ErrInvalidFormat = errors.New("cover must be a .jpg or .jpeg image")
)

// ValidateExtension accepts .jpg and .jpeg, case-insensitively.
func ValidateExtension(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, filepath.Base(filename))
	}
}

// FitWithin returns the dimensions of a w×h image scaled by
// min(maxDim/w, maxDim/h), rounded. Images already within maxDim are unchanged.
func FitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	return max(nw, 1), max(nh, 1)
}

// Process decodes a JPEG, downscales it to fit maxDim and re-encodes it at
// Quality. A non-positive maxDim means DefaultMaxDim. Output depends only on
// the input bytes and maxDim.
func Process(r io.Reader, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}
	src, err := jpeg.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidFormat, err)
	}

	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), maxDim)
	img := src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("cover: encode: %w", err)
	}
	return buf.Bytes(), nil
}
