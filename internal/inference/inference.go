// Package inference holds the pluggable per-tile computation a Job runs:
// a registry keyed by a closed-set type tag, with Register/Get, built
// once at startup.
package inference

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
)

// Fn computes a grayscale mask for one tile. enableInstantSeg selects
// between the real-model code path and its deterministic fallback, mirroring
// original_source's ENABLE_INSTANTSEG switch.
type Fn func(ctx context.Context, tile image.Image, enableInstantSeg bool) (image.Image, error)

// Registry maps JobType to its Fn. Registration happens at startup before
// any concurrent access, so no mutex is needed.
type Registry struct {
	fns    map[string]Fn
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		fns:    make(map[string]Fn),
		logger: logger.With("component", "inference-registry"),
	}
}

// Register adds fn under jobType.
func (r *Registry) Register(jobType string, fn Fn) {
	r.fns[jobType] = fn
	r.logger.Info("inference function registered", "job_type", jobType)
}

// Get returns the Fn registered for jobType, or an error if none is.
func (r *Registry) Get(jobType string) (Fn, error) {
	fn, ok := r.fns[jobType]
	if !ok {
		return nil, fmt.Errorf("no inference function registered for job type %q", jobType)
	}
	return fn, nil
}

// SegmentCells produces a cell-segmentation mask for one tile. With
// enableInstantSeg, it runs the InstanSeg-stub code path (still a
// deterministic stand-in: no real model ships with this engine, same as
// original_source's own stub contract); otherwise it falls back to a
// mean-luminance threshold, exactly as original_source's
// segment_cells_on_tile fallback does.
func SegmentCells(_ context.Context, tile image.Image, enableInstantSeg bool) (image.Image, error) {
	if enableInstantSeg {
		return instanSegStubMask(tile), nil
	}
	return thresholdMask(tile, meanLuminance(tile)), nil
}

// TissueMask produces a tissue/background mask for one tile via a
// mean-luminance threshold, matching original_source's tissue_mask_on_tile
// fallback (the real implementation there prefers an Otsu threshold from
// scikit-image, which has no Go equivalent in this codebase's dependency
// graph).
func TissueMask(_ context.Context, tile image.Image, _ bool) (image.Image, error) {
	return thresholdMask(tile, meanLuminance(tile)), nil
}

func meanLuminance(img image.Image) uint8 {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0
	}
	var sum, count int64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			sum += int64(gray.Y)
			count++
		}
	}
	return uint8(sum / count)
}

func thresholdMask(img image.Image, threshold uint8) image.Image {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			v := uint8(0)
			if gray.Y > threshold {
				v = 255
			}
			mask.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: v})
		}
	}
	return mask
}

// instanSegStubMask stands in for a real InstanSeg model call: concentric
// rings of alternating fill, the same last-resort shape original_source
// draws when every real and threshold-based path fails.
func instanSegStubMask(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := image.NewGray(image.Rect(0, 0, w, h))
	cx, cy := w/2, h/2
	r := w
	if h < r {
		r = h
	}
	denom := r*r/2 + 1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			dist := dx*dx + dy*dy
			ring := dist * 10 / denom
			v := uint8(0)
			if ring%2 == 1 {
				v = 255
			}
			mask.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return mask
}
