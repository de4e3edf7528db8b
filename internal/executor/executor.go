// Package executor is the tiled-execution driver: it opens a job's input
// file, walks its tile grid, runs the job's registered inference function
// per tile, composites a preview, and writes manifest.json and
// artifacts.zip only after every other artifact is durable.
package executor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wsiflow/tilesched/internal/artifact"
	"github.com/wsiflow/tilesched/internal/config"
	"github.com/wsiflow/tilesched/internal/imaging"
	"github.com/wsiflow/tilesched/internal/inference"
	"github.com/wsiflow/tilesched/internal/store"
	"github.com/wsiflow/tilesched/internal/tiling"
	"github.com/wsiflow/tilesched/pkg/model"
)

// Releaser returns a RUNNING job's admission reservation once it finishes.
// Satisfied by *scheduler.Scheduler; kept as a narrow interface here so
// this package doesn't need to know about admission bookkeeping.
type Releaser interface {
	Release(jobID string)
}

const previewMaxDim = 2048

// Executor runs jobs handed to it by the scheduler. It implements
// scheduler.Dispatcher.
type Executor struct {
	store     store.Store
	inference *inference.Registry
	artifacts artifact.Store
	releaser  Releaser
	cfg       config.Config
	logger    *slog.Logger
}

// New creates an Executor.
func New(st store.Store, infReg *inference.Registry, artifacts artifact.Store, releaser Releaser, cfg config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		store:     st,
		inference: infReg,
		artifacts: artifacts,
		releaser:  releaser,
		cfg:       cfg,
		logger:    logger.With("component", "executor"),
	}
}

// Dispatch runs job to completion on its own goroutine. It never blocks
// the caller.
func (e *Executor) Dispatch(job *model.Job) {
	go e.run(context.Background(), job)
}

func (e *Executor) run(ctx context.Context, job *model.Job) {
	defer e.releaser.Release(job.ID)

	if err := e.execute(ctx, job); err != nil {
		e.logger.Error("job failed", "job_id", job.ID, "error", err)
		if _, tErr := e.store.Transition(ctx, job.ID, []model.JobState{model.JobStateRunning}, model.JobStateFailed, func(j *model.Job) {
			j.Error = err.Error()
		}); tErr != nil {
			e.logger.Error("failed to record job failure", "job_id", job.ID, "error", tErr)
		}
	}
}

type tileMask struct {
	tile tiling.Tile
	mask image.Image
}

func (e *Executor) execute(ctx context.Context, job *model.Job) error {
	fn, err := e.inference.Get(string(job.JobType))
	if err != nil {
		return err
	}

	src, err := imaging.Open(job.FileRef)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	w, h, err := src.Dimensions(ctx)
	if err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}

	tiles := tiling.Grid(w, h, e.cfg.TileSize, e.cfg.TileOverlap)
	total := len(tiles)
	startedAt := time.Now().UTC()

	results := make([]tileMask, 0, total)
	var artifacts []model.ArtifactEntry
	var totalBytes uint64

	for i, t := range tiles {
		region := tiling.Extend(t, w, h, e.cfg.TileOverlap)
		raw, err := src.ReadRegion(ctx, region.X, region.Y, region.W, region.H)
		if err != nil {
			return fmt.Errorf("read tile (%d,%d): %w", t.X, t.Y, err)
		}

		mask, err := fn(ctx, raw, e.cfg.EnableInstantSeg)
		if err != nil {
			return fmt.Errorf("infer tile (%d,%d): %w", t.X, t.Y, err)
		}
		cropped := cropTo(mask, region.CropOffsetX, region.CropOffsetY, t.W, t.H)
		results = append(results, tileMask{tile: t, mask: cropped})

		relPath := fmt.Sprintf("mask_%d_%d.png", t.Row, t.Col)
		buf, err := encodePNG(cropped)
		if err != nil {
			return fmt.Errorf("encode mask (%d,%d): %w", t.X, t.Y, err)
		}
		if err := e.artifacts.WriteFile(ctx, job.ID, relPath, bytes.NewReader(buf)); err != nil {
			return fmt.Errorf("write mask (%d,%d): %w", t.X, t.Y, err)
		}
		artifacts = append(artifacts, model.ArtifactEntry{Path: relPath, Size: int64(len(buf))})
		totalBytes += uint64(len(buf))

		if _, err := e.store.UpdateProgress(ctx, job.ID, i+1, total); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
	}

	overlay := previewColor(job.JobType)
	previewBuf, err := encodePNG(compositePreview(w, h, results, overlay))
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if err := e.artifacts.WriteFile(ctx, job.ID, "preview.png", bytes.NewReader(previewBuf)); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	artifacts = append(artifacts, model.ArtifactEntry{Path: "preview.png", Size: int64(len(previewBuf))})
	totalBytes += uint64(len(previewBuf))

	if err := e.artifacts.Finalize(ctx, job.ID); err != nil {
		return fmt.Errorf("finalize artifacts: %w", err)
	}

	finishedAt := time.Now().UTC()
	manifest := &model.Manifest{
		JobID:      job.ID,
		WorkflowID: job.WorkflowID,
		TenantID:   job.TenantID,
		JobType:    job.JobType,
		Branch:     job.Branch,
		TileCount:  total,
		Artifacts:  artifacts,
		CreatedAt:  startedAt,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	manifestBytes, err := encodeManifest(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := e.artifacts.WriteFile(ctx, job.ID, "manifest.json", bytes.NewReader(manifestBytes)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	totalBytes += uint64(len(manifestBytes))

	zipBytes, err := buildZip(artifacts, manifestBytes, job.ID, e.artifacts, ctx)
	if err != nil {
		return fmt.Errorf("build artifact bundle: %w", err)
	}
	if err := e.artifacts.WriteZip(ctx, job.ID, "artifacts.zip", bytes.NewReader(zipBytes)); err != nil {
		return fmt.Errorf("write artifact bundle: %w", err)
	}
	totalBytes += uint64(len(zipBytes))

	e.logger.Info("job completed", "job_id", job.ID, "tiles", total, "artifact_bytes", humanize.Bytes(totalBytes))

	_, err = e.store.Transition(ctx, job.ID, []model.JobState{model.JobStateRunning}, model.JobStateSucceeded, func(j *model.Job) {
		j.Progress = 1.0
		j.Manifest = manifest
	})
	return err
}

func previewColor(jobType model.JobType) color.RGBA {
	if jobType == model.JobTypeTissueMask {
		return color.RGBA{R: 0, G: 255, B: 0, A: 120}
	}
	return color.RGBA{R: 255, G: 0, B: 0, A: 120}
}

// cropTo crops img (a tile's overlap-extended mask) back to its own
// tile.W x tile.H region, offset by (offX, offY) — the inverse of
// tiling.Extend's overlap extension.
func cropTo(img image.Image, offX, offY, w, h int) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+offX, b.Min.Y+offY, b.Min.X+offX+w, b.Min.Y+offY+h)
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// compositePreview builds a blank canvas the size of the full image scaled
// down to at most previewMaxDim on its longest side, and paints each tile's
// mask foreground (gray > 127) in the overlay color at the tile's scaled
// position, mirroring original_source's _build_preview. The source image's
// own pixels are not drawn.
func compositePreview(fullW, fullH int, masks []tileMask, overlay color.RGBA) image.Image {
	scale := 1.0
	if maxDim := max(fullW, fullH); maxDim > previewMaxDim {
		scale = float64(previewMaxDim) / float64(maxDim)
	}
	pw := int(float64(fullW) * scale)
	ph := int(float64(fullH) * scale)
	if pw < 1 {
		pw = 1
	}
	if ph < 1 {
		ph = 1
	}

	preview := image.NewRGBA(image.Rect(0, 0, pw, ph))
	for _, tm := range masks {
		t := tm.tile
		dx0 := int(float64(t.X) * scale)
		dy0 := int(float64(t.Y) * scale)
		dx1 := int(float64(t.X+t.W) * scale)
		dy1 := int(float64(t.Y+t.H) * scale)
		if dx1 <= dx0 {
			dx1 = dx0 + 1
		}
		if dy1 <= dy0 {
			dy1 = dy0 + 1
		}
		rect := image.Rect(dx0, dy0, dx1, dy1)

		b := tm.mask.Bounds()
		for y := rect.Min.Y; y < rect.Max.Y && y < ph; y++ {
			srcY := b.Min.Y + (y-rect.Min.Y)*b.Dy()/max(rect.Dy(), 1)
			for x := rect.Min.X; x < rect.Max.X && x < pw; x++ {
				srcX := b.Min.X + (x-rect.Min.X)*b.Dx()/max(rect.Dx(), 1)
				gray := color.GrayModel.Convert(tm.mask.At(srcX, srcY)).(color.Gray)
				if gray.Y > 127 {
					preview.Set(x, y, overlay)
				}
			}
		}
	}
	return preview
}

func encodeManifest(m *model.Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildZip(artifacts []model.ArtifactEntry, manifestBytes []byte, jobID string, store artifact.Store, ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, a := range artifacts {
		rc, err := store.ReadFile(ctx, jobID, a.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s for bundling: %w", a.Path, err)
		}
		w, err := zw.Create(a.Path)
		if err != nil {
			rc.Close()
			return nil, err
		}
		if _, err := io.Copy(w, rc); err != nil {
			rc.Close()
			return nil, err
		}
		rc.Close()
	}

	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, err
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
