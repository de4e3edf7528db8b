package engine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wsiflow/tilesched/internal/config"
	"github.com/wsiflow/tilesched/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestSlide(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 10, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create slide: %v", err)
	}
	defer f.Close()
	png.Encode(f, img)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TileSize = 128
	cfg.TileOverlap = 16
	cfg.ArtifactRoot = filepath.Join(dir, "artifacts")

	e, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func waitForState(t *testing.T, e *Engine, tenantID, jobID string, want model.JobState, timeout time.Duration) *model.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := e.GetJob(context.Background(), tenantID, jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.State == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %s within %s", jobID, want, timeout)
	return nil
}

func TestEngine_CreateJobRunsToCompletion(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Start(ctx)
	defer e.Stop()

	dir := t.TempDir()
	slidePath := filepath.Join(dir, "slide.png")
	writeTestSlide(t, slidePath, 300, 250)

	wf, err := e.CreateWorkflow(ctx, "tenant-a", "demo")
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	job, err := e.CreateJob(ctx, "tenant-a", wf.ID, slidePath, model.JobTypeSegmentCells, "main")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	done := waitForState(t, e, "tenant-a", job.ID, model.JobStateSucceeded, 5*time.Second)
	if done.Manifest == nil {
		t.Fatal("expected manifest on succeeded job")
	}

	manifest, err := e.FetchManifest(ctx, "tenant-a", job.ID)
	if err != nil {
		t.Fatalf("FetchManifest: %v", err)
	}
	if manifest.TileCount == 0 {
		t.Fatal("expected a positive tile count")
	}

	rc, err := e.FetchPreview(ctx, "tenant-a", job.ID)
	if err != nil {
		t.Fatalf("FetchPreview: %v", err)
	}
	rc.Close()

	zipRC, err := e.FetchArtifacts(ctx, "tenant-a", job.ID)
	if err != nil {
		t.Fatalf("FetchArtifacts: %v", err)
	}
	zipRC.Close()

	_, agg, err := e.GetWorkflow(ctx, "tenant-a", wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if agg.State != model.WorkflowStateSucceeded {
		t.Fatalf("workflow state = %v, want SUCCEEDED", agg.State)
	}
}

func TestEngine_CrossTenantAccessIsForbidden(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	wf, _ := e.CreateWorkflow(ctx, "tenant-a", "demo")
	dir := t.TempDir()
	slidePath := filepath.Join(dir, "slide.png")
	writeTestSlide(t, slidePath, 64, 64)

	job, err := e.CreateJob(ctx, "tenant-a", wf.ID, slidePath, model.JobTypeTissueMask, "main")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := e.GetJob(ctx, "tenant-b", job.ID); err == nil {
		t.Fatal("expected FORBIDDEN for cross-tenant GetJob")
	}
}

func TestEngine_CancelPendingJob(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	wf, _ := e.CreateWorkflow(ctx, "tenant-a", "demo")
	dir := t.TempDir()
	slidePath := filepath.Join(dir, "slide.png")
	writeTestSlide(t, slidePath, 64, 64)

	job, err := e.CreateJob(ctx, "tenant-a", wf.ID, slidePath, model.JobTypeTissueMask, "main")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	canceled, err := e.CancelJob(ctx, "tenant-a", job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if canceled.State != model.JobStateCanceled {
		t.Fatalf("state = %v, want CANCELED", canceled.State)
	}
}
