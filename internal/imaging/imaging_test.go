package imaging

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestOpen_SingleImageSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slide.png")
	writeTestPNG(t, path, 200, 150)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	w, h, err := src.Dimensions(context.Background())
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 200 || h != 150 {
		t.Fatalf("dimensions = (%d,%d), want (200,150)", w, h)
	}

	region, err := src.ReadRegion(context.Background(), 10, 10, 50, 50)
	if err != nil {
		t.Fatalf("ReadRegion: %v", err)
	}
	if region.Bounds().Dx() != 50 || region.Bounds().Dy() != 50 {
		t.Fatalf("region bounds = %v, want 50x50", region.Bounds())
	}
}

func TestOpen_PyramidSourceDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slide.svs")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	src1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src1.Close()
	w1, h1, _ := src1.Dimensions(context.Background())

	src2, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src2.Close()
	w2, h2, _ := src2.Dimensions(context.Background())

	if w1 != w2 || h1 != h2 {
		t.Fatalf("PyramidSource dimensions not deterministic: (%d,%d) vs (%d,%d)", w1, h1, w2, h2)
	}

	r1, _ := src1.ReadRegion(context.Background(), 5, 5, 10, 10)
	r2, _ := src2.ReadRegion(context.Background(), 5, 5, 10, 10)
	if r1.At(3, 3) != r2.At(3, 3) {
		t.Fatal("PyramidSource region pixels not deterministic across opens")
	}
}
