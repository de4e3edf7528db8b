package tiling

import "testing"

func TestGrid_CoversFullImageWithoutGaps(t *testing.T) {
	tiles := Grid(2500, 2000, 1024, 64)
	if len(tiles) == 0 {
		t.Fatal("expected at least one tile")
	}

	var maxX, maxY int
	for _, tl := range tiles {
		if tl.X+tl.W > maxX {
			maxX = tl.X + tl.W
		}
		if tl.Y+tl.H > maxY {
			maxY = tl.Y + tl.H
		}
		if tl.W <= 0 || tl.H <= 0 {
			t.Fatalf("tile %+v has non-positive dimension", tl)
		}
	}
	if maxX != 2500 || maxY != 2000 {
		t.Fatalf("grid covers (%d,%d), want (2500,2000)", maxX, maxY)
	}
}

func TestGrid_EdgeTilesClipped(t *testing.T) {
	tiles := Grid(1100, 1100, 1024, 64)
	step := 1024
	var found bool
	for _, tl := range tiles {
		if tl.X == step {
			found = true
			if tl.W != 1100-step {
				t.Fatalf("edge tile width = %d, want %d", tl.W, 1100-step)
			}
		}
	}
	if !found {
		t.Fatal("expected an edge tile at the second column")
	}
}

func TestGrid_SmallImageSingleTile(t *testing.T) {
	tiles := Grid(100, 80, 1024, 64)
	if len(tiles) != 1 {
		t.Fatalf("len(tiles) = %d, want 1", len(tiles))
	}
	if tiles[0].W != 100 || tiles[0].H != 80 {
		t.Fatalf("tile = %+v, want full 100x80", tiles[0])
	}
}

func TestExtend_InteriorTileGetsFullOverlap(t *testing.T) {
	tile := Tile{X: 1024 - 64, Y: 1024 - 64, W: 960, H: 960}
	r := Extend(tile, 4096, 4096, 64)

	if r.CropOffsetX != 64 || r.CropOffsetY != 64 {
		t.Fatalf("crop offsets = (%d,%d), want (64,64)", r.CropOffsetX, r.CropOffsetY)
	}
	if r.X != tile.X-64 || r.Y != tile.Y-64 {
		t.Fatalf("region origin = (%d,%d), want (%d,%d)", r.X, r.Y, tile.X-64, tile.Y-64)
	}
}

func TestExtend_EdgeTileClampsToImageBounds(t *testing.T) {
	tile := Tile{X: 0, Y: 0, W: 1024, H: 1024}
	r := Extend(tile, 4096, 4096, 64)

	if r.X != 0 || r.Y != 0 {
		t.Fatalf("region origin = (%d,%d), want (0,0) at image edge", r.X, r.Y)
	}
	if r.CropOffsetX != 0 || r.CropOffsetY != 0 {
		t.Fatalf("crop offsets = (%d,%d), want (0,0) at image edge", r.CropOffsetX, r.CropOffsetY)
	}
	if r.W != tile.W+64 {
		t.Fatalf("region width = %d, want %d (extended on the interior side only)", r.W, tile.W+64)
	}
}

func TestExtend_CropBackRecoversOriginalTile(t *testing.T) {
	tile := Tile{X: 500, Y: 500, W: 300, H: 300}
	r := Extend(tile, 4096, 4096, 64)

	// The tile's own region, expressed in the extended region's local
	// coordinates, must exactly match its declared W x H.
	if r.W-r.CropOffsetX*2 != tile.W {
		t.Fatalf("cropping back W: extended=%d cropOffset=%d want tile.W=%d", r.W, r.CropOffsetX, tile.W)
	}
}
