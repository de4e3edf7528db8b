// Package tiling computes the row-major tile grid a job's image is split
// into, generalizing original_source's iter_tiles generator into an
// idiomatic Go value type plus the interior-overlap extension the tiling
// driver needs on read.
package tiling

// Tile is one cell of a tile grid. X, Y, W, H describe the tile's own
// (non-overlapping) region within the full image; Row and Col are its
// position in the grid, used for deterministic naming and preview
// compositing.
type Tile struct {
	Row, Col int
	X, Y     int
	W, H     int
}

// Grid computes the row-major layout of non-overlapping tileSize x tileSize
// tiles covering an imgW x imgH image, with edge tiles clipped to the image
// bounds. overlap does not change the layout; it is applied per tile on
// read by Extend.
func Grid(imgW, imgH, tileSize, overlap int) []Tile {
	if imgW <= 0 || imgH <= 0 || tileSize <= 0 {
		return nil
	}
	step := tileSize

	var tiles []Tile
	row := 0
	for y := 0; y < imgH; y += step {
		h := tileSize
		if y+h > imgH {
			h = imgH - y
		}
		col := 0
		for x := 0; x < imgW; x += step {
			w := tileSize
			if x+w > imgW {
				w = imgW - x
			}
			tiles = append(tiles, Tile{Row: row, Col: col, X: x, Y: y, W: w, H: h})
			col++
		}
		row++
	}
	return tiles
}

// ReadRegion is the overlap-extended region a tile should be read with:
// each non-edge side is extended by overlap pixels so inference sees
// neighboring context, clamped to the image bounds. CropOffsetX/Y give the
// offset of the tile's own (non-extended) region within the returned
// region, so the result can be cropped back to Tile.W x Tile.H after
// inference.
type ReadRegion struct {
	X, Y int
	W, H int

	CropOffsetX, CropOffsetY int
}

// Extend computes t's overlap-extended read region against an imgW x imgH
// image. Interior tiles gain up to `overlap` pixels of neighboring context
// on each side that isn't already an image edge.
func Extend(t Tile, imgW, imgH, overlap int) ReadRegion {
	x0 := t.X - overlap
	cropX := overlap
	if x0 < 0 {
		x0 = 0
		cropX = t.X
	}
	y0 := t.Y - overlap
	cropY := overlap
	if y0 < 0 {
		y0 = 0
		cropY = t.Y
	}

	x1 := t.X + t.W + overlap
	if x1 > imgW {
		x1 = imgW
	}
	y1 := t.Y + t.H + overlap
	if y1 > imgH {
		y1 = imgH
	}

	return ReadRegion{
		X:           x0,
		Y:           y0,
		W:           x1 - x0,
		H:           y1 - y0,
		CropOffsetX: cropX,
		CropOffsetY: cropY,
	}
}
