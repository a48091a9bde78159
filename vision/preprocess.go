package vision

import (
	"bytes"
	"context"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

const (
	// Images wider than this are downscaled before submission.
	maxSubmitWidth = 2400
	// Images taller than this are tiled so each OCR call stays inside the
	// vision service's sweet spot.
	tileThresholdHeight = 3200
	maxTiles            = 4
)

// Preprocess prepares a scanned statement for OCR: grayscale, a mild contrast
// and sharpen bump, and a resize cap. Returns JPEG bytes.
func Preprocess(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	img = imaging.Grayscale(img)
	img = imaging.AdjustContrast(img, 15)
	img = imaging.Sharpen(img, 1.0)
	if img.Bounds().Dx() > maxSubmitWidth {
		img = imaging.Resize(img, maxSubmitWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Tile is one sub-image plus the offset of its origin in the full image.
type Tile struct {
	Data    []byte
	OffsetX float64
	OffsetY float64
}

// SplitTiles cuts a tall statement into up to maxTiles horizontal bands with a
// small overlap so no text row is lost on a cut. Short images come back as a
// single tile.
func SplitTiles(data []byte) ([]Tile, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	h := bounds.Dy()
	if h <= tileThresholdHeight {
		return []Tile{{Data: data}}, nil
	}

	tiles := (h + tileThresholdHeight - 1) / tileThresholdHeight
	if tiles > maxTiles {
		tiles = maxTiles
	}
	bandH := h / tiles
	overlap := bandH / 10

	out := make([]Tile, 0, tiles)
	for i := 0; i < tiles; i++ {
		top := i*bandH - overlap
		if top < 0 {
			top = 0
		}
		bottom := (i + 1) * bandH
		if i == tiles-1 {
			bottom = h
		}
		crop := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y+top, bounds.Max.X, bounds.Min.Y+bottom))
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, err
		}
		out = append(out, Tile{Data: buf.Bytes(), OffsetY: float64(top)})
	}
	return out, nil
}

// RecognizeTiled runs the vision call per tile concurrently (at most maxTiles
// in flight) and merges the results back into full-image coordinates.
func RecognizeTiled(ctx context.Context, client *Client, data []byte) (*VisionResult, error) {
	tiles, err := SplitTiles(data)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 1 {
		return client.Recognize(ctx, tiles[0].Data)
	}

	results := make([]*VisionResult, len(tiles))
	errs := make([]error, len(tiles))
	var wg sync.WaitGroup
	for i, tile := range tiles {
		wg.Add(1)
		go func(i int, tile Tile) {
			defer wg.Done()
			results[i], errs[i] = client.Recognize(ctx, tile.Data)
		}(i, tile)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	merged := &VisionResult{}
	var text strings.Builder
	for i, res := range results {
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(res.RawText)
		for _, w := range res.Words {
			w.BBox.X += tiles[i].OffsetX
			w.BBox.Y += tiles[i].OffsetY
			merged.Words = append(merged.Words, w)
		}
	}
	merged.RawText = text.String()
	return merged, nil
}
