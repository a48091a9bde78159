package vision

import (
	"bytes"
	"image"
	"testing"

	"github.com/disintegration/imaging"
)

func encodeTestImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, image.White.C)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocess_CapsWidth(t *testing.T) {
	data := encodeTestImage(t, 4800, 600)
	out, err := Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess error: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 2400 {
		t.Fatalf("expected width capped at 2400, got %d", img.Bounds().Dx())
	}
}

func TestPreprocess_SmallImageKeepsSize(t *testing.T) {
	data := encodeTestImage(t, 800, 600)
	out, err := Preprocess(data)
	if err != nil {
		t.Fatalf("Preprocess error: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 800 || img.Bounds().Dy() != 600 {
		t.Fatalf("expected 800x600, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestSplitTiles_ShortImageSingleTile(t *testing.T) {
	data := encodeTestImage(t, 1000, 2000)
	tiles, err := SplitTiles(data)
	if err != nil {
		t.Fatalf("SplitTiles error: %v", err)
	}
	if len(tiles) != 1 {
		t.Fatalf("expected 1 tile, got %d", len(tiles))
	}
	if tiles[0].OffsetY != 0 {
		t.Fatalf("expected zero offset, got %v", tiles[0].OffsetY)
	}
}

func TestSplitTiles_TallImageBands(t *testing.T) {
	data := encodeTestImage(t, 1000, 7000)
	tiles, err := SplitTiles(data)
	if err != nil {
		t.Fatalf("SplitTiles error: %v", err)
	}
	if len(tiles) != 3 {
		t.Fatalf("expected 3 tiles, got %d", len(tiles))
	}
	if tiles[0].OffsetY != 0 {
		t.Fatalf("first tile must start at the top, got %v", tiles[0].OffsetY)
	}
	// Later tiles start one overlap above their band so no text row is cut.
	for i := 1; i < len(tiles); i++ {
		if tiles[i].OffsetY <= tiles[i-1].OffsetY {
			t.Fatalf("tile %d offset %v not below tile %d offset %v", i, tiles[i].OffsetY, i-1, tiles[i-1].OffsetY)
		}
	}
	// The last band runs to the image bottom.
	last, err := imaging.Decode(bytes.NewReader(tiles[len(tiles)-1].Data))
	if err != nil {
		t.Fatalf("decode last tile: %v", err)
	}
	bottom := tiles[len(tiles)-1].OffsetY + float64(last.Bounds().Dy())
	if bottom != 7000 {
		t.Fatalf("expected last tile to reach 7000, got %v", bottom)
	}
}
