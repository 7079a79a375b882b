package imgcmp

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestScaleMask(t *testing.T) {
	mask := image.NewRGBA(image.Rect(0, 0, 2, 2))
	mask.SetRGBA(1, 0, maskFail)

	if ScaleMask(mask, 1) != mask {
		t.Error("factor 1 should return the mask unchanged")
	}

	big := ScaleMask(mask, 4)
	if big.Bounds().Dx() != 8 || big.Bounds().Dy() != 8 {
		t.Fatalf("scaled size = %v", big.Bounds())
	}
	for y := range 4 {
		for x := 4; x < 8; x++ {
			if big.RGBAAt(x, y) != maskFail {
				t.Fatalf("pixel (%d,%d) = %v, want red", x, y, big.RGBAAt(x, y))
			}
		}
	}
	if big.RGBAAt(3, 3) == maskFail {
		t.Error("scaling bled into the neighbouring pixel")
	}
}

func TestSaveMaskLoadImage(t *testing.T) {
	ref := solid(3, 3, color.NRGBA{0, 0, 0, 255})
	res := solid(3, 3, color.NRGBA{0, 0, 0, 255})
	res.SetNRGBA(2, 2, color.NRGBA{255, 255, 255, 255})

	r, err := IntThresholdCompare("mask", ref, res, Threshold{})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "mask.png")
	if err := SaveMask(path, r, 2); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 6 {
		t.Fatalf("mask width = %d, want 6", img.Bounds().Dx())
	}
	if c := color.NRGBAModel.Convert(img.At(5, 5)).(color.NRGBA); c.R != 255 || c.G != 0 {
		t.Errorf("failing pixel = %v, want red", c)
	}
	if c := color.NRGBAModel.Convert(img.At(0, 0)).(color.NRGBA); c.G != 255 || c.R != 0 {
		t.Errorf("passing pixel = %v, want green", c)
	}

	if err := SaveMask(path, nil, 1); err == nil {
		t.Error("SaveMask(nil) should fail")
	}
	if _, err := LoadImage(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("LoadImage of a missing file should fail")
	}
}

func TestLoadRawMatchesReference(t *testing.T) {
	ref := solid(2, 2, color.NRGBA{0, 0, 255, 255})
	ref.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})

	// readPixels order: bottom row first, so the red top-left pixel is third.
	dump := []byte{
		0, 0, 255, 255, 0, 0, 255, 255,
		255, 0, 0, 255, 0, 0, 255, 255,
	}
	path := filepath.Join(t.TempDir(), "readback.bin")
	if err := os.WriteFile(path, dump, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := LoadRaw(path, "2x2:rgba8:flip")
	if err != nil {
		t.Fatal(err)
	}
	r, err := IntThresholdCompare("raw", ref, res, Threshold{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Passed() {
		t.Errorf("raw readback mismatched %d pixels", r.Mismatched)
	}

	if _, err := LoadRaw(path, "2x2:rgba8:stride=16"); err == nil {
		t.Error("LoadRaw accepted a dump shorter than its layout")
	}
	if _, err := LoadRaw(path, "2x2"); err == nil {
		t.Error("LoadRaw accepted a layout without a format")
	}
}
