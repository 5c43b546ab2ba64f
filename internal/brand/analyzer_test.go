package brand

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func solidImage(c color.NRGBA, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#FF5733")
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if c.R != 0xFF || c.G != 0x57 || c.B != 0x33 {
		t.Errorf("got %+v", c)
	}
	if _, err := ParseHex("nope"); err == nil {
		t.Error("expected error for invalid hex")
	}
	if _, err := ParseHex("#12345"); err == nil {
		t.Error("expected error for short hex")
	}
}

func TestDistance(t *testing.T) {
	a := RGB{R: 0, G: 0, B: 0}
	b := RGB{R: 3, G: 4, B: 0}
	if d := a.Distance(b); d != 5 {
		t.Errorf("distance = %v, want 5", d)
	}
}

func TestAnalyzeCompliantImage(t *testing.T) {
	a, err := NewAnalyzer([]string{"#FF5733"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	img := solidImage(color.NRGBA{R: 0xFF, G: 0x57, B: 0x33, A: 255}, 400, 400)

	res := a.Analyze(img)
	if !res.Compliant {
		t.Fatalf("expected compliant, got %+v", res)
	}
	if res.Percentage != 100 {
		t.Errorf("percentage = %v, want 100", res.Percentage)
	}
	if len(res.Matches) != 1 || res.Matches[0] != "#ff5733" {
		t.Errorf("matches = %v", res.Matches)
	}
}

func TestAnalyzeNonCompliantImage(t *testing.T) {
	a, err := NewAnalyzer([]string{"#FF5733"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	// Mid-brightness blue, far from the palette.
	img := solidImage(color.NRGBA{R: 40, G: 60, B: 200, A: 255}, 400, 400)

	res := a.Analyze(img)
	if res.Compliant {
		t.Fatalf("expected non-compliant, got %+v", res)
	}
	if res.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", res.Percentage)
	}
	if len(res.NonBrandColors) == 0 {
		t.Error("expected non-brand colors reported")
	}
}

func TestAnalyzeWithinTolerance(t *testing.T) {
	a, err := NewAnalyzer([]string{"#646464"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	// 10 units away per channel: distance ~17.3, inside tolerance 30.
	img := solidImage(color.NRGBA{R: 110, G: 110, B: 110, A: 255}, 200, 200)

	res := a.Analyze(img)
	if !res.Compliant {
		t.Fatalf("expected near-match compliance, got %+v", res)
	}
}

func TestAnalyzeEmptyPaletteSkips(t *testing.T) {
	a, err := NewAnalyzer(nil, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	res := a.Analyze(solidImage(color.NRGBA{R: 100, G: 100, B: 100, A: 255}, 10, 10))
	if !res.Skipped || !res.Compliant {
		t.Errorf("expected skipped+compliant, got %+v", res)
	}
	if a.Enabled() {
		t.Error("analyzer with empty palette must report disabled")
	}
}

func TestAnalyzeFiltersBackgroundPixels(t *testing.T) {
	a, err := NewAnalyzer([]string{"#FF5733"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	// Brand color band surrounded by pure white, which the brightness filter
	// must ignore.
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	brand := color.NRGBA{R: 0xFF, G: 0x57, B: 0x33, A: 255}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			if y >= 100 && y < 200 {
				img.SetNRGBA(x, y, brand)
			} else {
				img.SetNRGBA(x, y, white)
			}
		}
	}

	res := a.Analyze(img)
	if !res.Compliant {
		t.Fatalf("white background should be excluded from scoring, got %+v", res)
	}
}

func TestAnalyzeBrightnessBoundaryUsesMeanFraction(t *testing.T) {
	a, err := NewAnalyzer([]string{"#1D1E20"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	// (29,30,32) has mean 30.33: above the lower cutoff only when the mean
	// keeps its fraction. Three quarters brand color, one quarter mid gray.
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	brand := color.NRGBA{R: 29, G: 30, B: 32, A: 255}
	gray := color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < 300; y++ {
		c := brand
		if y >= 225 {
			c = gray
		}
		for x := 0; x < 300; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	res := a.Analyze(img)
	if !res.Compliant {
		t.Fatalf("boundary color dropped from scoring, got %+v", res)
	}
	if res.Percentage < 70 {
		t.Errorf("percentage = %v, want about 75", res.Percentage)
	}
}

func TestAnalyzeFile(t *testing.T) {
	a, err := NewAnalyzer([]string{"#3498DB"}, 30, 50)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	path := filepath.Join(t.TempDir(), "img.png")
	if err := imaging.Save(solidImage(color.NRGBA{R: 0x34, G: 0x98, B: 0xDB, A: 255}, 100, 100), path); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := a.AnalyzeFile(path)
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	if !res.Compliant {
		t.Errorf("expected compliant, got %+v", res)
	}

	if _, err := a.AnalyzeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
