// Package brand scores images against a configured brand color palette. The
// result is advisory: it never blocks campaign completion.
package brand

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	sampleEdge = 200
	topColors  = 10

	// Pixels darker or lighter than this band are treated as background or
	// shadow noise, not brand colors.
	minBrightness = 30
	maxBrightness = 225
)

// RGB is a plain 8-bit color triple.
type RGB struct{ R, G, B uint8 }

// Hex renders the color as #rrggbb.
func (c RGB) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Distance is the Euclidean distance between two colors in RGB space (0..~441).
func (c RGB) Distance(o RGB) float64 {
	dr := float64(c.R) - float64(o.R)
	dg := float64(c.G) - float64(o.G)
	db := float64(c.B) - float64(o.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// ParseHex parses #rrggbb (leading # optional).
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return RGB{}, fmt.Errorf("brand: invalid hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return RGB{}, fmt.Errorf("brand: invalid hex color %q", s)
	}
	return RGB{R: r, G: g, B: b}, nil
}

// Result is the analyzer's full diagnostic output.
type Result struct {
	Compliant      bool     `json:"is_compliant"`
	Percentage     float64  `json:"compliance_percentage"`
	DominantColors []string `json:"dominant_colors"`
	Matches        []string `json:"brand_color_matches"`
	NonBrandColors []string `json:"non_brand_colors"`
	Message        string   `json:"message"`
	Skipped        bool     `json:"skipped"`
}

// Analyzer holds the palette and matching parameters.
type Analyzer struct {
	palette   []RGB
	hexes     []string
	tolerance float64
	threshold float64
}

// NewAnalyzer parses the hex palette and builds an analyzer. Tolerance is the
// maximum RGB distance for a match (0-255 scale); threshold is the compliance
// percentage required.
func NewAnalyzer(hexColors []string, tolerance int, threshold float64) (*Analyzer, error) {
	a := &Analyzer{tolerance: float64(tolerance), threshold: threshold}
	for _, h := range hexColors {
		c, err := ParseHex(h)
		if err != nil {
			return nil, err
		}
		a.palette = append(a.palette, c)
		a.hexes = append(a.hexes, c.Hex())
	}
	return a, nil
}

// Enabled reports whether any reference colors are configured.
func (a *Analyzer) Enabled() bool { return a != nil && len(a.palette) > 0 }

type colorCount struct {
	color RGB
	count int
}

// AnalyzeFile opens and analyzes the image at path.
func (a *Analyzer) AnalyzeFile(path string) (*Result, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("brand: open image: %w", err)
	}
	return a.Analyze(img), nil
}

// Analyze scores an image against the palette. With no palette configured the
// image is trivially compliant.
func (a *Analyzer) Analyze(img image.Image) *Result {
	if !a.Enabled() {
		return &Result{
			Compliant:  true,
			Percentage: 100,
			Message:    "no brand colors configured - validation skipped",
			Skipped:    true,
		}
	}

	dominant := dominantColors(img, topColors)

	var (
		matches   []string
		seen      = map[string]struct{}{}
		nonBrand  []string
		total     int
		brandHits int
	)
	for _, cc := range dominant {
		total += cc.count
		if hex, ok := a.nearestMatch(cc.color); ok {
			brandHits += cc.count
			if _, dup := seen[hex]; !dup {
				seen[hex] = struct{}{}
				matches = append(matches, hex)
			}
		} else {
			nonBrand = append(nonBrand, cc.color.Hex())
		}
	}

	percentage := 0.0
	if total > 0 {
		percentage = float64(brandHits) / float64(total) * 100
	}
	percentage = math.Round(percentage*100) / 100
	compliant := percentage >= a.threshold

	var message string
	if compliant {
		message = fmt.Sprintf("image is brand compliant (%.1f%% brand colors); matches: %s",
			percentage, strings.Join(matches, ", "))
	} else {
		message = fmt.Sprintf("image may not be brand compliant (%.1f%% brand colors); expected brand colors: %s",
			percentage, strings.Join(a.hexes, ", "))
	}

	res := &Result{
		Compliant:  compliant,
		Percentage: percentage,
		Matches:    matches,
		Message:    message,
	}
	for i, cc := range dominant {
		if i == 5 {
			break
		}
		res.DominantColors = append(res.DominantColors, cc.color.Hex())
	}
	if len(nonBrand) > 5 {
		nonBrand = nonBrand[:5]
	}
	res.NonBrandColors = nonBrand
	return res
}

func (a *Analyzer) nearestMatch(c RGB) (string, bool) {
	for _, ref := range a.palette {
		if c.Distance(ref) <= a.tolerance {
			return ref.Hex(), true
		}
	}
	return "", false
}

// dominantColors downsamples the image, drops near-black/near-white pixels and
// returns the n most frequent remaining colors. If filtering removes every
// pixel it falls back to the unfiltered histogram.
func dominantColors(img image.Image, n int) []colorCount {
	small := imaging.Fit(img, sampleEdge, sampleEdge, imaging.NearestNeighbor)

	filtered := map[RGB]int{}
	all := map[RGB]int{}
	bounds := small.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := small.At(x, y).RGBA()
			c := RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
			all[c]++
			brightness := (float64(c.R) + float64(c.G) + float64(c.B)) / 3
			if brightness > minBrightness && brightness < maxBrightness {
				filtered[c]++
			}
		}
	}
	hist := filtered
	if len(hist) == 0 {
		hist = all
	}

	counts := make([]colorCount, 0, len(hist))
	for c, count := range hist {
		counts = append(counts, colorCount{color: c, count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		// Stable order for equal counts keeps the result deterministic.
		a, b := counts[i].color, counts[j].color
		if a.R != b.R {
			return a.R < b.R
		}
		if a.G != b.G {
			return a.G < b.G
		}
		return a.B < b.B
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
