package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	labelMargin   = 24
	labelMaxLines = 3
)

// RenderPlaceholder synthesizes a deterministic stand-in image for a failed or
// unconfigured generation backend. The palette is seeded from the prompt text
// so the same prompt always renders the same bytes, and the prompt itself is
// written across the center so the stand-in is recognizable as belonging to
// its request.
func RenderPlaceholder(prompt string, width, height int) []byte {
	if width <= 0 {
		width = 2048
	}
	if height <= 0 {
		height = 2048
	}
	seed := promptSeed(prompt)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := height / 12
	if stripeHeight < 32 {
		stripeHeight = 32
	}
	for y := 0; y < height; y += stripeHeight * 2 {
		bottom := y + stripeHeight
		if bottom > height {
			bottom = height
		}
		stripe := image.Rect(0, y, width, bottom)
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	step := width / 32
	if step < 16 {
		step = 16
	}
	for x := 0; x < width+height; x += step {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	drawPromptLabel(img, prompt)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil
	}
	return buf.Bytes()
}

// drawPromptLabel writes the wrapped prompt in white on a black band across
// the vertical center of the image.
func drawPromptLabel(img *image.RGBA, prompt string) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	face := basicfont.Face7x13
	maxChars := (width - 2*labelMargin) / face.Advance
	if maxChars < 4 {
		return
	}
	lines := wrapLabel(prompt, maxChars, labelMaxLines)
	if len(lines) == 0 {
		return
	}

	lineHeight := face.Height + 4
	bandHeight := len(lines)*lineHeight + 16
	top := (bounds.Dy() - bandHeight) / 2
	if top < 0 {
		top = 0
	}
	band := image.Rect(bounds.Min.X, bounds.Min.Y+top, bounds.Max.X, bounds.Min.Y+top+bandHeight)
	draw.Draw(img, band, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	d := font.Drawer{Dst: img, Src: image.White, Face: face}
	for i, line := range lines {
		lineWidth := d.MeasureString(line).Ceil()
		x := (width - lineWidth) / 2
		if x < labelMargin {
			x = labelMargin
		}
		y := top + 8 + i*lineHeight + face.Ascent
		d.Dot = fixed.P(bounds.Min.X+x, bounds.Min.Y+y)
		d.DrawString(line)
	}
}

// wrapLabel greedily wraps text into at most maxLines lines of maxChars
// characters, truncating overlong words.
func wrapLabel(text string, maxChars, maxLines int) []string {
	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		if len(word) > maxChars {
			word = word[:maxChars]
		}
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if len(candidate) <= maxChars {
			cur = candidate
			continue
		}
		lines = append(lines, cur)
		cur = word
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

func promptSeed(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:18]
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "8ca3d2f19b4e6078aa"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}
