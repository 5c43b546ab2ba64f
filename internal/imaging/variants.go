// Package imaging derives the fixed-aspect-ratio campaign variants from a
// source image. Derivation is deterministic: identical source bytes always
// produce pixel-identical crops.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"campaignd/internal/storage"
)

// Ratio describes one target aspect ratio and its standard output size.
type Ratio struct {
	Name    string
	AspectW int
	AspectH int
	Width   int
	Height  int
}

// Key returns the variant map key for the ratio, e.g. "ratio_1_1".
func (r Ratio) Key() string { return "ratio_" + r.Name }

// DefaultRatios is the fixed variant table: square, vertical, horizontal.
var DefaultRatios = []Ratio{
	{Name: "1_1", AspectW: 1, AspectH: 1, Width: 1080, Height: 1080},
	{Name: "9_16", AspectW: 9, AspectH: 16, Width: 1080, Height: 1920},
	{Name: "16_9", AspectW: 16, AspectH: 9, Width: 1920, Height: 1080},
}

const jpegQuality = 95

// Engine turns a source image into the set of ratio variants persisted under
// the storage root.
type Engine struct {
	store  *storage.FileStore
	ratios []Ratio
}

// NewEngine builds an Engine writing through the given store using the default
// ratio table.
func NewEngine(store *storage.FileStore) *Engine {
	return &Engine{store: store, ratios: DefaultRatios}
}

// Flatten normalizes an image to an opaque 3-channel representation by
// compositing it over a white background.
func Flatten(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, src, image.Pt(0, 0), 1.0)
}

// CropToAspect returns the largest centered crop of src matching the target
// aspect ratio. A relatively wider source is cropped symmetrically in width at
// full height; otherwise height is cropped at full width.
func CropToAspect(src image.Image, aspectW, aspectH int) *image.NRGBA {
	bounds := src.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()
	targetAspect := float64(aspectW) / float64(aspectH)
	imgAspect := float64(imgW) / float64(imgH)

	var rect image.Rectangle
	if imgAspect > targetAspect {
		newW := int(float64(imgH) * targetAspect)
		left := (imgW - newW) / 2
		rect = image.Rect(left, 0, left+newW, imgH)
	} else {
		newH := int(float64(imgW) / targetAspect)
		top := (imgH - newH) / 2
		rect = image.Rect(0, top, imgW, top+newH)
	}
	return imaging.Crop(src, rect)
}

// MakeVariant produces one resized variant: centered crop to the ratio's
// aspect, then Lanczos resize to the exact standard size.
func MakeVariant(src image.Image, ratio Ratio) *image.NRGBA {
	cropped := CropToAspect(src, ratio.AspectW, ratio.AspectH)
	return imaging.Resize(cropped, ratio.Width, ratio.Height, imaging.Lanczos)
}

// CreateVariants derives all ratio variants from the image at srcPath and
// persists them beneath generated/<campaignID>[/<skuKey>]/<ratio>/. It returns
// the full mapping of ratio keys to storage-relative paths, or an error if any
// variant fails; the mapping is never partial.
func (e *Engine) CreateVariants(ctx context.Context, srcPath, campaignID, skuKey string) (map[string]string, error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("imaging: open source: %w", err)
	}
	flat := Flatten(src)

	variants := make(map[string]string, len(e.ratios))
	for _, ratio := range e.ratios {
		out := MakeVariant(flat, ratio)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("imaging: encode %s: %w", ratio.Name, err)
		}

		key, err := e.store.Write(ctx, variantKey(campaignID, skuKey, ratio.Name), buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("imaging: persist %s: %w", ratio.Name, err)
		}
		variants[ratio.Key()] = key
	}
	return variants, nil
}

func variantKey(campaignID, skuKey, ratioName string) string {
	if skuKey != "" {
		return fmt.Sprintf("generated/%s/%s/%s/%s_%s_%s.jpg", campaignID, skuKey, ratioName, campaignID, skuKey, ratioName)
	}
	return fmt.Sprintf("generated/%s/%s/%s_%s.jpg", campaignID, ratioName, campaignID, ratioName)
}
