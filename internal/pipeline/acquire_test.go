package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"campaignd/internal/domain"
	"campaignd/internal/providers/firefly"
	"campaignd/internal/storage"
)

type fakeGenerator struct {
	creds bool
	data  []byte
	err   error
	calls int
}

func (g *fakeGenerator) HasCredentials() bool { return g.creds }

func (g *fakeGenerator) GenerateImage(ctx context.Context, req firefly.ImageRequest) ([]byte, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.data, nil
}

func newResolver(t *testing.T, gen ImageGenerator) (*SourceResolver, *storage.FileStore, string) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	uploadPath := t.TempDir()
	return NewSourceResolver(store, uploadPath, gen, nil), store, uploadPath
}

func localCampaign(id, sourcePath string) *domain.Campaign {
	return &domain.Campaign{
		ID: id,
		ImageSource: domain.ImageSource{
			Type:       domain.ImageSourceLocal,
			SourcePath: sourcePath,
		},
	}
}

func aiCampaign(id, prompt string) *domain.Campaign {
	return &domain.Campaign{
		ID: id,
		ImageSource: domain.ImageSource{
			Type:     domain.ImageSourceAIGenerated,
			AIPrompt: prompt,
		},
	}
}

func TestAcquireLocalBareNameResolvesAgainstUploads(t *testing.T) {
	r, _, uploadPath := newResolver(t, nil)
	content := []byte("jpeg-bytes")
	if err := os.WriteFile(filepath.Join(uploadPath, "photo.jpg"), content, 0o644); err != nil {
		t.Fatalf("seed upload: %v", err)
	}

	acq, err := r.Acquire(context.Background(), localCampaign("a1", "photo.jpg"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !strings.HasPrefix(acq.Path, uploadPath) {
		t.Errorf("working copy %q outside upload dir", acq.Path)
	}
	if !strings.Contains(filepath.Base(acq.Path), "a1_source_") {
		t.Errorf("working copy name = %q", filepath.Base(acq.Path))
	}
	got, err := os.ReadFile(acq.Path)
	if err != nil {
		t.Fatalf("read working copy: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("working copy differs from source")
	}
	if acq.GeneratedKey != "" || acq.Placeholder {
		t.Errorf("local acquisition set generation fields: %+v", acq)
	}
}

func TestAcquireLocalMissingIsPermanent(t *testing.T) {
	r, _, _ := newResolver(t, nil)

	_, err := r.Acquire(context.Background(), localCampaign("a2", "nope.jpg"))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Error("missing source must not be retryable")
	}
	if !strings.Contains(err.Error(), "source image not found: nope.jpg") {
		t.Errorf("err = %v", err)
	}
}

func TestAcquireLocalAbsolutePath(t *testing.T) {
	r, _, _ := newResolver(t, nil)
	src := filepath.Join(t.TempDir(), "elsewhere.jpg")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	acq, err := r.Acquire(context.Background(), localCampaign("a3", src))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acq.Path == src {
		t.Error("expected a working copy, got the original path")
	}
}

func TestAcquireGeneratedWithoutBackendUsesPlaceholder(t *testing.T) {
	r, store, _ := newResolver(t, nil)

	acq, err := r.Acquire(context.Background(), aiCampaign("a4", "a red sneaker on a beach"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !acq.Placeholder {
		t.Error("expected placeholder fallback")
	}
	if !strings.HasPrefix(acq.GeneratedKey, "generated/a4/") || !strings.Contains(acq.GeneratedKey, "placeholder") {
		t.Errorf("generated key = %q", acq.GeneratedKey)
	}
	full, err := store.Resolve(acq.GeneratedKey)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	img, err := imaging.Open(full)
	if err != nil {
		t.Fatalf("placeholder is not a decodable image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2048 || b.Dy() != 2048 {
		t.Errorf("placeholder size = %dx%d", b.Dx(), b.Dy())
	}
}

func TestAcquireGeneratedBackendFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{creds: true, err: errors.New("firefly: 503")}
	r, _, _ := newResolver(t, gen)

	acq, err := r.Acquire(context.Background(), aiCampaign("a5", "product shot"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !acq.Placeholder {
		t.Error("expected placeholder after backend failure")
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d", gen.calls)
	}
}

func TestAcquireGeneratedStoresBackendOutput(t *testing.T) {
	payload := []byte("ai-image-bytes")
	gen := &fakeGenerator{creds: true, data: payload}
	r, store, _ := newResolver(t, gen)

	acq, err := r.Acquire(context.Background(), aiCampaign("a6", "product shot"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acq.Placeholder {
		t.Error("unexpected placeholder")
	}
	if !strings.Contains(acq.GeneratedKey, "ai_generated") {
		t.Errorf("generated key = %q", acq.GeneratedKey)
	}
	full, err := store.Resolve(acq.GeneratedKey)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("stored bytes differ from backend output")
	}
}

func TestAcquireGeneratedReusesExistingImage(t *testing.T) {
	gen := &fakeGenerator{creds: true, data: []byte("fresh")}
	r, store, _ := newResolver(t, gen)

	key, err := store.Write(context.Background(), "generated/a7/a7_ai_generated_cafe0001.jpg", []byte("previous"))
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	c := aiCampaign("a7", "product shot")
	c.ImageSource.GeneratedPath = key

	acq, err := r.Acquire(context.Background(), c)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acq.GeneratedKey != key {
		t.Errorf("key = %q, want reuse of %q", acq.GeneratedKey, key)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestAcquireGeneratedEmptyPromptIsPermanent(t *testing.T) {
	r, _, _ := newResolver(t, nil)

	_, err := r.Acquire(context.Background(), aiCampaign("a8", "  "))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Error("missing prompt must not be retryable")
	}
}

func TestAcquireUnknownSourceType(t *testing.T) {
	r, _, _ := newResolver(t, nil)
	c := &domain.Campaign{ID: "a9", ImageSource: domain.ImageSource{Type: "url"}}

	if _, err := r.Acquire(context.Background(), c); err == nil || IsRetryable(err) {
		t.Fatalf("err = %v, want permanent failure", err)
	}
}

func TestAcquireSKUKeyFromProducts(t *testing.T) {
	r, _, uploadPath := newResolver(t, nil)
	if err := os.WriteFile(filepath.Join(uploadPath, "p.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := localCampaign("a10", "p.jpg")
	c.Products = []domain.Product{{SKU: "SKU 1!", Price: 10}, {SKU: "B-2", Price: 5}}

	acq, err := r.Acquire(context.Background(), c)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acq.SKUKey != "SKU1_B-2" {
		t.Errorf("sku key = %q", acq.SKUKey)
	}
}

func TestSanitizeSKUKey(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"ABC-123"}, "ABC-123"},
		{[]string{"a b", "c/d"}, "ab_cd"},
		{[]string{"!!!", "ok"}, "ok"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := SanitizeSKUKey(tc.in); got != tc.want {
			t.Errorf("SanitizeSKUKey(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderPlaceholderDeterministic(t *testing.T) {
	a := RenderPlaceholder("summer campaign", 512, 512)
	b := RenderPlaceholder("summer campaign", 512, 512)
	if !bytes.Equal(a, b) {
		t.Error("same prompt must render identical bytes")
	}
	c := RenderPlaceholder("winter campaign", 512, 512)
	if bytes.Equal(a, c) {
		t.Error("different prompts should render different images")
	}
	img, err := imaging.Decode(bytes.NewReader(a))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bounds := img.Bounds(); bounds.Dx() != 512 || bounds.Dy() != 512 {
		t.Errorf("size = %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderPlaceholderEmbedsPromptText(t *testing.T) {
	data := RenderPlaceholder("limited edition sneaker drop", 512, 512)
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The prompt is printed in white on a black band across the vertical
	// center; both the band and the glyph pixels must be present.
	b := img.Bounds()
	var dark, light int
	for y := b.Dy()/2 - 10; y < b.Dy()/2+10; y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := (int(r>>8) + int(g>>8) + int(bl>>8)) / 3
			if lum < 60 {
				dark++
			}
			if lum > 200 {
				light++
			}
		}
	}
	if dark == 0 {
		t.Error("label band missing from placeholder")
	}
	if light == 0 {
		t.Error("prompt glyphs missing from placeholder")
	}

	// A different prompt must produce a different label.
	other := RenderPlaceholder("winter coat clearance", 512, 512)
	if bytes.Equal(data, other) {
		t.Error("label does not vary with the prompt")
	}
}

func TestWrapLabel(t *testing.T) {
	lines := wrapLabel("a red sneaker on a sunlit beach", 12, 3)
	want := []string{"a red", "sneaker on a", "sunlit beach"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if got := wrapLabel("supercalifragilistic", 8, 3); len(got) != 1 || got[0] != "supercal" {
		t.Errorf("overlong word = %v", got)
	}
	if got := wrapLabel("one two three four five six", 3, 2); len(got) != 2 {
		t.Errorf("line cap = %v", got)
	}
}
