package healing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"github.com/driftline/browserpilot/model"
)

// visualSimilarityStrategy is the last-resort technique (spec.md §4.7):
// compare the current screenshot's perceptual signature against the
// baseline hash stored by the most recent successful heal that recorded
// one. With no baseline it has nothing to compare against and correctly
// returns no candidates — hash similarity is only meaningful relative to
// a known-good reference.
//
// No perceptual-hashing or SSIM library appears anywhere in the
// retrieval pack; this is a direct stdlib image/math implementation of
// an 8x8 average hash compared by Hamming distance. No SSIM score is
// computed. Documented in DESIGN.md as a justified stdlib exception.
type visualSimilarityStrategy struct{}

func (visualSimilarityStrategy) name() model.HealingStrategy { return model.StrategyVisualSimilarity }

func (visualSimilarityStrategy) candidates(_ context.Context, in Input) ([]model.HealedSelector, error) {
	if len(in.Screenshot) == 0 || in.Baseline == nil || in.Baseline.VisualHash == "" {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(in.Screenshot))
	if err != nil {
		return nil, fmt.Errorf("healing: decode screenshot: %w", err)
	}

	baselineHash, err := parseHash(in.Baseline.VisualHash)
	if err != nil {
		return nil, err
	}

	var out []model.HealedSelector
	for _, el := range in.Page.InteractiveElements {
		if el.Selector == in.OriginalSelector {
			continue
		}
		crop := cropBounds(img, el.Bounds)
		if crop == nil {
			continue
		}
		hash := averageHash(crop)
		similarity := hashSimilarity(hash, baselineHash)
		if similarity < 0.6 {
			continue
		}
		out = append(out, model.HealedSelector{
			NewSelector: el.Selector,
			Strategy:    model.StrategyVisualSimilarity,
			Confidence:  similarity,
			Reasoning:   formatHash(hash), // Engine.persist reuses this as the new baseline hash on success
		})
	}
	return out, nil
}

// averageHash computes an 8x8 average hash (aHash): downscale to 8x8
// grayscale, threshold each pixel against the mean, pack into 64 bits.
func averageHash(img image.Image) uint64 {
	const size = 8
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	var gray [size][size]float64
	var sum float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx := bounds.Min.X + x*w/size
			sy := bounds.Min.Y + y*h/size
			r, g, b, _ := img.At(sx, sy).RGBA()
			lum := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535
			gray[y][x] = lum
			sum += lum
		}
	}
	mean := sum / float64(size*size)

	var hash uint64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if gray[y][x] >= mean {
				hash |= 1 << uint(y*size+x)
			}
		}
	}
	return hash
}

// hashSimilarity converts Hamming distance between two 64-bit average
// hashes into a [0,1] similarity score.
func hashSimilarity(a, b uint64) float64 {
	dist := bits.OnesCount64(a ^ b)
	return 1 - float64(dist)/64
}

func cropBounds(img image.Image, b model.Bounds) image.Image {
	if b.Width <= 0 || b.Height <= 0 {
		return nil
	}
	rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	return &subImage{img: img, rect: rect}
}

// subImage is a minimal image.Image view over a sub-rectangle, avoiding a
// dependency on a cropping helper library for one narrow use.
type subImage struct {
	img  image.Image
	rect image.Rectangle
}

func (s *subImage) ColorModel() color.Model { return s.img.ColorModel() }
func (s *subImage) Bounds() image.Rectangle { return s.rect }
func (s *subImage) At(x, y int) color.Color { return s.img.At(x, y) }

func formatHash(h uint64) string { return fmt.Sprintf("%016x", h) }

func parseHash(s string) (uint64, error) {
	var h uint64
	_, err := fmt.Sscanf(s, "%016x", &h)
	if err != nil {
		return 0, fmt.Errorf("healing: parse visual hash %q: %w", s, err)
	}
	return h, nil
}
