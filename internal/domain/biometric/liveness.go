package biometric

import (
	"context"
	"image"
	"math"
)

// Liveness heuristics, each scored in [0,1]. A heuristic that cannot be
// computed returns -1 and is excluded from the mean rather than counted as
// zero.
const uncomputable = -1.0

// grayImage caches the luminance and brightness planes the heuristics share.
type grayImage struct {
	w, h  int
	pix   []float64 // luminance, 0..255
	value []float64 // max(R,G,B) per pixel, 0..255
}

func newGrayImage(img image.Image) *grayImage {
	b := img.Bounds()
	g := &grayImage{
		w:     b.Dx(),
		h:     b.Dy(),
		pix:   make([]float64, b.Dx()*b.Dy()),
		value: make([]float64, b.Dx()*b.Dy()),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r>>8), float64(gr>>8), float64(bl>>8)
			g.pix[i] = 0.299*rf + 0.587*gf + 0.114*bf
			g.value[i] = math.Max(rf, math.Max(gf, bf))
			i++
		}
	}
	return g
}

func (g *grayImage) at(x, y int) float64 { return g.pix[y*g.w+x] }

// liveness averages the computable heuristics. faces is the detector's face
// count for the selfie, shared with the eye-pattern heuristic.
func (s *Scorer) liveness(ctx context.Context, img *grayImage, selfie []byte, faces int) float64 {
	scores := []float64{
		textureScore(img),
		motionScore(img),
		s.eyePatternScore(ctx, selfie, faces),
		depthScore(img),
		reflectionScore(img),
	}

	sum, n := 0.0, 0
	for _, sc := range scores {
		if sc >= 0 {
			sum += sc
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// textureScore measures gradient-magnitude variance: flat photo reproductions
// carry less texture than a live capture.
func textureScore(g *grayImage) float64 {
	mags := sobelMagnitudes(g)
	if mags == nil {
		return uncomputable
	}
	return math.Min(1, variance(mags)/1000)
}

// motionScore bands the Laplacian variance: a little capture blur is normal,
// heavy blur is not.
func motionScore(g *grayImage) float64 {
	lap := laplacian(g)
	if lap == nil {
		return uncomputable
	}
	switch v := variance(lap); {
	case v < 50:
		return 0.2
	case v > 500:
		return 0.9
	default:
		return 0.6
	}
}

// eyePatternScore rewards selfies where the detector finds both eyes.
func (s *Scorer) eyePatternScore(ctx context.Context, selfie []byte, faces int) float64 {
	if faces == 0 {
		return uncomputable
	}
	eyes, err := s.detector.CountEyes(ctx, selfie)
	if err != nil {
		return uncomputable
	}
	switch {
	case eyes >= 2:
		return 0.8
	case eyes == 1:
		return 0.5
	default:
		return 0.2
	}
}

// depthScore measures gradient-direction variance: a 3D face produces more
// varied gradient angles than a flat reproduction.
func depthScore(g *grayImage) float64 {
	gx, gy := sobel(g)
	if gx == nil {
		return uncomputable
	}
	angles := make([]float64, len(gx))
	for i := range gx {
		angles[i] = math.Atan2(gy[i], gx[i])
	}
	return math.Min(1, variance(angles)/2)
}

// reflectionScore penalizes large saturated-highlight areas, a telltale of a
// selfie taken of a screen.
func reflectionScore(g *grayImage) float64 {
	if len(g.value) == 0 {
		return uncomputable
	}
	bright := 0
	for _, v := range g.value {
		if v > 240 {
			bright++
		}
	}
	switch ratio := float64(bright) / float64(len(g.value)); {
	case ratio > 0.1:
		return 0.3
	case ratio > 0.05:
		return 0.6
	default:
		return 0.8
	}
}

// quality scores the selfie from sharpness, brightness, and contrast.
func quality(g *grayImage) float64 {
	lap := laplacian(g)
	if lap == nil || len(g.pix) == 0 {
		return 0
	}
	sharpness := variance(lap)
	brightness := mean(g.pix)
	contrast := math.Sqrt(variance(g.pix))

	return math.Min(1, (sharpness/500+math.Min(brightness/128, 1)+contrast/64)/3)
}

// sobel computes 3x3 Sobel gradients over interior pixels; nil when the image
// is too small for the kernel.
func sobel(g *grayImage) ([]float64, []float64) {
	if g.w < 3 || g.h < 3 {
		return nil, nil
	}
	n := (g.w - 2) * (g.h - 2)
	gx := make([]float64, 0, n)
	gy := make([]float64, 0, n)
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			dx := g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x-1, y) - g.at(x-1, y+1)
			dy := g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x, y-1) - g.at(x+1, y-1)
			gx = append(gx, dx)
			gy = append(gy, dy)
		}
	}
	return gx, gy
}

func sobelMagnitudes(g *grayImage) []float64 {
	gx, gy := sobel(g)
	if gx == nil {
		return nil
	}
	mags := make([]float64, len(gx))
	for i := range gx {
		mags[i] = math.Hypot(gx[i], gy[i])
	}
	return mags
}

// laplacian applies the 4-neighbor kernel over interior pixels.
func laplacian(g *grayImage) []float64 {
	if g.w < 3 || g.h < 3 {
		return nil
	}
	out := make([]float64, 0, (g.w-2)*(g.h-2))
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			v := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			out = append(out, v)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}
