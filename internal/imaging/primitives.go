package imaging

import (
	"image"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// Luminance returns the ITU-R BT.601 luma of an RGBA pixel, 0-255.
func Luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Grayscale returns the BT.601 luminance plane of img as a row-major slice.
func Grayscale(img *image.RGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			out[y*w+x] = Luminance(row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// ColorHistogram is a 3-channel histogram with 64 bins per channel.
type ColorHistogram struct {
	R, G, B [64]float64
	Total   float64
}

// HistogramRGB computes the 64-bin-per-channel color histogram of img.
func HistogramRGB(img *image.RGBA) *ColorHistogram {
	h := &ColorHistogram{}
	b := img.Bounds()
	w, hh := b.Dx(), b.Dy()
	for y := 0; y < hh; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			h.R[row[x*4]>>2]++
			h.G[row[x*4+1]>>2]++
			h.B[row[x*4+2]>>2]++
			h.Total++
		}
	}
	return h
}

// Intersection returns the histogram intersection of a and b, normalized to
// [0,1] where 1 means identical distributions. Motion between consecutive
// frames is 1 - Intersection.
func (a *ColorHistogram) Intersection(b *ColorHistogram) float64 {
	if a.Total == 0 || b.Total == 0 {
		return 0
	}
	var inter float64
	for i := 0; i < 64; i++ {
		inter += math.Min(a.R[i]/a.Total, b.R[i]/b.Total)
		inter += math.Min(a.G[i]/a.Total, b.G[i]/b.Total)
		inter += math.Min(a.B[i]/a.Total, b.B[i]/b.Total)
	}
	return inter / 3
}

// Difference returns 1 - Intersection, the per-transition motion score.
func (a *ColorHistogram) Difference(b *ColorHistogram) float64 {
	return 1 - a.Intersection(b)
}

// GrayHistogram computes a normalized 256-bin grayscale histogram over the
// given rect of img. The rect is clamped to the image bounds; a zero-area
// rect yields the histogram of a 1x1 black matrix (all mass in bin 0),
// which correlates with nothing and so reads as "different".
func GrayHistogram(img *image.RGBA, rect image.Rectangle) [256]float64 {
	var hist [256]float64
	r := rect.Intersect(img.Bounds())
	if r.Empty() {
		hist[0] = 1
		return hist
	}
	var total float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[(y-img.Rect.Min.Y)*img.Stride:]
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (x - img.Rect.Min.X) * 4
			l := int(Luminance(row[i], row[i+1], row[i+2]))
			if l > 255 {
				l = 255
			}
			hist[l]++
			total++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// PearsonCorrelation computes the Pearson correlation coefficient of two
// equal-length histograms. Returns 0 when either side has zero variance.
func PearsonCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n
	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// Resize scales img to w x h using approximate bi-linear resampling.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// EdgeDensity measures the fraction of pixels whose Sobel gradient magnitude
// exceeds a fixed threshold. Result is in [0,1].
func EdgeDensity(img *image.RGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	gray := Grayscale(img)
	const threshold = 96.0
	var edges, total float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -gray[(y-1)*w+x-1] + gray[(y-1)*w+x+1] +
				-2*gray[y*w+x-1] + 2*gray[y*w+x+1] +
				-gray[(y+1)*w+x-1] + gray[(y+1)*w+x+1]
			gy := -gray[(y-1)*w+x-1] - 2*gray[(y-1)*w+x] - gray[(y-1)*w+x+1] +
				gray[(y+1)*w+x-1] + 2*gray[(y+1)*w+x] + gray[(y+1)*w+x+1]
			if math.Hypot(gx, gy) > threshold {
				edges++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return edges / total
}

// Sharpness returns the variance of the Laplacian, the standard blur metric.
// Sharp photos land well above 1000; heavily blurred inputs fall under 100.
func Sharpness(img *image.RGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	gray := Grayscale(img)
	lap := make([]float64, 0, (w-2)*(h-2))
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := -4*gray[y*w+x] + gray[y*w+x-1] + gray[y*w+x+1] + gray[(y-1)*w+x] + gray[(y+1)*w+x]
			lap = append(lap, v)
			sum += v
		}
	}
	mean := sum / float64(len(lap))
	var variance float64
	for _, v := range lap {
		variance += (v - mean) * (v - mean)
	}
	return variance / float64(len(lap))
}

// LuminanceEntropy returns the Shannon entropy of the luminance histogram
// in bits, range [0,8].
func LuminanceEntropy(img *image.RGBA) float64 {
	hist := GrayHistogram(img, img.Bounds())
	var entropy float64
	for _, p := range hist {
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// MeanLuminance returns the average luminance normalized to [0,1].
func MeanLuminance(img *image.RGBA) float64 {
	gray := Grayscale(img)
	if len(gray) == 0 {
		return 0
	}
	var sum float64
	for _, v := range gray {
		sum += v
	}
	return sum / float64(len(gray)) / 255
}

// MeanSaturation returns the average HSV saturation in [0,1].
func MeanSaturation(img *image.RGBA) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, bb := float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])
			max := math.Max(r, math.Max(g, bb))
			min := math.Min(r, math.Min(g, bb))
			if max > 0 {
				sum += (max - min) / max
			}
		}
	}
	return sum / float64(w*h)
}

// DominantColor is one entry of a quantized palette.
type DominantColor struct {
	Name       string
	Hex        string
	Percentage float64
}

// namedColors is the reference palette used to label dominant colors.
var namedColors = []struct {
	name    string
	r, g, b float64
}{
	{"black", 0, 0, 0}, {"white", 255, 255, 255}, {"gray", 128, 128, 128},
	{"red", 220, 40, 40}, {"orange", 255, 150, 40}, {"yellow", 245, 220, 60},
	{"green", 60, 170, 70}, {"teal", 50, 170, 170}, {"blue", 50, 100, 220},
	{"purple", 140, 70, 200}, {"pink", 240, 130, 180}, {"brown", 140, 90, 50},
}

// DominantColors quantizes img to a 4-bit-per-channel palette and returns
// the top maxColors entries by pixel share, most common first.
func DominantColors(img *image.RGBA, maxColors int) []DominantColor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	counts := make(map[uint32]int)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			key := uint32(row[x*4]>>4)<<8 | uint32(row[x*4+1]>>4)<<4 | uint32(row[x*4+2]>>4)
			counts[key]++
		}
	}
	type bucket struct {
		key   uint32
		count int
	}
	buckets := make([]bucket, 0, len(counts))
	for k, c := range counts {
		buckets = append(buckets, bucket{k, c})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].count > buckets[j].count })

	total := float64(w * h)
	out := make([]DominantColor, 0, maxColors)
	for _, bk := range buckets {
		if len(out) >= maxColors {
			break
		}
		r := float64(bk.key>>8&0xf)*17 + 8
		g := float64(bk.key>>4&0xf)*17 + 8
		bl := float64(bk.key&0xf)*17 + 8
		out = append(out, DominantColor{
			Name:       nearestColorName(r, g, bl),
			Hex:        hexColor(r, g, bl),
			Percentage: float64(bk.count) / total,
		})
	}
	return out
}

func nearestColorName(r, g, b float64) string {
	best, bestDist := "gray", math.MaxFloat64
	for _, c := range namedColors {
		d := (r-c.r)*(r-c.r) + (g-c.g)*(g-c.g) + (b-c.b)*(b-c.b)
		if d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}

func hexColor(r, g, b float64) string {
	const digits = "0123456789abcdef"
	buf := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []float64{r, g, b} {
		n := int(v)
		if n > 255 {
			n = 255
		}
		buf[1+i*2] = digits[n>>4]
		buf[2+i*2] = digits[n&0xf]
	}
	return string(buf)
}

// IsMostlyGrayscale reports whether the image's average saturation is low
// enough to read as grayscale.
func IsMostlyGrayscale(img *image.RGBA) bool {
	return MeanSaturation(img) < 0.08
}
