package damage

import (
	"bytes"
	"image"
	"log/slog"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/claimlens/claimlens/constants"
)

// Label is the per-image classification output.
type Label struct {
	Class      constants.DamageClass
	Confidence float64 // arg-max probability in [0,1]; 0 when Class is unknown
}

// Classifier runs the frozen two-class head over uploaded evidence images.
// Inference mutates nothing, so a single Classifier is safe for concurrent
// use across pipeline runs.
type Classifier struct {
	w      *Weights
	logger *slog.Logger
}

func NewClassifier(w *Weights, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{w: w, logger: logger}
}

// Available reports whether weights are loaded. Consumed by the health endpoint.
func (c *Classifier) Available() bool { return c != nil && c.w != nil }

// Classify labels one evidence image. It is a total function: a corrupt or
// unsupported blob yields {unknown, 0}, never an error.
func (c *Classifier) Classify(img []byte) Label {
	if c.w == nil || len(img) == 0 {
		return Label{Class: constants.DamageUnknown, Confidence: 0}
	}

	decoded, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		c.logger.Debug("image decode failed", "error", err)
		return Label{Class: constants.DamageUnknown, Confidence: 0}
	}

	feats := extractFeatures(decoded, c.w.InputSize)
	for i := range feats {
		feats[i] = (feats[i] - c.w.FeatureMean[i]) / c.w.FeatureStd[i]
	}

	// two logits, softmax, arg-max
	var logits [2]float64
	for k := 0; k < 2; k++ {
		z := c.w.Bias[k]
		for i, f := range feats {
			z += c.w.Coef[k][i] * f
		}
		logits[k] = z
	}
	p0 := softmax2(logits[0], logits[1])
	cls, conf := c.w.Classes[0], p0
	if p0 < 0.5 {
		cls, conf = c.w.Classes[1], 1-p0
	}

	c.logger.Debug("image classified", "format", format, "class", cls, "confidence", conf)
	return Label{Class: constants.DamageClass(cls), Confidence: conf}
}

func softmax2(a, b float64) float64 {
	m := math.Max(a, b)
	ea := math.Exp(a - m)
	eb := math.Exp(b - m)
	return ea / (ea + eb)
}

// extractFeatures resizes to size x size and computes the fixed 16-feature
// descriptor the head was trained on: per-channel mean and stddev (6), mean
// gradient energy over a 3x3 grid (9), and mean saturation (1).
func extractFeatures(src image.Image, size int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	n := float64(size * size)
	var sum, sumSq [3]float64
	lum := make([]float64, size*size)
	var satSum float64

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := dst.PixOffset(x, y)
			r := float64(dst.Pix[i]) / 255
			g := float64(dst.Pix[i+1]) / 255
			b := float64(dst.Pix[i+2]) / 255
			for c, v := range [3]float64{r, g, b} {
				sum[c] += v
				sumSq[c] += v * v
			}
			lum[y*size+x] = 0.299*r + 0.587*g + 0.114*b
			satSum += math.Max(r, math.Max(g, b)) - math.Min(r, math.Min(g, b))
		}
	}

	feats := make([]float64, 0, featureCount)
	for c := 0; c < 3; c++ {
		feats = append(feats, sum[c]/n)
	}
	for c := 0; c < 3; c++ {
		mean := sum[c] / n
		feats = append(feats, math.Sqrt(math.Max(0, sumSq[c]/n-mean*mean)))
	}

	// gradient energy per 3x3 grid cell (forward differences on luminance)
	cell := size / 3
	for gy := 0; gy < 3; gy++ {
		for gx := 0; gx < 3; gx++ {
			var e float64
			var cnt int
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					if x+1 >= size || y+1 >= size {
						continue
					}
					dx := lum[y*size+x+1] - lum[y*size+x]
					dy := lum[(y+1)*size+x] - lum[y*size+x]
					e += math.Abs(dx) + math.Abs(dy)
					cnt++
				}
			}
			if cnt > 0 {
				e /= float64(cnt)
			}
			feats = append(feats, e)
		}
	}

	feats = append(feats, satSum/n)
	return feats
}
