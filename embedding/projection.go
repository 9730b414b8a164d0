package embedding

import "hash/fnv"

// visualFeatureDim is the dimensionality of the raw visual encoder output
// before projection into the shared space.
const visualFeatureDim = 64

// Projection linearly maps a fixed-size visual feature vector into the
// shared embedding dimension. It is fit once (conceptually, on a seed
// corpus) and then frozen, so embedding is a pure lookup rather than a
// per-call fit.
type Projection struct {
	matrix [][]float32 // [outDim][visualFeatureDim]
}

// NewProjection builds a deterministic projection matrix for outDim. The
// matrix is generated from a fixed seed rather than loaded from a trained
// asset, so repeated runs against the same outDim always agree.
func NewProjection(outDim int) *Projection {
	matrix := make([][]float32, outDim)
	var seed uint64 = 0x9E3779B97F4A7C15
	for i := range matrix {
		row := make([]float32, visualFeatureDim)
		for j := range row {
			seed = splitmix64(seed)
			row[j] = (float32(seed>>11) / float32(1<<53)) - 0.5
		}
		matrix[i] = row
	}
	return &Projection{matrix: matrix}
}

// Project maps a visualFeatureDim-length feature vector to the shared
// embedding dimension.
func (p *Projection) Project(features []float32) []float32 {
	out := make([]float32, len(p.matrix))
	for i, row := range p.matrix {
		var sum float32
		n := len(row)
		if len(features) < n {
			n = len(features)
		}
		for j := 0; j < n; j++ {
			sum += row[j] * features[j]
		}
		out[i] = sum
	}
	normalize(out)
	return out
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func normalize(v []float32) {
	var sumSq float32
	for _, f := range v {
		sumSq += f * f
	}
	if sumSq == 0 {
		return
	}
	norm := sqrt32(sumSq)
	for i := range v {
		v[i] /= norm
	}
}

func sqrt32(f float32) float32 {
	// Newton's method, a handful of iterations is plenty for unit-norm use.
	if f <= 0 {
		return 0
	}
	x := f
	for i := 0; i < 8; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

// visualFeatures derives a deterministic pseudo-visual feature vector from
// an image chunk's stable content string, standing in for a real visual
// encoder's native output.
func visualFeatures(content string) []float32 {
	out := make([]float32, visualFeatureDim)
	h := fnv.New64a()
	for i := range out {
		h.Write([]byte{byte(i)})
		h.Write([]byte(content))
		sum := h.Sum64()
		out[i] = (float32(sum>>11) / float32(1<<53)) - 0.5
	}
	return out
}
