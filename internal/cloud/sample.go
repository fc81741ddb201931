package cloud

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/config"
)

// Sampler resamples a filtered cloud to exactly N points.
type Sampler struct {
	n int
}

// NewSampler returns a sampler producing n points.
func NewSampler(n int) (*Sampler, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: num_point must be positive, got %d", config.ErrInvalid, n)
	}
	return &Sampler{n: n}, nil
}

// N returns the target cardinality.
func (s *Sampler) N() int { return s.n }

// Sample draws N indices from f using rng.
//
// With M >= N points, the indices are the first N of a random permutation.
// With M < N, all M indices come first in order, followed by N-M draws with
// replacement from [0, M).
func (s *Sampler) Sample(f *Filtered, rng *rand.Rand) (*Sampled, error) {
	m := f.Len()
	if m == 0 {
		return nil, fmt.Errorf("%w: nothing to sample", ErrEmptyScene)
	}

	var idx []int
	if m >= s.n {
		idx = rng.Perm(m)[:s.n]
	} else {
		idx = make([]int, s.n)
		for i := 0; i < m; i++ {
			idx[i] = i
		}
		for i := m; i < s.n; i++ {
			idx[i] = rng.IntN(m)
		}
	}

	out := &Sampled{
		Points:  make([]r3.Vec, s.n),
		Colors:  make([]Color, s.n),
		Indices: idx,
	}
	for i, j := range idx {
		out.Points[i] = f.Points[j]
		out.Colors[i] = f.Colors[j]
	}
	return out, nil
}

// NewRand returns the seeded generator the pipeline threads through Sample.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
