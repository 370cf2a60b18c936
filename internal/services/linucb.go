package services

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularModel is returned when the design matrix cannot be inverted even
// after regularization. The session's model state is unusable.
var ErrSingularModel = errors.New("model matrix is singular")

// LinUCBModel is the disjoint-arm LinUCB state for one session: the design
// matrix A and the reward vector b. It is derived state, fully reconstructible
// by replaying the session's interaction log in timestamp order.
type LinUCBModel struct {
	dims    int
	a       *mat.Dense
	b       *mat.VecDense
	applied int

	// Inverse cache, invalidated on every update.
	aInv *mat.Dense
}

// NewLinUCBModel initializes A to (1+λ)·I and b to zero.
func NewLinUCBModel(dims int, lambda float64) *LinUCBModel {
	a := mat.NewDense(dims, dims, nil)
	for i := 0; i < dims; i++ {
		a.Set(i, i, 1.0+lambda)
	}
	return &LinUCBModel{
		dims: dims,
		a:    a,
		b:    mat.NewVecDense(dims, nil),
	}
}

// Dims returns the feature dimensionality the model was built for.
func (m *LinUCBModel) Dims() int { return m.dims }

// Applied returns the number of updates folded into the model.
func (m *LinUCBModel) Applied() int { return m.applied }

// Update folds one observation into the model: A += x·xᵀ, b += reward·x.
func (m *LinUCBModel) Update(x []float64, reward float64) error {
	if len(x) != m.dims {
		return fmt.Errorf("feature vector length %d, model expects %d", len(x), m.dims)
	}
	xv := mat.NewVecDense(m.dims, x)

	var outer mat.Dense
	outer.Outer(1.0, xv, xv)
	m.a.Add(m.a, &outer)
	m.b.AddScaledVec(m.b, reward, xv)

	m.applied++
	m.aInv = nil
	return nil
}

// inverse returns A⁻¹, retrying once with A+λI when A is numerically
// singular. Failing both attempts is fatal for the session.
func (m *LinUCBModel) inverse(lambda float64) (*mat.Dense, error) {
	if m.aInv != nil {
		return m.aInv, nil
	}

	for _, ridge := range []float64{0, lambda} {
		candidate := mat.DenseCopyOf(m.a)
		if ridge > 0 {
			for i := 0; i < m.dims; i++ {
				candidate.Set(i, i, candidate.At(i, i)+ridge)
			}
		}
		var inv mat.Dense
		if err := inv.Inverse(candidate); err == nil {
			m.aInv = &inv
			return m.aInv, nil
		}
	}
	return nil, ErrSingularModel
}

// Theta solves θ = A⁻¹·b.
func (m *LinUCBModel) Theta(lambda float64) ([]float64, error) {
	inv, err := m.inverse(lambda)
	if err != nil {
		return nil, err
	}
	var theta mat.VecDense
	theta.MulVec(inv, m.b)
	out := make([]float64, m.dims)
	for i := 0; i < m.dims; i++ {
		out[i] = theta.AtVec(i)
	}
	return out, nil
}

// ThetaNorm returns the Euclidean norm of θ.
func (m *LinUCBModel) ThetaNorm(lambda float64) (float64, error) {
	theta, err := m.Theta(lambda)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range theta {
		sum += v * v
	}
	return math.Sqrt(sum), nil
}

// Score computes the UCB decomposition for one candidate:
// base = θᵀx, width = sqrt(xᵀ·A⁻¹·x), ucb = base + alpha·width.
func (m *LinUCBModel) Score(x []float64, alpha, lambda float64) (ucb, base, width float64, err error) {
	if len(x) != m.dims {
		return 0, 0, 0, fmt.Errorf("feature vector length %d, model expects %d", len(x), m.dims)
	}
	inv, err := m.inverse(lambda)
	if err != nil {
		return 0, 0, 0, err
	}

	theta, err := m.Theta(lambda)
	if err != nil {
		return 0, 0, 0, err
	}

	xv := mat.NewVecDense(m.dims, x)
	for i, t := range theta {
		base += t * x[i]
	}

	var ax mat.VecDense
	ax.MulVec(inv, xv)
	variance := mat.Dot(xv, &ax)
	if variance < 0 {
		variance = 0
	}
	width = math.Sqrt(variance)

	return base + alpha*width, base, width, nil
}
