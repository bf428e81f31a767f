// Package model implements the feed-forward policy network evaluated by the
// live controller and the on-disk checkpoint format it is loaded from.
package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape indicates parameters that do not fit together or do not fit
	// the expected observation/action sizes.
	ErrShape = errors.New("shape mismatch")
)

// Layer is one dense layer: out = W·in + b.
type Layer struct {
	W *mat.Dense
	B *mat.VecDense
}

// In returns the layer input width.
func (l Layer) In() int {
	_, c := l.W.Dims()
	return c
}

// Out returns the layer output width.
func (l Layer) Out() int {
	r, _ := l.W.Dims()
	return r
}

// Network is an immutable multilayer perceptron. Hidden layers use ReLU, the
// final layer produces action logits.
type Network struct {
	layers []Layer
}

// NewNetwork validates that the layers chain and returns a network.
func NewNetwork(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("network has no layers: %w", ErrShape)
	}
	for i, l := range layers {
		if l.W == nil || l.B == nil {
			return nil, fmt.Errorf("layer %d is incomplete: %w", i, ErrShape)
		}
		if l.B.Len() != l.Out() {
			return nil, fmt.Errorf("layer %d bias has %d entries, want %d: %w", i, l.B.Len(), l.Out(), ErrShape)
		}
		if i > 0 && layers[i-1].Out() != l.In() {
			return nil, fmt.Errorf("layer %d expects %d inputs, previous layer emits %d: %w", i, l.In(), layers[i-1].Out(), ErrShape)
		}
	}
	return &Network{layers: layers}, nil
}

// InputSize is the observation width the network accepts.
func (n *Network) InputSize() int { return n.layers[0].In() }

// OutputSize is the number of discrete actions.
func (n *Network) OutputSize() int { return n.layers[len(n.layers)-1].Out() }

// Layers returns the hidden and output widths, e.g. [256 256 256 90].
func (n *Network) Layers() []int {
	out := make([]int, len(n.layers))
	for i, l := range n.layers {
		out[i] = l.Out()
	}
	return out
}

// Validate checks the network against the expected observation and action sizes.
func (n *Network) Validate(obsSize, actionSize int) error {
	if n.InputSize() != obsSize {
		return fmt.Errorf("network input %d, observation size %d: %w", n.InputSize(), obsSize, ErrShape)
	}
	if n.OutputSize() != actionSize {
		return fmt.Errorf("network output %d, action count %d: %w", n.OutputSize(), actionSize, ErrShape)
	}
	return nil
}

// Logits runs the forward pass.
func (n *Network) Logits(obs []float64) ([]float64, error) {
	if len(obs) != n.InputSize() {
		return nil, fmt.Errorf("observation has %d features, network expects %d: %w", len(obs), n.InputSize(), ErrShape)
	}
	x := mat.NewVecDense(len(obs), append([]float64(nil), obs...))
	for i, l := range n.layers {
		y := mat.NewVecDense(l.Out(), nil)
		y.MulVec(l.W, x)
		y.AddVec(y, l.B)
		if i < len(n.layers)-1 {
			relu(y)
		}
		x = y
	}
	return append([]float64(nil), x.RawVector().Data...), nil
}

// Probabilities returns the softmax of the logits.
func (n *Network) Probabilities(obs []float64) ([]float64, error) {
	logits, err := n.Logits(obs)
	if err != nil {
		return nil, err
	}
	return Softmax(logits)
}

// Softmax converts logits into a probability distribution. Non-finite logits
// are rejected.
func Softmax(logits []float64) ([]float64, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("empty logits: %w", ErrShape)
	}
	for i, v := range logits {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("logit %d is not finite (%v)", i, v)
		}
	}
	largest := floats.Max(logits)
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - largest)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs, nil
}

func relu(v *mat.VecDense) {
	raw := v.RawVector()
	for i := 0; i < raw.N; i++ {
		idx := i * raw.Inc
		if raw.Data[idx] < 0 {
			raw.Data[idx] = 0
		}
	}
}
