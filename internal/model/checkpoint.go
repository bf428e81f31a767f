package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// PolicyFile is the file read when a checkpoint artifact is a directory.
const PolicyFile = "policy.json"

// layerFile is the JSON form of a dense layer; weights are row-major out×in.
type layerFile struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// file is the checkpoint document written by the export side.
type file struct {
	ObsSize    int         `json:"obs_size"`
	ActionSize int         `json:"action_size"`
	Layers     []layerFile `json:"layers"`
}

// ArtifactPath resolves a checkpoint artifact to the JSON file holding the
// weights: the path itself, or PolicyFile inside it when it is a directory.
func ArtifactPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(path, PolicyFile), nil
	}
	return path, nil
}

// Load reads a checkpoint artifact and builds its network.
func Load(path string) (*Network, error) {
	target, err := ArtifactPath(path)
	if err != nil {
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return Decode(data)
}

// Decode parses checkpoint bytes and validates the declared shape.
func Decode(data []byte) (*Network, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	layers := make([]Layer, len(f.Layers))
	for i, lf := range f.Layers {
		if lf.In <= 0 || lf.Out <= 0 {
			return nil, fmt.Errorf("layer %d has dims %dx%d: %w", i, lf.Out, lf.In, ErrShape)
		}
		if len(lf.Weights) != lf.In*lf.Out {
			return nil, fmt.Errorf("layer %d has %d weights, want %d: %w", i, len(lf.Weights), lf.In*lf.Out, ErrShape)
		}
		if len(lf.Bias) != lf.Out {
			return nil, fmt.Errorf("layer %d has %d biases, want %d: %w", i, len(lf.Bias), lf.Out, ErrShape)
		}
		layers[i] = Layer{
			W: mat.NewDense(lf.Out, lf.In, lf.Weights),
			B: mat.NewVecDense(lf.Out, lf.Bias),
		}
	}
	net, err := NewNetwork(layers)
	if err != nil {
		return nil, err
	}
	if f.ObsSize != 0 || f.ActionSize != 0 {
		if err := net.Validate(f.ObsSize, f.ActionSize); err != nil {
			return nil, fmt.Errorf("declared shape: %w", err)
		}
	}
	return net, nil
}

// Encode serialises a network to the checkpoint format.
func Encode(net *Network) ([]byte, error) {
	f := file{
		ObsSize:    net.InputSize(),
		ActionSize: net.OutputSize(),
		Layers:     make([]layerFile, len(net.layers)),
	}
	for i, l := range net.layers {
		f.Layers[i] = layerFile{
			In:      l.In(),
			Out:     l.Out(),
			Weights: mat.DenseCopyOf(l.W).RawMatrix().Data,
			Bias:    append([]float64(nil), l.B.RawVector().Data...),
		}
	}
	return json.Marshal(f)
}

// Save writes net to path through a temporary file and a rename, so that a
// directory scan never observes a partially written checkpoint.
func Save(path string, net *Network) error {
	data, err := Encode(net)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}

// NewRandom builds a network with He-initialised weights and zero biases.
// sizes lists every width from input to output, e.g. [89 256 256 256 90].
func NewRandom(sizes []int, src rand.Source) (*Network, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("need at least input and output sizes, got %v: %w", sizes, ErrShape)
	}
	rng := rand.New(src)
	layers := make([]Layer, len(sizes)-1)
	for i := range layers {
		in, out := sizes[i], sizes[i+1]
		if in <= 0 || out <= 0 {
			return nil, fmt.Errorf("non-positive width in %v: %w", sizes, ErrShape)
		}
		scale := math.Sqrt(2 / float64(in))
		w := make([]float64, in*out)
		for j := range w {
			w[j] = rng.NormFloat64() * scale
		}
		layers[i] = Layer{
			W: mat.NewDense(out, in, w),
			B: mat.NewVecDense(out, nil),
		}
	}
	return NewNetwork(layers)
}
