package training

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tensor is one named parameter matrix in flattened row-major form. Matching
// by name and shape across artifacts is what the aggregation contract relies
// on.
type Tensor struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// WeightsArtifact is a weights-only snapshot: the client's weight delta and
// the server's per-round weights file share this format.
type WeightsArtifact struct {
	Tensors []Tensor `json:"tensors"`
}

// ModelArtifact is the full architecture-plus-weights snapshot held by the
// server and mirrored locally by each client.
type ModelArtifact struct {
	Architecture Architecture    `json:"architecture"`
	Weights      WeightsArtifact `json:"weights"`
}

// Weights exports the model parameters as a weights-only artifact.
func (m *Model) Weights() WeightsArtifact {
	return WeightsArtifact{
		Tensors: []Tensor{
			denseToTensor("w1", m.w1),
			denseToTensor("b1", m.b1),
			denseToTensor("w2", m.w2),
			denseToTensor("b2", m.b2),
		},
	}
}

// SetWeights replaces the model parameters. Tensor names and shapes must
// match the architecture exactly.
func (m *Model) SetWeights(artifact WeightsArtifact) error {
	byName := map[string]Tensor{}
	for _, tensor := range artifact.Tensors {
		byName[tensor.Name] = tensor
	}

	for name, param := range m.params() {
		tensor, ok := byName[name]
		if !ok {
			return fmt.Errorf("weights artifact is missing tensor %q", name)
		}

		rows, cols := param.Dims()
		if tensor.Rows != rows || tensor.Cols != cols {
			return fmt.Errorf("tensor %q has shape %dx%d, model expects %dx%d",
				name, tensor.Rows, tensor.Cols, rows, cols)
		}
		if len(tensor.Data) != rows*cols {
			return fmt.Errorf("tensor %q has %d values, expected %d", name, len(tensor.Data), rows*cols)
		}

		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				param.Set(i, j, tensor.Data[i*cols+j])
			}
		}
	}

	return nil
}

// EncodeModel serializes the full architecture-plus-weights snapshot.
func EncodeModel(m *Model) ([]byte, error) {
	return json.Marshal(ModelArtifact{
		Architecture: m.Arch,
		Weights:      m.Weights(),
	})
}

// DecodeModel restores a model from a full snapshot.
func DecodeModel(data []byte) (*Model, error) {
	artifact := ModelArtifact{}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding model artifact: %w", err)
	}
	if artifact.Architecture.InputSize < 1 || artifact.Architecture.HiddenSize < 1 {
		return nil, fmt.Errorf("model artifact has invalid architecture %+v", artifact.Architecture)
	}

	m := NewModel(artifact.Architecture, 0)
	if err := m.SetWeights(artifact.Weights); err != nil {
		return nil, err
	}

	return m, nil
}

// EncodeWeights serializes a weights-only snapshot.
func EncodeWeights(artifact WeightsArtifact) ([]byte, error) {
	return json.Marshal(artifact)
}

// DecodeWeights parses a weights-only snapshot.
func DecodeWeights(data []byte) (WeightsArtifact, error) {
	artifact := WeightsArtifact{}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return WeightsArtifact{}, fmt.Errorf("decoding weights artifact: %w", err)
	}

	return artifact, nil
}

// DecodeAnyWeights extracts a weights-only snapshot from either artifact
// form: a full architecture-plus-weights snapshot or a bare weights file.
// Clients receive the former on the bootstrap round and the latter on every
// round after.
func DecodeAnyWeights(data []byte) (WeightsArtifact, error) {
	modelArtifact := ModelArtifact{}
	if err := json.Unmarshal(data, &modelArtifact); err == nil &&
		modelArtifact.Architecture.InputSize > 0 && modelArtifact.Architecture.HiddenSize > 0 {
		return modelArtifact.Weights, nil
	}

	return DecodeWeights(data)
}

func (m *Model) params() map[string]paramMatrix {
	return map[string]paramMatrix{
		"w1": m.w1,
		"b1": m.b1,
		"w2": m.w2,
		"b2": m.b2,
	}
}

type paramMatrix interface {
	Dims() (int, int)
	At(i, j int) float64
	Set(i, j int, v float64)
}

func denseToTensor(name string, param paramMatrix) Tensor {
	rows, cols := param.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, param.At(i, j))
		}
	}

	return Tensor{Name: name, Rows: rows, Cols: cols, Data: data}
}
