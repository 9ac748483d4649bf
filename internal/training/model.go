package training

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Architecture describes the dense forecaster: a lookback window of inputs,
// one hidden layer, a single predicted value.
type Architecture struct {
	InputSize  int     `json:"input_size"`
	HiddenSize int     `json:"hidden_size"`
	LearnRate  float64 `json:"learn_rate"`
}

// Model is a feed-forward forecaster over lookback windows. All five clients
// share one architecture, which is what makes the parameter-wise aggregation
// on the server side well defined.
type Model struct {
	Arch Architecture

	w1 *mat.Dense // InputSize x HiddenSize
	b1 *mat.Dense // 1 x HiddenSize
	w2 *mat.Dense // HiddenSize x 1
	b2 *mat.Dense // 1 x 1
}

// History holds the per-epoch metric values produced by a training run.
type History struct {
	Metrics []map[string]float64
}

// ProgressCallback is invoked at the start ("start") and end ("end") of every
// epoch with the metrics logged so far.
type ProgressCallback func(epoch int32, totalEpochs int32, event string, logs map[string]float64)

// NewModel creates a freshly initialized model. The same seed always yields
// the same parameters, so a redistributed initial artifact is reproducible.
func NewModel(arch Architecture, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))

	scale1 := math.Sqrt(1.0 / float64(arch.InputSize))
	scale2 := math.Sqrt(1.0 / float64(arch.HiddenSize))

	return &Model{
		Arch: arch,
		w1:   randomDense(rng, arch.InputSize, arch.HiddenSize, scale1),
		b1:   mat.NewDense(1, arch.HiddenSize, nil),
		w2:   randomDense(rng, arch.HiddenSize, 1, scale2),
		b2:   mat.NewDense(1, 1, nil),
	}
}

func randomDense(rng *rand.Rand, rows int, cols int, scale float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}

	return mat.NewDense(rows, cols, data)
}

// Predict runs the forward pass for a batch of lookback windows.
func (m *Model) Predict(x [][]float64) []float64 {
	xm := windowsToMatrix(x)
	_, pred := m.forward(xm)

	n, _ := pred.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = pred.At(i, 0)
	}

	return out
}

// Evaluate returns the mean squared error of the model on the given set.
func (m *Model) Evaluate(x [][]float64, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	pred := m.Predict(x)
	sum := 0.0
	for i, p := range pred {
		diff := p - y[i]
		sum += diff * diff
	}

	return sum / float64(len(pred))
}

// Train runs mini-batch gradient descent for the given number of epochs and
// records loss (and val_loss when a validation set is supplied) per epoch.
func (m *Model) Train(epochs int32, batchSize int32, trainX [][]float64, trainY []float64,
	valX [][]float64, valY []float64, progress ProgressCallback) (*History, error) {
	if len(trainX) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	if len(trainX[0]) != m.Arch.InputSize {
		return nil, fmt.Errorf("window size %d does not match model input size %d", len(trainX[0]), m.Arch.InputSize)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	history := &History{Metrics: []map[string]float64{}}

	for epoch := int32(1); epoch <= epochs; epoch++ {
		if progress != nil {
			progress(epoch, epochs, "start", nil)
		}

		lossSum := 0.0
		batches := 0
		for start := 0; start < len(trainX); start += int(batchSize) {
			end := start + int(batchSize)
			if end > len(trainX) {
				end = len(trainX)
			}

			loss := m.step(trainX[start:end], trainY[start:end])
			lossSum += loss
			batches++
		}

		logs := map[string]float64{"loss": lossSum / float64(batches)}
		if len(valX) > 0 {
			logs["val_loss"] = m.Evaluate(valX, valY)
		}
		history.Metrics = append(history.Metrics, logs)

		if progress != nil {
			progress(epoch, epochs, "end", logs)
		}
	}

	return history, nil
}

// step applies one gradient update on a batch and returns its MSE loss.
func (m *Model) step(x [][]float64, y []float64) float64 {
	n := len(x)
	xm := windowsToMatrix(x)
	ym := mat.NewDense(n, 1, append([]float64(nil), y...))

	hidden, pred := m.forward(xm)

	// residual = pred - y
	residual := &mat.Dense{}
	residual.Sub(pred, ym)

	loss := 0.0
	for i := 0; i < n; i++ {
		loss += residual.At(i, 0) * residual.At(i, 0)
	}
	loss /= float64(n)

	invN := 1.0 / float64(n)

	// output layer gradients
	gradW2 := &mat.Dense{}
	gradW2.Mul(hidden.T(), residual)
	gradW2.Scale(invN, gradW2)

	gradB2 := mat.NewDense(1, 1, []float64{columnMean(residual, 0)})

	// hidden layer gradients through tanh
	gradHidden := &mat.Dense{}
	gradHidden.Mul(residual, m.w2.T())
	gradHidden.Apply(func(i, j int, v float64) float64 {
		h := hidden.At(i, j)
		return v * (1 - h*h)
	}, gradHidden)

	gradW1 := &mat.Dense{}
	gradW1.Mul(xm.T(), gradHidden)
	gradW1.Scale(invN, gradW1)

	_, hiddenCols := gradHidden.Dims()
	gradB1 := mat.NewDense(1, hiddenCols, nil)
	for j := 0; j < hiddenCols; j++ {
		gradB1.Set(0, j, columnMean(gradHidden, j))
	}

	lr := m.Arch.LearnRate
	applyUpdate(m.w1, gradW1, lr)
	applyUpdate(m.b1, gradB1, lr)
	applyUpdate(m.w2, gradW2, lr)
	applyUpdate(m.b2, gradB2, lr)

	return loss
}

func (m *Model) forward(x *mat.Dense) (hidden *mat.Dense, pred *mat.Dense) {
	n, _ := x.Dims()

	hidden = &mat.Dense{}
	hidden.Mul(x, m.w1)
	for i := 0; i < n; i++ {
		for j := 0; j < m.Arch.HiddenSize; j++ {
			hidden.Set(i, j, math.Tanh(hidden.At(i, j)+m.b1.At(0, j)))
		}
	}

	pred = &mat.Dense{}
	pred.Mul(hidden, m.w2)
	for i := 0; i < n; i++ {
		pred.Set(i, 0, pred.At(i, 0)+m.b2.At(0, 0))
	}

	return hidden, pred
}

func applyUpdate(param *mat.Dense, grad *mat.Dense, lr float64) {
	scaled := &mat.Dense{}
	scaled.Scale(lr, grad)
	param.Sub(param, scaled)
}

func columnMean(m *mat.Dense, col int) float64 {
	rows, _ := m.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		sum += m.At(i, col)
	}

	return sum / float64(rows)
}

func windowsToMatrix(x [][]float64) *mat.Dense {
	n := len(x)
	cols := len(x[0])
	data := make([]float64, 0, n*cols)
	for _, window := range x {
		data = append(data, window...)
	}

	return mat.NewDense(n, cols, data)
}
