package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testArchitecture() Architecture {
	return Architecture{InputSize: 4, HiddenSize: 3, LearnRate: 0.05}
}

func syntheticSeries(samples int, window int) ([][]float64, []float64) {
	x := make([][]float64, samples)
	y := make([]float64, samples)
	for i := range x {
		values := make([]float64, window)
		for j := range values {
			values[j] = math.Sin(float64(i+j) / 10.0)
		}
		x[i] = values
		y[i] = math.Sin(float64(i+window) / 10.0)
	}

	return x, y
}

func TestNewModelIsDeterministicPerSeed(t *testing.T) {
	first := NewModel(testArchitecture(), 1)
	second := NewModel(testArchitecture(), 1)
	other := NewModel(testArchitecture(), 2)

	require.Equal(t, first.Weights(), second.Weights())
	require.NotEqual(t, first.Weights(), other.Weights())
}

func TestTrainRecordsFiniteMetricsPerEpoch(t *testing.T) {
	m := NewModel(testArchitecture(), 1)
	trainX, trainY := syntheticSeries(64, 4)
	valX, valY := syntheticSeries(16, 4)

	var starts, ends int32
	history, err := m.Train(3, 16, trainX, trainY, valX, valY,
		func(epoch int32, totalEpochs int32, event string, logs map[string]float64) {
			require.EqualValues(t, 3, totalEpochs)
			switch event {
			case "start":
				starts++
			case "end":
				ends++
				require.Contains(t, logs, "loss")
			}
		})
	require.NoError(t, err)

	require.EqualValues(t, 3, starts)
	require.EqualValues(t, 3, ends)
	require.Len(t, history.Metrics, 3)
	for _, logs := range history.Metrics {
		require.False(t, math.IsNaN(logs["loss"]))
		require.False(t, math.IsInf(logs["loss"], 0))
		require.Contains(t, logs, "val_loss")
	}
}

func TestTrainReducesLossOnLearnableSeries(t *testing.T) {
	m := NewModel(testArchitecture(), 1)
	trainX, trainY := syntheticSeries(128, 4)

	history, err := m.Train(20, 32, trainX, trainY, nil, nil, nil)
	require.NoError(t, err)

	first := history.Metrics[0]["loss"]
	last := history.Metrics[len(history.Metrics)-1]["loss"]
	require.Less(t, last, first)
}

func TestTrainRejectsEmptyAndMismatchedInput(t *testing.T) {
	m := NewModel(testArchitecture(), 1)

	_, err := m.Train(1, 16, nil, nil, nil, nil, nil)
	require.Error(t, err)

	_, err = m.Train(1, 16, [][]float64{{1, 2}}, []float64{3}, nil, nil, nil)
	require.Error(t, err)
}

func TestEvaluateOnEmptySetIsZero(t *testing.T) {
	m := NewModel(testArchitecture(), 1)
	require.Equal(t, 0.0, m.Evaluate(nil, nil))
}
