package aggregate

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/training"
)

func scalarArtifact(value float64) training.WeightsArtifact {
	return training.WeightsArtifact{
		Tensors: []training.Tensor{
			{Name: "w", Rows: 1, Cols: 1, Data: []float64{value}},
		},
	}
}

func constantArtifact(shape training.WeightsArtifact, value float64) training.WeightsArtifact {
	artifact := training.WeightsArtifact{Tensors: make([]training.Tensor, len(shape.Tensors))}
	for i, tensor := range shape.Tensors {
		data := make([]float64, len(tensor.Data))
		for j := range data {
			data[j] = value
		}
		artifact.Tensors[i] = training.Tensor{Name: tensor.Name, Rows: tensor.Rows, Cols: tensor.Cols, Data: data}
	}

	return artifact
}

func TestCombineWeightedTwoContributions(t *testing.T) {
	combined, err := CombineWeighted(
		[]training.WeightsArtifact{scalarArtifact(10.0), scalarArtifact(20.0)},
		[]float64{0.3, 0.7},
	)
	require.NoError(t, err)
	require.InDelta(t, 17.0, combined.Tensors[0].Data[0], 1e-9)
}

func TestCombineWeightedProportionalScenario(t *testing.T) {
	contributions := []training.WeightsArtifact{
		scalarArtifact(1), scalarArtifact(2), scalarArtifact(3), scalarArtifact(4), scalarArtifact(5),
	}
	// weights from dataset lengths {100, 80, 60, 40, 20}
	weights := []float64{100.0 / 300, 80.0 / 300, 60.0 / 300, 40.0 / 300, 20.0 / 300}

	combined, err := CombineWeighted(contributions, weights)
	require.NoError(t, err)
	require.InDelta(t, 2.467, combined.Tensors[0].Data[0], 0.001)
}

func TestCombineWeightedShapeMismatch(t *testing.T) {
	wide := training.WeightsArtifact{
		Tensors: []training.Tensor{
			{Name: "w", Rows: 1, Cols: 2, Data: []float64{1, 2}},
		},
	}

	_, err := CombineWeighted([]training.WeightsArtifact{scalarArtifact(1), wide}, []float64{0.5, 0.5})
	require.Error(t, err)
}

func TestCollectRelocatesClientDeltas(t *testing.T) {
	st := store.New(t.TempDir())
	clients := common.DefaultClients()

	for _, client := range clients {
		space, err := st.Space(client.SpaceName)
		require.NoError(t, err)

		data, err := training.EncodeWeights(scalarArtifact(1))
		require.NoError(t, err)
		require.NoError(t, space.Put(common.ClientWeightsArtifact(client.Id), data))
	}

	aggregator := NewAggregator(st, clients, hclog.NewNullLogger())
	require.NoError(t, aggregator.Collect())

	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)
	for _, client := range clients {
		clientSpace, err := st.Space(client.SpaceName)
		require.NoError(t, err)

		artifactName := common.ClientWeightsArtifact(client.Id)
		require.False(t, clientSpace.Exists(artifactName))
		require.True(t, serverSpace.Exists(artifactName))
	}
}

func TestAggregateWritesCombinedWeightsAndModel(t *testing.T) {
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)

	globalModel := training.NewModel(training.Architecture{InputSize: 4, HiddenSize: 3, LearnRate: 0.05}, 1)
	shape := globalModel.Weights()
	modelData, err := training.EncodeModel(globalModel)
	require.NoError(t, err)
	require.NoError(t, serverSpace.Put(common.GLOBAL_MODEL_ARTIFACT, modelData))

	for i, client := range clients {
		data, err := training.EncodeWeights(constantArtifact(shape, float64(i+1)))
		require.NoError(t, err)
		require.NoError(t, serverSpace.Put(common.ClientWeightsArtifact(client.Id), data))
	}

	aggregator := NewAggregator(st, clients, hclog.NewNullLogger())
	require.NoError(t, aggregator.Aggregate([]float64{0.2, 0.2, 0.2, 0.2, 0.2}))

	combinedData, err := serverSpace.Get(common.GLOBAL_WEIGHTS_ARTIFACT)
	require.NoError(t, err)
	combined, err := training.DecodeWeights(combinedData)
	require.NoError(t, err)

	// equal weights over constants 1..5 give 3 everywhere
	for _, tensor := range combined.Tensors {
		for _, value := range tensor.Data {
			require.InDelta(t, 3.0, value, 1e-9)
		}
	}

	updatedData, err := serverSpace.Get(common.GLOBAL_MODEL_ARTIFACT)
	require.NoError(t, err)
	updated, err := training.DecodeModel(updatedData)
	require.NoError(t, err)
	for _, tensor := range updated.Weights().Tensors {
		for _, value := range tensor.Data {
			require.InDelta(t, 3.0, value, 1e-9)
		}
	}
}

func TestAggregateMissingContributionAborts(t *testing.T) {
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)

	globalModel := training.NewModel(training.Architecture{InputSize: 4, HiddenSize: 3, LearnRate: 0.05}, 1)
	shape := globalModel.Weights()
	modelData, err := training.EncodeModel(globalModel)
	require.NoError(t, err)
	require.NoError(t, serverSpace.Put(common.GLOBAL_MODEL_ARTIFACT, modelData))

	// client3 never reports in
	for i, client := range clients {
		if client.Id == "client3" {
			continue
		}
		data, err := training.EncodeWeights(constantArtifact(shape, float64(i+1)))
		require.NoError(t, err)
		require.NoError(t, serverSpace.Put(common.ClientWeightsArtifact(client.Id), data))
	}

	before, err := serverSpace.List()
	require.NoError(t, err)

	aggregator := NewAggregator(st, clients, hclog.NewNullLogger())
	err = aggregator.Aggregate([]float64{0.2, 0.2, 0.2, 0.2, 0.2})
	require.ErrorIs(t, err, ErrMissingContribution)

	// an aborted attempt leaves the server space untouched
	after, err := serverSpace.List()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.False(t, serverSpace.Exists(common.GLOBAL_WEIGHTS_ARTIFACT))
}

func TestAggregateWeightCountMismatch(t *testing.T) {
	st := store.New(t.TempDir())
	aggregator := NewAggregator(st, common.DefaultClients(), hclog.NewNullLogger())

	err := aggregator.Aggregate([]float64{0.5, 0.5})
	require.Error(t, err)
}
