package aggregate

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/training"
)

// ErrMissingContribution marks an aggregation attempt against an absent
// client weight delta. Fatal for the round: the fixed weight vector assumes a
// contribution from every client.
var ErrMissingContribution = errors.New("missing client contribution")

// Aggregator combines the collected per-client weight deltas into the new
// global model state. It is the only writer of the server's space.
type Aggregator struct {
	st      *store.Store
	clients []*model.ClientDescriptor
	logger  hclog.Logger
}

func NewAggregator(st *store.Store, clients []*model.ClientDescriptor, logger hclog.Logger) *Aggregator {
	return &Aggregator{
		st:      st,
		clients: clients,
		logger:  logger,
	}
}

// Collect relocates every client's weight-delta artifact into the server's
// space. The client's copy no longer exists afterwards. An already-absent
// delta is skipped here and surfaces as ErrMissingContribution during
// Aggregate.
func (a *Aggregator) Collect() error {
	serverSpace, err := a.st.Space(common.SERVER_SPACE_NAME)
	if err != nil {
		return err
	}

	for _, client := range a.clients {
		clientSpace, err := a.st.Space(client.SpaceName)
		if err != nil {
			return err
		}

		artifactName := common.ClientWeightsArtifact(client.Id)
		if err := clientSpace.Move(artifactName, serverSpace, artifactName); err != nil {
			return fmt.Errorf("collecting %s: %w", artifactName, err)
		}
	}

	return nil
}

// Aggregate reads every collected weight delta from the server's space,
// applies the weighted parameter-wise linear combination, writes the result
// as the new server weights artifact and refreshes the persisted
// architecture-plus-weights snapshot.
func (a *Aggregator) Aggregate(weights []float64) error {
	if len(weights) != len(a.clients) {
		return fmt.Errorf("got %d weights for %d clients", len(weights), len(a.clients))
	}

	serverSpace, err := a.st.Space(common.SERVER_SPACE_NAME)
	if err != nil {
		return err
	}

	contributions := make([]training.WeightsArtifact, len(a.clients))
	for i, client := range a.clients {
		artifactName := common.ClientWeightsArtifact(client.Id)
		data, err := serverSpace.Get(artifactName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrMissingContribution, client.Id)
			}
			return err
		}

		contribution, err := training.DecodeWeights(data)
		if err != nil {
			return fmt.Errorf("decoding contribution of %s: %w", client.Id, err)
		}
		contributions[i] = contribution
	}

	combined, err := CombineWeighted(contributions, weights)
	if err != nil {
		return err
	}

	combinedData, err := training.EncodeWeights(combined)
	if err != nil {
		return err
	}
	if err := serverSpace.Put(common.GLOBAL_WEIGHTS_ARTIFACT, combinedData); err != nil {
		return err
	}

	if err := a.refreshGlobalModel(serverSpace, combined); err != nil {
		return err
	}

	a.logger.Info(fmt.Sprintf("Aggregated %d client contributions into %s", len(a.clients), common.GLOBAL_WEIGHTS_ARTIFACT))

	return nil
}

// refreshGlobalModel loads the server's full snapshot, swaps in the combined
// weights and persists it again, keeping architecture and weights in step.
func (a *Aggregator) refreshGlobalModel(serverSpace *store.Space, combined training.WeightsArtifact) error {
	data, err := serverSpace.Get(common.GLOBAL_MODEL_ARTIFACT)
	if err != nil {
		return fmt.Errorf("loading global model: %w", err)
	}

	globalModel, err := training.DecodeModel(data)
	if err != nil {
		return err
	}
	if err := globalModel.SetWeights(combined); err != nil {
		return err
	}

	updated, err := training.EncodeModel(globalModel)
	if err != nil {
		return err
	}

	return serverSpace.Put(common.GLOBAL_MODEL_ARTIFACT, updated)
}

// CombineWeighted computes sum_i(weight[i] * contribution[i]) for every
// parameter tensor, matched by name and shape across all contributions.
func CombineWeighted(contributions []training.WeightsArtifact, weights []float64) (training.WeightsArtifact, error) {
	if len(contributions) == 0 {
		return training.WeightsArtifact{}, fmt.Errorf("nothing to combine")
	}
	if len(contributions) != len(weights) {
		return training.WeightsArtifact{}, fmt.Errorf("got %d weights for %d contributions", len(weights), len(contributions))
	}

	reference := contributions[0]
	combined := training.WeightsArtifact{Tensors: make([]training.Tensor, len(reference.Tensors))}
	for t, tensor := range reference.Tensors {
		combined.Tensors[t] = training.Tensor{
			Name: tensor.Name,
			Rows: tensor.Rows,
			Cols: tensor.Cols,
			Data: make([]float64, len(tensor.Data)),
		}
	}

	for i, contribution := range contributions {
		if len(contribution.Tensors) != len(reference.Tensors) {
			return training.WeightsArtifact{}, fmt.Errorf("contribution %d has %d tensors, expected %d",
				i, len(contribution.Tensors), len(reference.Tensors))
		}

		for t, tensor := range contribution.Tensors {
			target := &combined.Tensors[t]
			if tensor.Name != target.Name || tensor.Rows != target.Rows || tensor.Cols != target.Cols {
				return training.WeightsArtifact{}, fmt.Errorf("contribution %d tensor %q does not match shape of %q",
					i, tensor.Name, target.Name)
			}
			if len(tensor.Data) != len(target.Data) {
				return training.WeightsArtifact{}, fmt.Errorf("contribution %d tensor %q has %d values, expected %d",
					i, tensor.Name, len(tensor.Data), len(target.Data))
			}

			for v, value := range tensor.Data {
				target.Data[v] += weights[i] * value
			}
		}
	}

	return combined, nil
}
