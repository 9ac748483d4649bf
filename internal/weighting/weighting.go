package weighting

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/dataset"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// Engine computes the data-size-proportional aggregation weight of every
// client. The weights are computed once before round 1 and held fixed for the
// whole run; recomputing per round would couple aggregation fairness to
// transient dataset mutation.
type Engine struct {
	st      *store.Store
	clients []*model.ClientDescriptor
	logger  hclog.Logger
}

func NewEngine(st *store.Store, clients []*model.ClientDescriptor, logger hclog.Logger) *Engine {
	return &Engine{
		st:      st,
		clients: clients,
		logger:  logger,
	}
}

// ComputeWeights loads every client's dataset, discards the first
// lookback+testSize rows, and returns one weight per client proportional to
// the remaining length. The result sums to 1 unless every client is empty.
func (e *Engine) ComputeWeights(lookback int, testSize int) ([]float64, error) {
	lengths := make([]int, len(e.clients))
	for i, client := range e.clients {
		space, err := e.st.Space(client.SpaceName)
		if err != nil {
			return nil, err
		}

		rows, err := dataset.Load(space, client.DatasetTag)
		if err != nil {
			return nil, fmt.Errorf("loading dataset for %s: %w", client.Id, err)
		}

		lengths[i] = dataset.EffectiveLength(rows, lookback, testSize)
		e.logger.Info(fmt.Sprintf("Effective dataset length for %s (%s): %d", client.Id, client.DatasetTag, lengths[i]))
	}

	weights, err := ProportionalWeights(lengths)
	if err != nil {
		return nil, err
	}

	return weights, nil
}

// ProportionalWeights maps effective dataset lengths to weights
// weight[i] = L[i] / sum(L). A zero length yields a zero weight, which makes
// that client's contribution mathematically ignored during aggregation.
func ProportionalWeights(lengths []int) ([]float64, error) {
	total := 0
	for _, length := range lengths {
		if length < 0 {
			return nil, fmt.Errorf("negative dataset length %d", length)
		}
		total += length
	}
	if total == 0 {
		return nil, fmt.Errorf("no client has trainable data")
	}

	weights := make([]float64, len(lengths))
	for i, length := range lengths {
		weights[i] = float64(length) / float64(total)
	}

	return weights, nil
}
