package training

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// FinalMetrics returns the metric values of the last trained epoch, or an
// empty map when nothing was trained.
func (h *History) FinalMetrics() map[string]float64 {
	if len(h.Metrics) == 0 {
		return map[string]float64{}
	}

	final := map[string]float64{}
	for key, value := range h.Metrics[len(h.Metrics)-1] {
		final[key] = value
	}

	return final
}

// AppendLearningCurve appends one CSV row per epoch of the given metric to
// the client's learning-curve document, so the curve accumulates across
// federated rounds.
func AppendLearningCurve(space *store.Space, history *History, metric string, datasetTag string) error {
	existing, err := space.Get(common.LEARNING_CURVE_DOCUMENT)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	buffer := bytes.NewBuffer(existing)
	writer := csv.NewWriter(buffer)
	for epochIndex, logs := range history.Metrics {
		value, ok := logs[metric]
		if !ok {
			continue
		}

		record := []string{datasetTag, fmt.Sprintf("%d", epochIndex+1), fmt.Sprintf("%.6f", value)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing learning curve for %s: %w", space.Name(), err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("writing learning curve for %s: %w", space.Name(), err)
	}

	return space.Put(common.LEARNING_CURVE_DOCUMENT, buffer.Bytes())
}
