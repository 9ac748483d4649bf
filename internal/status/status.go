package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// Publish overwrites the status document for the space with the given record.
// The space name and timestamp are stamped at write time; whatever was there
// before is gone. The write is durable once Publish returns, so a status
// published before process exit is visible to the orchestrator's post-exit
// read.
func Publish(space *store.Space, record model.StatusRecord) error {
	record.Space = space.Name()
	record.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status for %s: %w", space.Name(), err)
	}

	return space.Put(common.STATUS_DOCUMENT, append(data, '\n'))
}

// Read returns the most recent status record for the space. The second return
// value is false when no status has ever been published, which is a valid
// state and not an error.
func Read(space *store.Space) (model.StatusRecord, bool, error) {
	record := model.StatusRecord{}

	data, err := space.Get(common.STATUS_DOCUMENT)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return record, false, nil
		}
		return record, false, err
	}

	if err := json.Unmarshal(data, &record); err != nil {
		return model.StatusRecord{}, false, fmt.Errorf("decoding status for %s: %w", space.Name(), err)
	}

	return record, true, nil
}

// NormalizeMetrics keeps only values convertible to a finite float. Anything
// else is dropped, never coerced or defaulted to zero.
func NormalizeMetrics(raw map[string]interface{}) map[string]float64 {
	metrics := map[string]float64{}

	for key, value := range raw {
		number, ok := toFiniteFloat(value)
		if !ok {
			continue
		}
		metrics[key] = number
	}

	return metrics
}

func toFiniteFloat(value interface{}) (float64, bool) {
	var number float64

	switch v := value.(type) {
	case float64:
		number = v
	case float32:
		number = float64(v)
	case int:
		number = float64(v)
	case int32:
		number = float64(v)
	case int64:
		number = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		number = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		number = parsed
	default:
		return 0, false
	}

	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}

	return number, true
}

// Summary renders the one-line human-readable form of a client's latest
// status, e.g. "client3: stage=idle, epoch 1/1, loss=0.0123, val_loss=0.0456".
func Summary(clientId string, record model.StatusRecord, found bool) string {
	if !found {
		return fmt.Sprintf("%s: no status reported yet.", clientId)
	}

	stage := record.Stage
	if stage == "" {
		stage = "unknown"
	}

	summary := fmt.Sprintf("%s: stage=%s", clientId, stage)
	if record.Epoch > 0 && record.TotalEpochs > 0 {
		summary += fmt.Sprintf(", epoch %d/%d", record.Epoch, record.TotalEpochs)
	}
	if loss, ok := record.Metrics["loss"]; ok {
		summary += fmt.Sprintf(", loss=%.4f", loss)
	}
	if valLoss, ok := record.Metrics["val_loss"]; ok {
		summary += fmt.Sprintf(", val_loss=%.4f", valLoss)
	}

	return summary
}
