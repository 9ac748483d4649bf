package florch

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/florch/performance"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/status"
)

// Rounds of loss history required before the trend regression is worth
// fitting.
const lossPredictionMinRounds = 3

type FlProgress struct {
	meanLosses    []float64
	meanValLosses []float64
	lossConverged bool
}

// recordRoundProgress gathers the final per-client metrics of the round from
// the status channel, tracks the mean loss series, checks convergence,
// predicts the next-round loss once enough history exists and appends one row
// to the results file.
func (orch *FlOrchestrator) recordRoundProgress(round int32) {
	losses := []float64{}
	valLosses := []float64{}
	for _, client := range orch.clients {
		space, err := orch.st.Space(client.SpaceName)
		if err != nil {
			continue
		}

		record, found, err := status.Read(space)
		if err != nil || !found {
			continue
		}

		if loss, ok := record.Metrics["loss"]; ok {
			losses = append(losses, loss)
		}
		if valLoss, ok := record.Metrics["val_loss"]; ok {
			valLosses = append(valLosses, valLoss)
		}
	}

	meanLoss := common.CalculateAverageFloat64(losses)
	meanValLoss := common.CalculateAverageFloat64(valLosses)
	orch.progress.meanLosses = append(orch.progress.meanLosses, meanLoss)
	orch.progress.meanValLosses = append(orch.progress.meanValLosses, meanValLoss)

	orch.logger.Info(fmt.Sprintf("Finished global round %d | mean loss: %.6f | mean val_loss: %.6f",
		round, meanLoss, meanValLoss))

	orch.progress.lossConverged = hasConverged(orch.progress.meanLosses, 1e-4, 5, 3)
	if orch.progress.lossConverged {
		orch.logger.Info("Loss has converged!")
	}

	if len(orch.progress.meanLosses) >= lossPredictionMinRounds {
		prediction, err := performance.NewLossPrediction(orch.progress.meanLosses)
		if err == nil {
			orch.logger.Info(fmt.Sprintf("Predicted mean loss for round %d: %.6f (%s)",
				round+1, prediction.PredictLoss(round+1), prediction.PrintFunction()))
		}
	}

	writeResultsToFile(orch.resultsFileName, round, meanLoss, meanValLoss, orch.logger.Error)

	orch.eventBus.Publish(events.Event{
		Type:      common.ROUND_COMPLETED_EVENT_TYPE,
		Timestamp: time.Now(),
		Data:      events.RoundCompletedEvent{Round: round, MeanLoss: meanLoss},
	})
}

func movingAverage(values []float64, windowSize int) []float64 {
	if len(values) < windowSize {
		return nil // Not enough data for the window size
	}
	averages := make([]float64, len(values)-windowSize+1)
	for i := 0; i <= len(values)-windowSize; i++ {
		sum := 0.0
		for j := i; j < i+windowSize; j++ {
			sum += values[j]
		}
		averages[i] = sum / float64(windowSize)
	}
	return averages
}

// hasConverged reports whether the smoothed loss series stopped improving by
// more than threshold for the last `patience` windows.
func hasConverged(losses []float64, threshold float64, patience int, windowSize int) bool {
	averages := movingAverage(losses, windowSize)
	if len(averages) < patience+1 {
		return false
	}

	for i := len(averages) - patience; i < len(averages); i++ {
		improvement := averages[i] - averages[i-1]
		if math.Abs(improvement) > threshold {
			return false
		}
	}
	return true
}

func getResultsFileName() string {
	os.MkdirAll("results", 0777)
	return fmt.Sprintf("results/results_%s.csv", time.Now().Format("2006-01-02_15-04"))
}

func writeResultsToFile(fileName string, round int32, meanLoss float64, meanValLoss float64, logError func(string, ...interface{})) {
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logError(fmt.Sprintf("Failed to open results file: %v", err))
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	record := []string{fmt.Sprintf("%d", round), fmt.Sprintf("%.6f", meanLoss), fmt.Sprintf("%.6f", meanValLoss)}
	if err := writer.Write(record); err != nil {
		logError(fmt.Sprintf("Failed to write results record: %v", err))
		return
	}
}
