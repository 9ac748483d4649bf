package performance

import (
	"math"
)

// LossPrediction estimates how the round-over-round mean loss will continue
// to develop, based on a logarithmic fit of the history observed so far.
type LossPrediction struct {
	regressionFunction Regression
}

func NewLossPrediction(losses []float64) (*LossPrediction, error) {
	xs := make([]float64, len(losses))
	for i := range losses {
		xs[i] = float64(i + 1)
	}

	regression, err := NewLogarithmicRegression(xs, losses)
	if err != nil {
		return nil, err
	}

	return &LossPrediction{regressionFunction: regression}, nil
}

func (lp *LossPrediction) PredictLoss(round int32) float64 {
	return lp.regressionFunction.PredictY(float64(round))
}

// PredictRoundForLoss returns the first round at which the fitted curve
// reaches the target loss.
func (lp *LossPrediction) PredictRoundForLoss(loss float64) int32 {
	return int32(math.Ceil(lp.regressionFunction.PredictX(loss)))
}

func (lp *LossPrediction) PrintFunction() string {
	return lp.regressionFunction.PrintFunction()
}
