package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// Load reads the regional traffic series for the given dataset tag from the
// client's space. The series is stored as a single-column CSV named
// "<tag>.csv"; header lines and rows that do not parse as numbers are
// skipped.
func Load(space *store.Space, datasetTag string) ([]float64, error) {
	data, err := space.Get(datasetTag + ".csv")
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows := []float64{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset %s: %w", datasetTag, err)
		}
		if len(record) == 0 {
			continue
		}

		value, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		rows = append(rows, value)
	}

	return rows, nil
}

// Normalize rescales the series to [0, 1] by its own min and max, which
// keeps gradient descent stable on raw traffic volumes. A constant series
// maps to all zeros.
func Normalize(rows []float64) []float64 {
	if len(rows) == 0 {
		return rows
	}

	min, max := rows[0], rows[0]
	for _, value := range rows {
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}

	scaled := make([]float64, len(rows))
	if max == min {
		return scaled
	}
	for i, value := range rows {
		scaled[i] = (value - min) / (max - min)
	}

	return scaled
}

// EffectiveLength is the number of rows that remain after discarding the
// portion reserved for windowing and held-out testing. Never negative.
func EffectiveLength(rows []float64, lookback int, testSize int) int {
	effective := len(rows) - (lookback + testSize)
	if effective < 0 {
		return 0
	}

	return effective
}

// WindowedSplit turns an ordered series into supervised windows: each sample
// is `window` consecutive values and the target is the value that follows.
// The first trainFraction of samples become the training set, the remainder
// the test set.
func WindowedSplit(rows []float64, trainFraction float64, window int) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, err error) {
	samples := len(rows) - window
	if samples <= 0 {
		return nil, nil, nil, nil, fmt.Errorf("series of %d rows is shorter than window %d", len(rows), window)
	}

	xs := make([][]float64, samples)
	ys := make([]float64, samples)
	for i := 0; i < samples; i++ {
		xs[i] = rows[i : i+window]
		ys[i] = rows[i+window]
	}

	trainCount := int(trainFraction * float64(samples))
	if trainCount < 1 {
		trainCount = 1
	}
	if trainCount > samples {
		trainCount = samples
	}

	return xs[:trainCount], ys[:trainCount], xs[trainCount:], ys[trainCount:], nil
}
