package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/dataset"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/registry"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/status"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/training"
)

// The client training process. Invoked by the orchestrator with the
// distributed weight-artifact name as its sole positional argument; client
// identity, epoch count and reporting addresses arrive via environment and
// the run-config document.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: client <weight-artifact-name>")
		os.Exit(1)
	}
	weightArtifactName := os.Args[1]

	clientId := os.Getenv(common.ENV_CLIENT_ID)
	if clientId == "" {
		fmt.Fprintf(os.Stderr, "%s must be set\n", common.ENV_CLIENT_ID)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  clientId,
		Level: hclog.LevelFromString("DEBUG"),
	})

	if err := run(clientId, weightArtifactName, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(clientId string, weightArtifactName string, logger hclog.Logger) error {
	client, err := common.GetClientById(common.DefaultClients(), clientId)
	if err != nil {
		return err
	}

	dataDir := os.Getenv(common.ENV_DATA_DIR)
	if dataDir == "" {
		dataDir = common.DEFAULT_DATA_DIR
	}

	st := store.New(dataDir)
	space, err := st.Space(client.SpaceName)
	if err != nil {
		return err
	}

	runConfig, err := runner.ReadRunConfig(space)
	if err != nil {
		return err
	}
	connection, err := registry.Read(space)
	if err != nil {
		return err
	}

	serverAddress := firstNonEmpty(os.Getenv(common.ENV_SERVER_ADDRESS), runConfig.ServerAddress, connection.ServerAddress)
	clientAddress := firstNonEmpty(os.Getenv(common.ENV_CLIENT_ADDRESS), runConfig.ClientAddress, connection.ClientAddress)
	epochs := resolveEpochs(runConfig)
	batchSize := runConfig.BatchSize
	if batchSize < 1 {
		batchSize = common.DEFAULT_BATCH_SIZE
	}

	report := func(stage string, epoch int32, metrics map[string]float64) {
		record := model.StatusRecord{
			ClientId:      clientId,
			Stage:         stage,
			Epoch:         epoch,
			TotalEpochs:   epochs,
			ServerAddress: serverAddress,
			ClientAddress: clientAddress,
		}
		if len(metrics) > 0 {
			record.Metrics = metrics
		}
		if err := status.Publish(space, record); err != nil {
			// Reporting is best-effort; training never blocks on it.
			logger.Error(fmt.Sprintf("Failed to publish status: %s", err.Error()))
		}
	}

	report(common.STAGE_STARTING, 0, nil)
	logger.Info("Starting")

	rows, err := dataset.Load(space, client.DatasetTag)
	if err != nil {
		return err
	}
	rows = dataset.Normalize(rows)

	trainX, trainY, testX, testY, err := dataset.WindowedSplit(rows, common.TRAIN_FRACTION, common.LOOKBACK_WINDOW)
	if err != nil {
		return err
	}
	valX, valY, testX, testY := holdOutSplit(testX, testY, common.TEST_SIZE)

	trainableModel, err := loadTrainableModel(space, client.Id, weightArtifactName, logger, testX, testY)
	if err != nil {
		return err
	}

	progress := func(epoch int32, totalEpochs int32, event string, logs map[string]float64) {
		stage := common.STAGE_RUNNING
		if event == "end" {
			stage = common.STAGE_EPOCH_COMPLETED
		}

		metrics := status.NormalizeMetrics(toInterfaceMap(logs))
		if event == "start" {
			logger.Info(fmt.Sprintf("Epoch %d/%d running", epoch, totalEpochs))
		} else if loss, ok := metrics["loss"]; ok {
			logger.Info(fmt.Sprintf("Epoch %d/%d completed (loss=%.4f)", epoch, totalEpochs, loss))
		} else {
			logger.Info(fmt.Sprintf("Epoch %d/%d completed", epoch, totalEpochs))
		}

		report(stage, epoch, metrics)
	}

	history, err := trainableModel.Train(epochs, batchSize, trainX, trainY, valX, valY, progress)
	if err != nil {
		return err
	}

	weightsData, err := training.EncodeWeights(trainableModel.Weights())
	if err != nil {
		return err
	}
	if err := space.Put(common.ClientWeightsArtifact(client.Id), weightsData); err != nil {
		return err
	}

	modelData, err := training.EncodeModel(trainableModel)
	if err != nil {
		return err
	}
	if err := space.Put(common.ClientModelArtifact(client.Id), modelData); err != nil {
		return err
	}

	if err := training.AppendLearningCurve(space, history, "loss", client.DatasetTag); err != nil {
		return err
	}

	finalMetrics := status.NormalizeMetrics(toInterfaceMap(history.FinalMetrics()))
	report(common.STAGE_IDLE, epochs, finalMetrics)
	logger.Info("Idle")

	// The distributed artifact was consumed; the next round's copy replaces it.
	return space.Delete(weightArtifactName)
}

// loadTrainableModel restores the client's local model snapshot and applies
// the distributed weights when both exist; otherwise it bootstraps the local
// model from the distributed full snapshot.
func loadTrainableModel(space *store.Space, clientId string, weightArtifactName string, logger hclog.Logger,
	testX [][]float64, testY []float64) (*training.Model, error) {
	modelArtifactName := common.ClientModelArtifact(clientId)

	if space.Exists(modelArtifactName) && space.Exists(weightArtifactName) {
		modelData, err := space.Get(modelArtifactName)
		if err != nil {
			return nil, err
		}
		trainableModel, err := training.DecodeModel(modelData)
		if err != nil {
			return nil, err
		}

		weightData, err := space.Get(weightArtifactName)
		if err != nil {
			return nil, err
		}
		weights, err := training.DecodeAnyWeights(weightData)
		if err != nil {
			return nil, err
		}
		if err := trainableModel.SetWeights(weights); err != nil {
			return nil, err
		}

		if len(testX) > 0 {
			logger.Info(fmt.Sprintf("Held-out MSE before training: %.6f", trainableModel.Evaluate(testX, testY)))
		}

		return trainableModel, nil
	}

	modelData, err := space.Get(weightArtifactName)
	if err != nil {
		return nil, err
	}

	return training.DecodeModel(modelData)
}

// holdOutSplit keeps the last holdOut samples of the test set as the held-out
// evaluation set; the rest becomes the validation set.
func holdOutSplit(testX [][]float64, testY []float64, holdOut int) (valX [][]float64, valY []float64, heldX [][]float64, heldY []float64) {
	if len(testX) <= holdOut {
		return nil, nil, testX, testY
	}

	cut := len(testX) - holdOut
	return testX[:cut], testY[:cut], testX[cut:], testY[cut:]
}

func resolveEpochs(runConfig model.RunConfig) int32 {
	if raw := os.Getenv(common.ENV_CLIENT_EPOCHS); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return int32(parsed)
		}
	}
	if runConfig.Epochs > 0 {
		return runConfig.Epochs
	}

	return common.DEFAULT_EPOCHS
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

func toInterfaceMap(metrics map[string]float64) map[string]interface{} {
	raw := map[string]interface{}{}
	for key, value := range metrics {
		raw[key] = value
	}

	return raw
}
