package common

import (
	"fmt"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
)

// DefaultClients is the static table of the five federated clients and the
// regional traffic dataset each one trains on.
func DefaultClients() []*model.ClientDescriptor {
	return []*model.ClientDescriptor{
		{Id: "client1", SpaceName: "client1_space", DatasetTag: "LOSAng"},
		{Id: "client2", SpaceName: "client2_space", DatasetTag: "NYCMng"},
		{Id: "client3", SpaceName: "client3_space", DatasetTag: "SNVAng"},
		{Id: "client4", SpaceName: "client4_space", DatasetTag: "STTLng"},
		{Id: "client5", SpaceName: "client5_space", DatasetTag: "WASHng"},
	}
}

// GetClientById returns the descriptor for the given identifier, or an error
// when the identifier is not part of the client table.
func GetClientById(clients []*model.ClientDescriptor, clientId string) (*model.ClientDescriptor, error) {
	for _, client := range clients {
		if client.Id == clientId {
			return client, nil
		}
	}

	return nil, fmt.Errorf("unknown client identifier %q", clientId)
}

// ClientWeightsArtifact returns the deterministic name of a client's
// weight-delta artifact.
func ClientWeightsArtifact(clientId string) string {
	return clientId + CLIENT_WEIGHTS_SUFFIX
}

// ClientModelArtifact returns the name of a client's local model snapshot.
func ClientModelArtifact(clientId string) string {
	return clientId + CLIENT_MODEL_SUFFIX
}

func CalculateAverageFloat64(numbers []float64) float64 {
	if len(numbers) == 0 {
		return 0
	}

	var sum float64
	for _, number := range numbers {
		sum += number
	}

	return sum / float64(len(numbers))
}
