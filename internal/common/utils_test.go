package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultClientsTable(t *testing.T) {
	clients := DefaultClients()
	require.Len(t, clients, 5)

	tags := map[string]string{}
	for _, client := range clients {
		require.Equal(t, client.Id+"_space", client.SpaceName)
		tags[client.Id] = client.DatasetTag
	}
	require.Equal(t, map[string]string{
		"client1": "LOSAng",
		"client2": "NYCMng",
		"client3": "SNVAng",
		"client4": "STTLng",
		"client5": "WASHng",
	}, tags)
}

func TestGetClientById(t *testing.T) {
	clients := DefaultClients()

	client, err := GetClientById(clients, "client4")
	require.NoError(t, err)
	require.Equal(t, "STTLng", client.DatasetTag)

	_, err = GetClientById(clients, "client9")
	require.Error(t, err)
}

func TestArtifactNames(t *testing.T) {
	require.Equal(t, "client1_weights", ClientWeightsArtifact("client1"))
	require.Equal(t, "client1_model", ClientModelArtifact("client1"))
}

func TestCalculateAverageFloat64(t *testing.T) {
	require.Equal(t, 0.0, CalculateAverageFloat64(nil))
	require.Equal(t, 2.0, CalculateAverageFloat64([]float64{1, 2, 3}))
}
