package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

func TestWriteReadRoundtrip(t *testing.T) {
	st := store.New(t.TempDir())

	cases := []struct {
		clientSpace   string
		serverAddress string
		clientAddress string
	}{
		{"client1_space", "192.168.0.10", "192.168.0.21"},
		{"client2_space", "192.168.0.10", "192.168.0.22"},
		{"client5_space", "10.0.0.1:8080", "10.0.0.25:8080"},
	}

	for _, tc := range cases {
		space, err := st.Space(tc.clientSpace)
		require.NoError(t, err)

		require.NoError(t, Write(space, tc.serverAddress, tc.clientAddress))

		info, err := Read(space)
		require.NoError(t, err)
		require.Equal(t, model.ConnectionInfo{
			ServerAddress: tc.serverAddress,
			ClientAddress: tc.clientAddress,
		}, info)
	}
}

func TestReadMissingReturnsEmpty(t *testing.T) {
	st := store.New(t.TempDir())

	space, err := st.Space("client1_space")
	require.NoError(t, err)

	info, err := Read(space)
	require.NoError(t, err)
	require.Equal(t, model.ConnectionInfo{}, info)
}

func TestWriteOverwritesPreviousEntry(t *testing.T) {
	st := store.New(t.TempDir())

	space, err := st.Space("client3_space")
	require.NoError(t, err)

	require.NoError(t, Write(space, "192.168.0.10", "192.168.0.23"))
	require.NoError(t, Write(space, "192.168.0.11", "192.168.0.33"))

	info, err := Read(space)
	require.NoError(t, err)
	require.Equal(t, "192.168.0.11", info.ServerAddress)
	require.Equal(t, "192.168.0.33", info.ClientAddress)
}
