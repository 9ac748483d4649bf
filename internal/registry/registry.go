package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// Write persists the server and client addresses as the connection document
// inside the client's space. Written once per deployment, read-only during
// rounds.
func Write(space *store.Space, serverAddress string, clientAddress string) error {
	info := model.ConnectionInfo{
		ServerAddress: serverAddress,
		ClientAddress: clientAddress,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding connection info for %s: %w", space.Name(), err)
	}

	return space.Put(common.CONNECTION_DOCUMENT, append(data, '\n'))
}

// Read returns the connection document for the space. A missing document is
// not an error: an empty ConnectionInfo is returned instead, since training
// proceeds without a network identity.
func Read(space *store.Space) (model.ConnectionInfo, error) {
	info := model.ConnectionInfo{}

	data, err := space.Get(common.CONNECTION_DOCUMENT)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return info, nil
		}
		return info, err
	}

	if err := json.Unmarshal(data, &info); err != nil {
		return model.ConnectionInfo{}, fmt.Errorf("decoding connection info for %s: %w", space.Name(), err)
	}

	return info, nil
}
