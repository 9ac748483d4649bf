package server

import (
	"encoding/json"
	"io"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

type StartRunRequest struct {
	ServerAddress   string            `json:"serverAddress"`
	ClientAddresses map[string]string `json:"clientAddresses"`
	Rounds          int32             `json:"rounds"`
	Epochs          int32             `json:"epochs"`
	Concurrent      bool              `json:"concurrent"`
}

type ClientStatusResponse struct {
	ClientId string              `json:"clientId"`
	Summary  string              `json:"summary"`
	Status   *model.StatusRecord `json:"status,omitempty"`
}
