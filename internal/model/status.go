package model

// StatusRecord is the last-write-wins progress snapshot one client publishes
// into its space. The whole record is overwritten on every publish; only the
// most recent value is ever read.
type StatusRecord struct {
	Space         string             `json:"space"`
	Timestamp     float64            `json:"timestamp"`
	ClientId      string             `json:"client_id"`
	Stage         string             `json:"stage"`
	Epoch         int32              `json:"epoch"`
	TotalEpochs   int32              `json:"total_epochs"`
	ServerAddress string             `json:"server_address,omitempty"`
	ClientAddress string             `json:"client_address,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// RoundState tracks the orchestrator's position in the round loop. It only
// ever moves forward; a crash mid-round restarts from initialization.
type RoundState struct {
	RoundIndex          int32
	CurrentArtifactName string
	Weights             []float64
}
