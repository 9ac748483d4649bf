package model

// ClientDescriptor identifies one federated client: which space it owns and
// which regional dataset it trains on. Descriptors are built once at startup
// from the static client table and never mutated afterwards.
type ClientDescriptor struct {
	Id         string
	SpaceName  string
	DatasetTag string
}

// ConnectionInfo holds the best-effort reporting addresses written into a
// client's space. Either field may be empty; training proceeds without them.
type ConnectionInfo struct {
	ServerAddress string `json:"server_address"`
	ClientAddress string `json:"client_address"`
}

// RunConfig is the typed configuration handed from the orchestrator to a
// client process, serialized as a YAML document into the client's space.
// Environment variables with the same meaning override these values.
type RunConfig struct {
	ClientId      string `yaml:"client_id"`
	Epochs        int32  `yaml:"epochs"`
	BatchSize     int32  `yaml:"batch_size"`
	ServerAddress string `yaml:"server_address"`
	ClientAddress string `yaml:"client_address"`
}
