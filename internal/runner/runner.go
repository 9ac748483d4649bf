package runner

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"gopkg.in/yaml.v3"
)

// ClientRunner launches one client's training procedure and blocks until it
// terminates. A nil return is a clean exit; a non-zero exit surfaces as an
// *ExitError.
type ClientRunner interface {
	Run(client *model.ClientDescriptor, weightArtifactName string, conn model.ConnectionInfo, epochs int32) error
}

// ExitError reports a client process that terminated with a non-zero code.
type ExitError struct {
	ClientId string
	Code     int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.ClientId, e.Code)
}

// ExecRunner runs the client program as an isolated OS process. The weight
// artifact name is passed positionally; addresses and epoch count travel via
// environment, and the same values are serialized as a YAML run-config
// document into the client's space so the process can self-configure.
type ExecRunner struct {
	st            *store.Store
	clientProgram string
	logger        hclog.Logger
}

func NewExecRunner(st *store.Store, clientProgram string, logger hclog.Logger) *ExecRunner {
	return &ExecRunner{
		st:            st,
		clientProgram: clientProgram,
		logger:        logger,
	}
}

func (r *ExecRunner) Run(client *model.ClientDescriptor, weightArtifactName string, conn model.ConnectionInfo, epochs int32) error {
	space, err := r.st.Space(client.SpaceName)
	if err != nil {
		return err
	}

	if err := writeRunConfig(space, client, conn, epochs); err != nil {
		return err
	}

	r.logger.Info(fmt.Sprintf("Starting %s with weights '%s' on %s", client.Id, weightArtifactName, conn.ClientAddress))

	cmd := exec.Command(r.clientProgram, weightArtifactName)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", common.ENV_CLIENT_ID, client.Id),
		fmt.Sprintf("%s=%d", common.ENV_CLIENT_EPOCHS, epochs),
		fmt.Sprintf("%s=%s", common.ENV_SERVER_ADDRESS, conn.ServerAddress),
		fmt.Sprintf("%s=%s", common.ENV_CLIENT_ADDRESS, conn.ClientAddress),
		fmt.Sprintf("%s=%s", common.ENV_DATA_DIR, r.st.DataDir()),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{ClientId: client.Id, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("launching %s: %w", client.Id, err)
	}

	return nil
}

func writeRunConfig(space *store.Space, client *model.ClientDescriptor, conn model.ConnectionInfo, epochs int32) error {
	runConfig := model.RunConfig{
		ClientId:      client.Id,
		Epochs:        epochs,
		BatchSize:     common.DEFAULT_BATCH_SIZE,
		ServerAddress: conn.ServerAddress,
		ClientAddress: conn.ClientAddress,
	}

	data, err := yaml.Marshal(runConfig)
	if err != nil {
		return fmt.Errorf("encoding run config for %s: %w", client.Id, err)
	}

	return space.Put(common.RUN_CONFIG_DOCUMENT, data)
}

// ReadRunConfig loads the run-config document from a client's space. A
// missing document yields a zero RunConfig, since every field has an
// environment override.
func ReadRunConfig(space *store.Space) (model.RunConfig, error) {
	runConfig := model.RunConfig{}

	data, err := space.Get(common.RUN_CONFIG_DOCUMENT)
	if err != nil {
		return runConfig, nil
	}

	if err := yaml.Unmarshal(data, &runConfig); err != nil {
		return model.RunConfig{}, fmt.Errorf("decoding run config for %s: %w", space.Name(), err)
	}

	return runConfig, nil
}
