package florch

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/status"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/training"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/weighting"
)

// fakeRunner stands in for the client process: it consumes the distributed
// artifact, writes back a weight delta and reports an idle status, all inside
// the client's own space.
type fakeRunner struct {
	st       *store.Store
	failFor  map[string]bool
	mu       sync.Mutex
	launched []string
}

func (r *fakeRunner) Run(client *model.ClientDescriptor, weightArtifactName string, conn model.ConnectionInfo, epochs int32) error {
	r.mu.Lock()
	r.launched = append(r.launched, weightArtifactName)
	r.mu.Unlock()

	if r.failFor[client.Id] {
		return &runner.ExitError{ClientId: client.Id, Code: 3}
	}

	space, err := r.st.Space(client.SpaceName)
	if err != nil {
		return err
	}

	data, err := space.Get(weightArtifactName)
	if err != nil {
		return err
	}
	weights, err := training.DecodeAnyWeights(data)
	if err != nil {
		return err
	}

	for t := range weights.Tensors {
		for v := range weights.Tensors[t].Data {
			weights.Tensors[t].Data[v] *= 0.9
		}
	}

	delta, err := training.EncodeWeights(weights)
	if err != nil {
		return err
	}
	if err := space.Put(common.ClientWeightsArtifact(client.Id), delta); err != nil {
		return err
	}

	return status.Publish(space, model.StatusRecord{
		ClientId:    client.Id,
		Stage:       common.STAGE_IDLE,
		Epoch:       epochs,
		TotalEpochs: epochs,
		Metrics:     map[string]float64{"loss": 0.5, "val_loss": 0.6},
	})
}

func (r *fakeRunner) launchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.launched)
}

func chdirTemp(t *testing.T) {
	t.Helper()

	original, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(original) })
}

func seedDatasets(t *testing.T, st *store.Store, clients []*model.ClientDescriptor) {
	t.Helper()

	// effective lengths 100, 80, 60, 40, 20 after trimming lookback+test
	lengths := []int{270, 250, 230, 210, 190}
	for i, client := range clients {
		space, err := st.Space(client.SpaceName)
		require.NoError(t, err)

		rows := []byte("traffic\n")
		for row := 0; row < lengths[i]; row++ {
			rows = append(rows, []byte("1.0\n")...)
		}
		require.NoError(t, space.Put(client.DatasetTag+".csv", rows))
	}
}

func newTestOrchestrator(t *testing.T, st *store.Store, clientRunner runner.ClientRunner,
	eventBus *events.EventBus, rounds int32, concurrent bool) *FlOrchestrator {
	t.Helper()

	clients := common.DefaultClients()
	connections := map[string]model.ConnectionInfo{}
	orch, err := NewFlOrchestrator(st, clientRunner, eventBus, hclog.NewNullLogger(),
		clients, connections, rounds, 1, concurrent)
	require.NoError(t, err)

	return orch
}

func TestNewFlOrchestratorValidatesConfiguration(t *testing.T) {
	st := store.New(t.TempDir())
	eventBus := events.NewEventBus()

	_, err := NewFlOrchestrator(st, &fakeRunner{st: st}, eventBus, hclog.NewNullLogger(),
		common.DefaultClients(), nil, 0, 1, false)
	require.Error(t, err)

	_, err = NewFlOrchestrator(st, &fakeRunner{st: st}, eventBus, hclog.NewNullLogger(),
		common.DefaultClients(), nil, 1, 0, false)
	require.Error(t, err)

	_, err = NewFlOrchestrator(st, &fakeRunner{st: st}, eventBus, hclog.NewNullLogger(),
		nil, nil, 1, 1, false)
	require.Error(t, err)
}

func TestRunCompletesConfiguredRounds(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	seedDatasets(t, st, clients)

	eventBus := events.NewEventBus()
	roundEvents := make(chan events.Event, 16)
	finishedEvents := make(chan events.Event, 16)
	eventBus.Subscribe(common.ROUND_COMPLETED_EVENT_TYPE, roundEvents)
	eventBus.Subscribe(common.RUN_FINISHED_EVENT_TYPE, finishedEvents)

	clientRunner := &fakeRunner{st: st}
	orch := newTestOrchestrator(t, st, clientRunner, eventBus, 2, false)

	require.NoError(t, orch.Run())

	// one bootstrap round plus two aggregation rounds, five launches each
	require.Equal(t, 15, clientRunner.launchCount())
	for i, artifactName := range clientRunner.launched {
		if i < len(clients) {
			require.Equal(t, common.GLOBAL_MODEL_ARTIFACT, artifactName)
		} else {
			require.Equal(t, common.GLOBAL_WEIGHTS_ARTIFACT, artifactName)
		}
	}

	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)
	require.True(t, serverSpace.Exists(common.GLOBAL_WEIGHTS_ARTIFACT))
	require.True(t, serverSpace.Exists(common.GLOBAL_MODEL_ARTIFACT))

	require.Len(t, roundEvents, 2)

	finished := <-finishedEvents
	require.EqualValues(t, 0, finished.Data.(events.RunFinishedEvent).ExitCode)
}

func TestRunAggregationMatchesWeightedCombination(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	seedDatasets(t, st, clients)

	clientRunner := &fakeRunner{st: st}
	orch := newTestOrchestrator(t, st, clientRunner, events.NewEventBus(), 1, false)
	require.NoError(t, orch.Run())

	// every fake delta is 0.9x the distributed bootstrap snapshot, so any
	// weight vector summing to 1 reproduces exactly that
	initial := training.NewModel(training.Architecture{
		InputSize:  common.LOOKBACK_WINDOW,
		HiddenSize: initialHiddenSize,
		LearnRate:  initialLearnRate,
	}, initialModelSeed)

	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)
	combinedData, err := serverSpace.Get(common.GLOBAL_WEIGHTS_ARTIFACT)
	require.NoError(t, err)
	combined, err := training.DecodeWeights(combinedData)
	require.NoError(t, err)

	for t2, tensor := range initial.Weights().Tensors {
		for v, value := range tensor.Data {
			require.InDelta(t, 0.9*value, combined.Tensors[t2].Data[v], 1e-9)
		}
	}
}

func TestRunAbortsOnClientFailure(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	seedDatasets(t, st, clients)

	eventBus := events.NewEventBus()
	finishedEvents := make(chan events.Event, 16)
	eventBus.Subscribe(common.RUN_FINISHED_EVENT_TYPE, finishedEvents)

	clientRunner := &fakeRunner{st: st, failFor: map[string]bool{"client2": true}}
	orch := newTestOrchestrator(t, st, clientRunner, eventBus, 2, false)

	err := orch.Run()
	require.Error(t, err)

	var exitErr *runner.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, "client2", exitErr.ClientId)

	// nothing was collected into the server's space
	serverSpace, serr := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, serr)
	for _, client := range clients {
		require.False(t, serverSpace.Exists(common.ClientWeightsArtifact(client.Id)))
	}
	require.False(t, serverSpace.Exists(common.GLOBAL_WEIGHTS_ARTIFACT))

	finished := <-finishedEvents
	require.EqualValues(t, 1, finished.Data.(events.RunFinishedEvent).ExitCode)
}

func TestRunConcurrentVariant(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	seedDatasets(t, st, common.DefaultClients())

	clientRunner := &fakeRunner{st: st}
	orch := newTestOrchestrator(t, st, clientRunner, events.NewEventBus(), 1, true)

	require.NoError(t, orch.Run())
	require.Equal(t, 10, clientRunner.launchCount())
}

func TestStopHaltsBeforeNextRound(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	seedDatasets(t, st, common.DefaultClients())

	clientRunner := &fakeRunner{st: st}
	orch := newTestOrchestrator(t, st, clientRunner, events.NewEventBus(), 3, false)
	orch.Stop()

	err := orch.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "stopped")

	// only the bootstrap round ran
	require.Equal(t, 5, clientRunner.launchCount())
}

func TestDistributeIsIdempotent(t *testing.T) {
	st := store.New(t.TempDir())
	orch := newTestOrchestrator(t, st, &fakeRunner{st: st}, events.NewEventBus(), 1, false)

	require.NoError(t, orch.initialize())
	require.NoError(t, orch.distribute(common.GLOBAL_MODEL_ARTIFACT))
	require.NoError(t, orch.distribute(common.GLOBAL_MODEL_ARTIFACT))

	serverSpace, err := st.Space(common.SERVER_SPACE_NAME)
	require.NoError(t, err)
	expected, err := serverSpace.Get(common.GLOBAL_MODEL_ARTIFACT)
	require.NoError(t, err)

	for _, client := range common.DefaultClients() {
		clientSpace, err := st.Space(client.SpaceName)
		require.NoError(t, err)

		got, err := clientSpace.Get(common.GLOBAL_MODEL_ARTIFACT)
		require.NoError(t, err)
		require.Equal(t, expected, got)
	}
}

func TestAggregationWeightsAreFixedAcrossRounds(t *testing.T) {
	chdirTemp(t)
	st := store.New(t.TempDir())
	clients := common.DefaultClients()
	seedDatasets(t, st, clients)

	clientRunner := &fakeRunner{st: st}
	orch := newTestOrchestrator(t, st, clientRunner, events.NewEventBus(), 3, false)
	require.NoError(t, orch.Run())

	expected, err := weighting.ProportionalWeights([]int{100, 80, 60, 40, 20})
	require.NoError(t, err)
	require.Equal(t, expected, orch.roundState.Weights)
}
