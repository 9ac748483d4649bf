package florch

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/aggregate"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/registry"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/status"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/training"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/weighting"
	"golang.org/x/sync/errgroup"
)

// Initial global model shape: one lookback window in, one forecast value out.
const initialHiddenSize = 32
const initialLearnRate = 0.05
const initialModelSeed = 1

// FlOrchestrator drives the repeated rounds of distribute, local training,
// collection and aggregation. A single thread of control; the only
// concurrency is the optional parallel launch of the five client processes.
type FlOrchestrator struct {
	st              *store.Store
	clientRunner    runner.ClientRunner
	weightingEngine *weighting.Engine
	aggregator      *aggregate.Aggregator
	eventBus        *events.EventBus
	logger          hclog.Logger
	clients         []*model.ClientDescriptor
	connections     map[string]model.ConnectionInfo
	rounds          int32
	epochs          int32
	concurrent      bool
	resultsFileName string
	progress        *FlProgress
	roundState      *model.RoundState
	stopped         chan struct{}
}

func NewFlOrchestrator(st *store.Store, clientRunner runner.ClientRunner, eventBus *events.EventBus, logger hclog.Logger,
	clients []*model.ClientDescriptor, connections map[string]model.ConnectionInfo, rounds int32, epochs int32,
	concurrent bool) (*FlOrchestrator, error) {
	if rounds < 1 {
		return nil, fmt.Errorf("round count must be positive, got %d", rounds)
	}
	if epochs < 1 {
		return nil, fmt.Errorf("epoch count must be positive, got %d", epochs)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no clients configured")
	}

	return &FlOrchestrator{
		st:              st,
		clientRunner:    clientRunner,
		weightingEngine: weighting.NewEngine(st, clients, logger),
		aggregator:      aggregate.NewAggregator(st, clients, logger),
		eventBus:        eventBus,
		logger:          logger,
		clients:         clients,
		connections:     connections,
		rounds:          rounds,
		epochs:          epochs,
		concurrent:      concurrent,
		progress:        &FlProgress{},
		stopped:         make(chan struct{}),
	}, nil
}

// Run executes the whole state machine: initialization, the bootstrap round
// on the full model artifact, then the configured number of aggregation
// rounds on the weights artifact. Any client failure or missing contribution
// aborts; nothing is retried.
func (orch *FlOrchestrator) Run() error {
	if err := orch.initialize(); err != nil {
		return orch.abort(err)
	}

	if err := orch.distribute(common.GLOBAL_MODEL_ARTIFACT); err != nil {
		return orch.abort(err)
	}
	if err := orch.trainRound(common.GLOBAL_MODEL_ARTIFACT); err != nil {
		return orch.abort(err)
	}

	weights, err := orch.weightingEngine.ComputeWeights(common.LOOKBACK_WINDOW, common.TEST_SIZE)
	if err != nil {
		return orch.abort(err)
	}
	orch.roundState.Weights = weights
	orch.logger.Info(fmt.Sprintf("Client aggregation weights: %v", weights))

	orch.resultsFileName = getResultsFileName()

	for round := int32(1); round <= orch.rounds; round++ {
		if orch.isStopped() {
			return orch.abort(fmt.Errorf("run stopped at round %d", round))
		}

		orch.roundState.RoundIndex = round
		orch.logger.Info(fmt.Sprintf("Aggregation step %d/%d", round, orch.rounds))

		if err := orch.aggregator.Collect(); err != nil {
			return orch.abort(err)
		}
		if err := orch.aggregator.Aggregate(orch.roundState.Weights); err != nil {
			return orch.abort(err)
		}

		if err := orch.distribute(common.GLOBAL_WEIGHTS_ARTIFACT); err != nil {
			return orch.abort(err)
		}
		if err := orch.trainRound(common.GLOBAL_WEIGHTS_ARTIFACT); err != nil {
			return orch.abort(err)
		}

		orch.recordRoundProgress(round)
	}

	orch.logger.Info("Federated training finished.")
	orch.eventBus.Publish(events.Event{
		Type:      common.RUN_FINISHED_EVENT_TYPE,
		Timestamp: time.Now(),
		Data:      events.RunFinishedEvent{ExitCode: 0, ExitMessage: "completed"},
	})

	return nil
}

// abort ends the run after a failure: nothing is retried and no partial
// aggregation result is published.
func (orch *FlOrchestrator) abort(err error) error {
	orch.logger.Error(fmt.Sprintf("Federated training aborted: %s", err.Error()))
	orch.eventBus.Publish(events.Event{
		Type:      common.RUN_FINISHED_EVENT_TYPE,
		Timestamp: time.Now(),
		Data:      events.RunFinishedEvent{ExitCode: 1, ExitMessage: err.Error()},
	})

	return err
}

// Stop requests a halt before the next round begins. Already-running client
// processes are not interrupted.
func (orch *FlOrchestrator) Stop() {
	select {
	case <-orch.stopped:
	default:
		close(orch.stopped)
	}
}

func (orch *FlOrchestrator) isStopped() bool {
	select {
	case <-orch.stopped:
		return true
	default:
		return false
	}
}

// initialize persists the connection registry entries, publishes an initial
// waiting status for every client and creates the initial global model
// artifact. Artifacts from a previous run are overwritten.
func (orch *FlOrchestrator) initialize() error {
	for _, client := range orch.clients {
		space, err := orch.st.Space(client.SpaceName)
		if err != nil {
			return err
		}

		conn := orch.connections[client.Id]
		if err := registry.Write(space, conn.ServerAddress, conn.ClientAddress); err != nil {
			return err
		}
		orch.logger.Info(fmt.Sprintf("[setup] %s -> %s (%s)", client.Id, conn.ClientAddress, space.Path(common.CONNECTION_DOCUMENT)))

		waiting := model.StatusRecord{
			ClientId:    client.Id,
			Stage:       common.STAGE_WAITING,
			Epoch:       0,
			TotalEpochs: orch.epochs,
		}
		if err := status.Publish(space, waiting); err != nil {
			return err
		}
	}

	orch.logger.Info("Initialising global model.")
	serverSpace, err := orch.st.Space(common.SERVER_SPACE_NAME)
	if err != nil {
		return err
	}

	arch := training.Architecture{
		InputSize:  common.LOOKBACK_WINDOW,
		HiddenSize: initialHiddenSize,
		LearnRate:  initialLearnRate,
	}
	globalModel := training.NewModel(arch, initialModelSeed)
	data, err := training.EncodeModel(globalModel)
	if err != nil {
		return err
	}
	if err := serverSpace.Put(common.GLOBAL_MODEL_ARTIFACT, data); err != nil {
		return err
	}

	orch.roundState = &model.RoundState{
		RoundIndex:          0,
		CurrentArtifactName: common.GLOBAL_MODEL_ARTIFACT,
	}

	return nil
}

// distribute copies the named server artifact verbatim into every client's
// space. All clients of a round therefore train against an identical,
// fully-written snapshot. Re-running with the same artifact is idempotent.
func (orch *FlOrchestrator) distribute(artifactName string) error {
	serverSpace, err := orch.st.Space(common.SERVER_SPACE_NAME)
	if err != nil {
		return err
	}

	for _, client := range orch.clients {
		clientSpace, err := orch.st.Space(client.SpaceName)
		if err != nil {
			return err
		}
		if err := serverSpace.Copy(artifactName, clientSpace, artifactName); err != nil {
			return fmt.Errorf("distributing %s to %s: %w", artifactName, client.Id, err)
		}
	}

	orch.roundState.CurrentArtifactName = artifactName

	return nil
}

// trainRound launches the client training processes against the
// just-distributed artifact, sequentially by default or all at once in the
// concurrent variant. Aggregation never starts until every process has been
// waited on.
func (orch *FlOrchestrator) trainRound(artifactName string) error {
	if orch.concurrent {
		if err := orch.trainConcurrent(artifactName); err != nil {
			return err
		}
	} else {
		for _, client := range orch.clients {
			conn := orch.connections[client.Id]
			if err := orch.clientRunner.Run(client, artifactName, conn, orch.epochs); err != nil {
				return err
			}
			orch.logClientSummary(client)
		}
	}

	orch.displayClientStatuses()

	return nil
}

// trainConcurrent starts all client processes without waiting, then joins
// every one of them. Safe because each client only writes into its own space;
// the server's space is untouched until after the join. A status notifier
// fills in the progress visibility that interleaved stdout cannot provide.
func (orch *FlOrchestrator) trainConcurrent(artifactName string) error {
	notifier := status.NewNotifier(orch.st, orch.clients, orch.eventBus)
	notifier.Start()
	defer notifier.Stop()

	var group errgroup.Group
	for _, client := range orch.clients {
		client := client
		conn := orch.connections[client.Id]
		group.Go(func() error {
			return orch.clientRunner.Run(client, artifactName, conn, orch.epochs)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	for _, client := range orch.clients {
		orch.logClientSummary(client)
	}

	return nil
}

// logClientSummary re-reads the status channel after a client exits and emits
// the one-line summary. The process-exit barrier guarantees the final status
// write is already durable.
func (orch *FlOrchestrator) logClientSummary(client *model.ClientDescriptor) {
	space, err := orch.st.Space(client.SpaceName)
	if err != nil {
		orch.logger.Error(fmt.Sprintf("Error reading status for %s: %s", client.Id, err.Error()))
		return
	}

	record, found, err := status.Read(space)
	if err != nil {
		orch.logger.Error(fmt.Sprintf("Error reading status for %s: %s", client.Id, err.Error()))
		return
	}

	orch.logger.Info(fmt.Sprintf("  -> %s", status.Summary(client.Id, record, found)))
}

func (orch *FlOrchestrator) displayClientStatuses() {
	statusToPrint := fmt.Sprintln("Latest client updates ::")
	for _, client := range orch.clients {
		space, err := orch.st.Space(client.SpaceName)
		if err != nil {
			continue
		}

		record, found, err := status.Read(space)
		if err != nil {
			continue
		}
		statusToPrint += fmt.Sprintf("\t%s\n", status.Summary(client.Id, record, found))
	}

	orch.logger.Info(statusToPrint)
}
