package server

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/florch"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/status"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

type Handler struct {
	logger        hclog.Logger
	eventBus      *events.EventBus
	st            *store.Store
	clientProgram string
	clients       []*model.ClientDescriptor
	orchestrators map[string]*florch.FlOrchestrator
}

func NewHandler(logger hclog.Logger, eventBus *events.EventBus, st *store.Store, clientProgram string) *Handler {
	return &Handler{
		logger:        logger,
		eventBus:      eventBus,
		st:            st,
		clientProgram: clientProgram,
		clients:       common.DefaultClients(),
		orchestrators: map[string]*florch.FlOrchestrator{},
	}
}

func (handler *Handler) StartRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := uuid.New().String()

	request := &StartRunRequest{}
	err := fromJSON(request, r.Body)
	if err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	if request.Rounds < 1 {
		request.Rounds = common.DEFAULT_ROUNDS
	}
	if request.Epochs < 1 {
		request.Epochs = common.DEFAULT_EPOCHS
	}

	// The HTTP surface is always non-interactive: a missing address is a
	// hard failure, never a prompt.
	connections := map[string]model.ConnectionInfo{}
	for _, client := range handler.clients {
		clientAddress, ok := request.ClientAddresses[client.Id]
		if !ok {
			rw.WriteHeader(http.StatusBadRequest)
			toJSON(fmt.Sprintf("missing address for %s", client.Id), rw)
			return
		}
		connections[client.Id] = model.ConnectionInfo{
			ServerAddress: request.ServerAddress,
			ClientAddress: clientAddress,
		}
	}

	clientRunner := runner.NewExecRunner(handler.st, handler.clientProgram, handler.logger)
	flOrchestrator, err := florch.NewFlOrchestrator(handler.st, clientRunner, handler.eventBus, handler.logger,
		handler.clients, connections, request.Rounds, request.Epochs, request.Concurrent)
	if err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("invalid run configuration", rw)
		return
	}

	handler.orchestrators[runId] = flOrchestrator

	handler.logger.Info(fmt.Sprintf("Starting federated run %s: %d rounds, %d epochs, concurrent=%v",
		runId, request.Rounds, request.Epochs, request.Concurrent))

	go func() {
		if err := flOrchestrator.Run(); err != nil {
			handler.logger.Error(fmt.Sprintf("Run %s aborted: %s", runId, err.Error()))
		}
	}()

	rw.WriteHeader(http.StatusOK)
	toJSON(runId, rw)
}

func (handler *Handler) StopRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	handler.logger.Info(fmt.Sprintf("Stopping run with ID: %s", runId))

	flOrchestrator := handler.orchestrators[runId]
	if flOrchestrator != nil {
		flOrchestrator.Stop()
		rw.WriteHeader(http.StatusOK)
	} else {
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("no run with the given ID", rw)
	}
}

// RunStatus reports the latest self-published status of every client.
func (handler *Handler) RunStatus(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	response := []ClientStatusResponse{}
	for _, client := range handler.clients {
		space, err := handler.st.Space(client.SpaceName)
		if err != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}

		record, found, err := status.Read(space)
		if err != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}

		entry := ClientStatusResponse{
			ClientId: client.Id,
			Summary:  status.Summary(client.Id, record, found),
		}
		if found {
			entry.Status = &record
		}
		response = append(response, entry)
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(response, rw)
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}
