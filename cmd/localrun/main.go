package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/florch"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

// Minimal single-machine flow: all five clients run locally with no network
// identity, sequentially, for an operator-chosen round count.
//
//	localrun [rounds] [epochs]
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "fl-coordinator",
		Level: hclog.LevelFromString("DEBUG"),
	})

	rounds := common.DEFAULT_ROUNDS
	epochs := common.DEFAULT_EPOCHS
	if len(os.Args) > 1 {
		rounds, _ = strconv.Atoi(os.Args[1])
	}
	if len(os.Args) > 2 {
		epochs, _ = strconv.Atoi(os.Args[2])
	}

	clients := common.DefaultClients()

	// Training proceeds with an unset network identity; reporting stays local.
	connections := map[string]model.ConnectionInfo{}
	for _, client := range clients {
		connections[client.Id] = model.ConnectionInfo{}
	}

	st := store.New(common.DEFAULT_DATA_DIR)
	eventBus := events.NewEventBus()
	clientRunner := runner.NewExecRunner(st, "./client", logger)

	flOrchestrator, err := florch.NewFlOrchestrator(st, clientRunner, eventBus, logger, clients, connections,
		int32(rounds), int32(epochs), false)
	if err != nil {
		logger.Error("Error creating orchestrator", "error", err)
		os.Exit(1)
	}

	if err := flOrchestrator.Run(); err != nil {
		logger.Error(fmt.Sprintf("Run aborted: %s", err.Error()))
		os.Exit(1)
	}
}
