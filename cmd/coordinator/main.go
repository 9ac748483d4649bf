package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/florch"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/model"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/runner"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

type clientAddressFlags []string

func (f *clientAddressFlags) String() string {
	return strings.Join(*f, ",")
}

func (f *clientAddressFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func main() {
	var clientAddresses clientAddressFlags

	serverAddress := flag.String("server-addr", "", "Address of the central server/aggregator.")
	flag.Var(&clientAddresses, "client-addr", "Client assignment in the form client1=192.168.0.21. Repeat for each client.")
	rounds := flag.Int("rounds", common.DEFAULT_ROUNDS, "Number of federated rounds to execute.")
	epochs := flag.Int("epochs", common.DEFAULT_EPOCHS, "Epochs to run on each client per round.")
	nonInteractive := flag.Bool("non-interactive", false, "Fail instead of prompting when information is missing.")
	concurrent := flag.Bool("concurrent", false, "Launch all client processes in parallel instead of one at a time.")
	dataDir := flag.String("data-dir", common.DEFAULT_DATA_DIR, "Root directory holding the client and server spaces.")
	clientProgram := flag.String("client-program", "./client", "Path to the client training executable.")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "fl-coordinator",
		Level: hclog.LevelFromString("DEBUG"),
	})

	clients := common.DefaultClients()

	connections, err := collectConnectionInfo(clients, *serverAddress, clientAddresses, *nonInteractive)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	st := store.New(*dataDir)
	eventBus := events.NewEventBus()
	clientRunner := runner.NewExecRunner(st, *clientProgram, logger)

	flOrchestrator, err := florch.NewFlOrchestrator(st, clientRunner, eventBus, logger, clients, connections,
		int32(*rounds), int32(*epochs), *concurrent)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if err := flOrchestrator.Run(); err != nil {
		logger.Error(fmt.Sprintf("Run aborted: %s", err.Error()))
		os.Exit(1)
	}
}

// collectConnectionInfo resolves a server address and one address per client
// from the flags, prompting for anything missing unless running
// non-interactively, in which case a missing value is a hard failure.
func collectConnectionInfo(clients []*model.ClientDescriptor, serverAddress string, raw clientAddressFlags,
	nonInteractive bool) (map[string]model.ConnectionInfo, error) {
	clientAddresses, err := parseClientAddresses(clients, raw)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(os.Stdin)

	if serverAddress == "" {
		if nonInteractive {
			return nil, fmt.Errorf("missing -server-addr in non-interactive mode")
		}
		serverAddress = promptForValue(reader, "Server address")
	}

	for _, client := range clients {
		if _, ok := clientAddresses[client.Id]; !ok {
			if nonInteractive {
				return nil, fmt.Errorf("missing address for %s in non-interactive mode", client.Id)
			}
			clientAddresses[client.Id] = promptForValue(reader, fmt.Sprintf("%s address", client.Id))
		}
	}

	connections := map[string]model.ConnectionInfo{}
	for _, client := range clients {
		connections[client.Id] = model.ConnectionInfo{
			ServerAddress: serverAddress,
			ClientAddress: clientAddresses[client.Id],
		}
	}

	return connections, nil
}

// parseClientAddresses parses repeated "client1=192.168.0.21" assignments.
func parseClientAddresses(clients []*model.ClientDescriptor, raw clientAddressFlags) (map[string]string, error) {
	addresses := map[string]string{}

	for _, value := range raw {
		parts := strings.SplitN(value, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected client mapping in the form 'client1=192.168.0.2', got %q", value)
		}

		clientId := strings.TrimSpace(parts[0])
		address := strings.TrimSpace(parts[1])
		if _, err := common.GetClientById(clients, clientId); err != nil {
			return nil, err
		}
		if address == "" {
			return nil, fmt.Errorf("missing address for %q", clientId)
		}

		addresses[clientId] = address
	}

	return addresses, nil
}

func promptForValue(reader *bufio.Reader, label string) string {
	for {
		fmt.Printf("%s: ", label)
		value, err := reader.ReadString('\n')
		if err != nil {
			return ""
		}

		value = strings.TrimSpace(value)
		if value != "" {
			return value
		}
		fmt.Println("A value is required. Please try again.")
	}
}
