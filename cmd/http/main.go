package main

import (
	"flag"
	"io"
	"os"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/common"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/events"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/server"
	"github.com/kaustubh-5016/Federated-Learning-Traffic/internal/store"
)

func main() {
	dataDir := flag.String("data-dir", common.DEFAULT_DATA_DIR, "Root directory holding the client and server spaces.")
	clientProgram := flag.String("client-program", "./client", "Path to the client training executable.")
	port := flag.Int("port", 8080, "Port for the HTTP control surface.")
	flag.Parse()

	_ = os.Mkdir("log", 0777)
	logFile, err := os.OpenFile("log/run.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fl-coordinator",
		Level:  hclog.LevelFromString("DEBUG"),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	eventBus := events.NewEventBus()
	st := store.New(*dataDir)

	handler := server.NewHandler(logger, eventBus, st, *clientProgram)

	defaultRouter := mux.NewRouter()
	defaultRouter.HandleFunc("/run/start", handler.StartRun)
	defaultRouter.HandleFunc("/run/stop/{runId}", handler.StopRun)
	defaultRouter.HandleFunc("/run/status", handler.RunStatus)

	server.StartHttpServer(logger, defaultRouter, *port)
}
