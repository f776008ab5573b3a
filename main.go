package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediabrowse/mediabrowse/internal"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

var log = logger.Get("Main")

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file (environment only when omitted)")
	verbosity := flag.Int("verbosity", 3, "minimum log level to emit (0=verbose ... 5=fatal)")
	flag.Parse()

	logger.SetMinLoggingLevel(*verbosity)

	config := internal.MediaBrowseConfig{}
	if err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	browse, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise MediaBrowse: %v\n", err)
		os.Exit(1)
	}

	if err := browse.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "MediaBrowse exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "MediaBrowse shut down\n")
}
